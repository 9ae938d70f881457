package feedback

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
)

// NopSynthesizer accepts every utterance and returns immediately.
type NopSynthesizer struct{}

func (NopSynthesizer) Speak(context.Context, string) error { return nil }

// CommandSynthesizer speaks through a local TTS program such as macOS `say`
// or `espeak`. The process is killed when the context is cancelled.
type CommandSynthesizer struct {
	Program string
	Voice   string
	Logger  zerolog.Logger
}

func NewCommandSynthesizer(program, voice string, logger zerolog.Logger) (*CommandSynthesizer, error) {
	program = strings.TrimSpace(program)
	if program == "" {
		return nil, fmt.Errorf("speech command is empty")
	}
	if _, err := exec.LookPath(program); err != nil {
		return nil, fmt.Errorf("speech command %q not found: %w", program, err)
	}
	return &CommandSynthesizer{
		Program: program,
		Voice:   strings.TrimSpace(voice),
		Logger:  logger.With().Str("provider", filepath.Base(program)).Logger(),
	}, nil
}

// Args returns the argument list for text.
func (s *CommandSynthesizer) Args(text string) []string {
	var args []string
	if s.Voice != "" {
		args = append(args, "-v", s.Voice)
	}
	return append(args, text)
}

func (s *CommandSynthesizer) Speak(ctx context.Context, text string) error {
	s.Logger.Debug().Int("text_len", len(text)).Msg("speaking")

	cmd := exec.CommandContext(ctx, s.Program, s.Args(text)...)
	output, err := cmd.CombinedOutput()
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err != nil {
		return fmt.Errorf("%s failed: %w (%s)", filepath.Base(s.Program), err, strings.TrimSpace(string(output)))
	}
	return nil
}
