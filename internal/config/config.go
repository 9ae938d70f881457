package config

import (
	"errors"
	"fmt"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config contains all runtime settings for the voice-command service.
type Config struct {
	BindAddr         string
	ShutdownTimeout  time.Duration
	MetricsNamespace string
	AllowAnyOrigin   bool

	LogLevel  string
	LogFormat string

	// TranscribeBaseURL is the API base of the transcription service. Its
	// scheme is upgraded to ws/wss and /ws/transcribe is appended.
	TranscribeBaseURL string
	ConnectTimeout    time.Duration

	IdleTimeout       time.Duration
	TranscriptDisplay time.Duration
	SpeechCooldown    time.Duration

	CaptureCommand      string
	CaptureInputFormat  string
	CaptureInputDevice  string
	CaptureOutputFormat string
	CaptureCodec        string
	SampleRate          int
	Channels            int
	ChunkInterval       time.Duration

	SpeechProvider string
	SpeechCommand  string
	SpeechVoice    string

	DatabaseURL string
}

// Load reads the optional stemvoice config file and STEMVOICE_* environment
// variables, applying defaults and validating the result.
func Load() (Config, error) {
	return LoadFrom(newViper())
}

// LoadFrom resolves configuration from an already prepared viper instance.
func LoadFrom(v *viper.Viper) (Config, error) {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	}

	cfg := Config{
		BindAddr:            trimmed(v, "bind_addr"),
		MetricsNamespace:    trimmed(v, "metrics_namespace"),
		LogLevel:            strings.ToLower(trimmed(v, "log_level")),
		LogFormat:           strings.ToLower(trimmed(v, "log_format")),
		TranscribeBaseURL:   trimmed(v, "transcribe_base_url"),
		CaptureCommand:      trimmed(v, "capture_command"),
		CaptureInputFormat:  trimmed(v, "capture_input_format"),
		CaptureInputDevice:  trimmed(v, "capture_input_device"),
		CaptureOutputFormat: trimmed(v, "capture_output_format"),
		CaptureCodec:        trimmed(v, "capture_codec"),
		SpeechProvider:      strings.ToLower(trimmed(v, "speech_provider")),
		SpeechCommand:       trimmed(v, "speech_command"),
		SpeechVoice:         trimmed(v, "speech_voice"),
		DatabaseURL:         trimmed(v, "database_url"),
	}

	var err error
	if cfg.ShutdownTimeout, err = durationFrom(v, "shutdown_timeout"); err != nil {
		return Config{}, err
	}
	if cfg.ConnectTimeout, err = durationFrom(v, "connect_timeout"); err != nil {
		return Config{}, err
	}
	if cfg.IdleTimeout, err = durationFrom(v, "idle_timeout"); err != nil {
		return Config{}, err
	}
	if cfg.TranscriptDisplay, err = durationFrom(v, "transcript_display"); err != nil {
		return Config{}, err
	}
	if cfg.SpeechCooldown, err = durationFrom(v, "speech_cooldown"); err != nil {
		return Config{}, err
	}
	if cfg.ChunkInterval, err = durationFrom(v, "chunk_interval"); err != nil {
		return Config{}, err
	}
	if cfg.SampleRate, err = intFrom(v, "sample_rate"); err != nil {
		return Config{}, err
	}
	if cfg.Channels, err = intFrom(v, "channels"); err != nil {
		return Config{}, err
	}
	if cfg.AllowAnyOrigin, err = boolFrom(v, "allow_any_origin"); err != nil {
		return Config{}, err
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.TranscribeBaseURL == "" {
		return fmt.Errorf("STEMVOICE_TRANSCRIBE_BASE_URL must be set")
	}
	if c.IdleTimeout < 5*time.Second {
		return fmt.Errorf("STEMVOICE_IDLE_TIMEOUT must be at least 5s")
	}
	if c.ChunkInterval <= 0 {
		return fmt.Errorf("STEMVOICE_CHUNK_INTERVAL must be positive")
	}
	if c.TranscriptDisplay < 0 || c.SpeechCooldown < 0 {
		return fmt.Errorf("STEMVOICE_TRANSCRIPT_DISPLAY and STEMVOICE_SPEECH_COOLDOWN must be >= 0")
	}
	if c.SampleRate <= 0 {
		return fmt.Errorf("STEMVOICE_SAMPLE_RATE must be positive")
	}
	if c.Channels <= 0 {
		return fmt.Errorf("STEMVOICE_CHANNELS must be positive")
	}
	switch c.SpeechProvider {
	case "host", "command", "none":
	default:
		return fmt.Errorf("invalid STEMVOICE_SPEECH_PROVIDER: %q (expected host|command|none)", c.SpeechProvider)
	}
	switch c.LogFormat {
	case "console", "json":
	default:
		return fmt.Errorf("invalid STEMVOICE_LOG_FORMAT: %q (expected console|json)", c.LogFormat)
	}
	return nil
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigName("stemvoice")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/stemvoice")

	v.SetEnvPrefix("STEMVOICE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	return v
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("bind_addr", "127.0.0.1:8090")
	v.SetDefault("shutdown_timeout", "15s")
	v.SetDefault("metrics_namespace", "stemvoice")
	v.SetDefault("allow_any_origin", "false")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "console")
	v.SetDefault("transcribe_base_url", "http://localhost:8000")
	v.SetDefault("connect_timeout", "10s")
	// 30s of silence ends a session; some deployments prefer 60s.
	v.SetDefault("idle_timeout", "30s")
	v.SetDefault("transcript_display", "3500ms")
	v.SetDefault("speech_cooldown", "2s")
	v.SetDefault("capture_command", "ffmpeg")
	v.SetDefault("capture_input_format", defaultInputFormat())
	v.SetDefault("capture_input_device", "default")
	v.SetDefault("capture_output_format", "webm")
	v.SetDefault("capture_codec", "libopus")
	v.SetDefault("sample_rate", "16000")
	v.SetDefault("channels", "1")
	v.SetDefault("chunk_interval", "250ms")
	v.SetDefault("speech_provider", "host")
	v.SetDefault("speech_command", defaultSpeechCommand())
	v.SetDefault("speech_voice", "")
	v.SetDefault("database_url", "")
}

func defaultInputFormat() string {
	switch runtime.GOOS {
	case "darwin":
		return "avfoundation"
	case "windows":
		return "dshow"
	default:
		return "pulse"
	}
}

func defaultSpeechCommand() string {
	if runtime.GOOS == "darwin" {
		return "say"
	}
	return "espeak"
}

func envName(key string) string {
	return "STEMVOICE_" + strings.ToUpper(key)
}

func trimmed(v *viper.Viper, key string) string {
	return strings.TrimSpace(v.GetString(key))
}

func durationFrom(v *viper.Viper, key string) (time.Duration, error) {
	raw := trimmed(v, key)
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", envName(key), err)
	}
	return d, nil
}

func intFrom(v *viper.Viper, key string) (int, error) {
	raw := trimmed(v, key)
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", envName(key), err)
	}
	return n, nil
}

func boolFrom(v *viper.Viper, key string) (bool, error) {
	switch strings.ToLower(trimmed(v, key)) {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off", "":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", envName(key))
	}
}
