package httpapi

import (
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os/exec"
	"strings"
	"time"
)

type onboardingCheck struct {
	ID     string `json:"id"`
	Status string `json:"status"` // ok|warn|error
	Label  string `json:"label"`
	Detail string `json:"detail,omitempty"`
	Fix    string `json:"fix,omitempty"`
}

type onboardingStatusResponse struct {
	SpeechProvider string            `json:"speech_provider"`
	LibraryStore   string            `json:"library_store"`
	SessionState   string            `json:"session_state"`
	HostClients    int               `json:"host_clients"`
	Checks         []onboardingCheck `json:"checks"`
}

func (s *Server) handleOnboardingStatus(w http.ResponseWriter, _ *http.Request) {
	clients := s.hub.Clients()
	checks := make([]onboardingCheck, 0, 6)
	checks = append(checks, s.captureCheck())
	checks = append(checks, s.transcriptionCheck())
	checks = append(checks, s.speechCheck(clients))

	if s.libraryMode() == "postgres" {
		checks = append(checks, onboardingCheck{
			ID:     "library_store",
			Status: "ok",
			Label:  "Song library",
			Detail: "postgres",
		})
	} else {
		checks = append(checks, onboardingCheck{
			ID:     "library_store",
			Status: "warn",
			Label:  "Song library",
			Detail: "in-memory only",
			Fix:    "Set STEMVOICE_DATABASE_URL to keep the library across restarts.",
		})
	}

	if clients > 0 {
		checks = append(checks, onboardingCheck{
			ID:     "host_ui",
			Status: "ok",
			Label:  "Host UI",
			Detail: fmt.Sprintf("%d attached", clients),
		})
	} else {
		checks = append(checks, onboardingCheck{
			ID:     "host_ui",
			Status: "warn",
			Label:  "Host UI",
			Detail: "no UI attached",
			Fix:    "Open the app so voice commands have something to drive.",
		})
	}

	respondJSON(w, http.StatusOK, onboardingStatusResponse{
		SpeechProvider: s.cfg.SpeechProvider,
		LibraryStore:   s.libraryMode(),
		SessionState:   string(s.voice.Status().State),
		HostClients:    clients,
		Checks:         checks,
	})
}

func (s *Server) captureCheck() onboardingCheck {
	cli := strings.TrimSpace(s.cfg.CaptureCommand)
	if cli == "" {
		cli = "ffmpeg"
	}
	if _, err := exec.LookPath(cli); err != nil {
		return onboardingCheck{
			ID:     "capture_command",
			Status: "error",
			Label:  "Microphone capture",
			Detail: fmt.Sprintf("%s not found on PATH", cli),
			Fix:    "Install ffmpeg or set STEMVOICE_CAPTURE_COMMAND.",
		}
	}
	return onboardingCheck{
		ID:     "capture_command",
		Status: "ok",
		Label:  "Microphone capture",
		Detail: fmt.Sprintf("%s (%s)", cli, s.cfg.CaptureInputFormat),
	}
}

func (s *Server) transcriptionCheck() onboardingCheck {
	if err := dialReachable(s.cfg.TranscribeBaseURL); err != nil {
		return onboardingCheck{
			ID:     "transcription_server",
			Status: "error",
			Label:  "Transcription server",
			Detail: err.Error(),
			Fix:    "Start the transcription service or fix STEMVOICE_TRANSCRIBE_BASE_URL.",
		}
	}
	return onboardingCheck{
		ID:     "transcription_server",
		Status: "ok",
		Label:  "Transcription server",
		Detail: s.cfg.TranscribeBaseURL,
	}
}

func (s *Server) speechCheck(clients int) onboardingCheck {
	switch s.cfg.SpeechProvider {
	case "command":
		if _, err := exec.LookPath(s.cfg.SpeechCommand); err != nil {
			return onboardingCheck{
				ID:     "speech",
				Status: "warn",
				Label:  "Spoken feedback",
				Detail: fmt.Sprintf("%s not found on PATH", s.cfg.SpeechCommand),
				Fix:    "Install a speech CLI or set STEMVOICE_SPEECH_PROVIDER=host.",
			}
		}
		return onboardingCheck{ID: "speech", Status: "ok", Label: "Spoken feedback", Detail: s.cfg.SpeechCommand}
	case "host":
		if clients == 0 {
			return onboardingCheck{
				ID:     "speech",
				Status: "warn",
				Label:  "Spoken feedback",
				Detail: "spoken by the host UI; none attached",
			}
		}
		return onboardingCheck{ID: "speech", Status: "ok", Label: "Spoken feedback", Detail: "host UI"}
	default:
		return onboardingCheck{
			ID:     "speech",
			Status: "warn",
			Label:  "Spoken feedback",
			Detail: "disabled",
			Fix:    "Set STEMVOICE_SPEECH_PROVIDER=host or command.",
		}
	}
}

func dialReachable(raw string) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return err
	}
	host := strings.TrimSpace(u.Host)
	if host == "" {
		return fmt.Errorf("host missing")
	}
	addr := host
	if u.Port() == "" {
		port := "80"
		if u.Scheme == "https" || u.Scheme == "wss" {
			port = "443"
		}
		addr = net.JoinHostPort(u.Hostname(), port)
	}
	c, err := net.DialTimeout("tcp", addr, 250*time.Millisecond)
	if err != nil {
		return err
	}
	_ = c.Close()
	return nil
}
