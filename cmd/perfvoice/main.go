package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ent0n29/stemvoice/internal/protocol"
)

type options struct {
	baseURL      string
	cycles       int
	hold         time.Duration
	interCycle   time.Duration
	stateTimeout time.Duration
	touch        bool
	verbose      bool
}

type wsEnvelope struct {
	Type    string `json:"type"`
	ID      string `json:"id,omitempty"`
	State   string `json:"state,omitempty"`
	Text    string `json:"text,omitempty"`
	Level   string `json:"level,omitempty"`
	Message string `json:"message,omitempty"`
	Action  string `json:"action,omitempty"`
}

type cycleResult struct {
	StartToOnline time.Duration
	StopToOffline time.Duration
}

func main() {
	cfg, err := parseFlags()
	if err != nil {
		fmt.Fprintf(os.Stderr, "perfvoice: %v\n", err)
		os.Exit(2)
	}
	if err := run(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "perfvoice: %v\n", err)
		os.Exit(1)
	}
}

func parseFlags() (options, error) {
	var cfg options
	var holdMS int
	var interCycleMS int
	var stateTimeoutMS int

	flag.StringVar(&cfg.baseURL, "base-url", "http://127.0.0.1:8090", "stemvoice base URL")
	flag.IntVar(&cfg.cycles, "cycles", 5, "number of start/stop cycles")
	flag.IntVar(&holdMS, "hold-ms", 1500, "how long each session stays online in milliseconds")
	flag.IntVar(&interCycleMS, "inter-cycle-ms", 300, "delay between cycles in milliseconds")
	flag.IntVar(&stateTimeoutMS, "state-timeout-ms", 15000, "timeout waiting for a state change in milliseconds")
	flag.BoolVar(&cfg.touch, "touch", false, "announce this client as a touch device")
	flag.BoolVar(&cfg.verbose, "verbose", true, "print cycle progress")
	flag.Parse()

	cfg.baseURL = strings.TrimRight(strings.TrimSpace(cfg.baseURL), "/")
	if cfg.baseURL == "" {
		return options{}, fmt.Errorf("base-url is required")
	}
	if cfg.cycles <= 0 {
		return options{}, fmt.Errorf("cycles must be > 0")
	}
	if holdMS < 0 {
		holdMS = 0
	}
	if interCycleMS < 0 {
		interCycleMS = 0
	}
	if stateTimeoutMS < 1000 {
		stateTimeoutMS = 1000
	}
	cfg.hold = time.Duration(holdMS) * time.Millisecond
	cfg.interCycle = time.Duration(interCycleMS) * time.Millisecond
	cfg.stateTimeout = time.Duration(stateTimeoutMS) * time.Millisecond
	return cfg, nil
}

func run(cfg options) error {
	ctx, cancel := context.WithTimeout(context.Background(), 8*time.Minute)
	defer cancel()

	wsURL, err := hostWSURL(cfg.baseURL)
	if err != nil {
		return fmt.Errorf("build ws URL: %w", err)
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("open host websocket: %w", err)
	}
	defer conn.Close()

	if err := conn.WriteJSON(protocol.Hello{Type: protocol.TypeHello, Touch: cfg.touch}); err != nil {
		return fmt.Errorf("send hello: %w", err)
	}

	replies := make(chan any, 32)
	states := make(chan string, 32)
	readErrCh := make(chan error, 1)
	go readLoop(conn, states, replies, readErrCh, cfg.verbose)
	go writeLoop(conn, replies)

	httpClient := &http.Client{Timeout: 45 * time.Second}
	defer func() {
		_ = post(context.Background(), httpClient, cfg.baseURL+"/v1/voice/session/stop")
	}()

	if cfg.verbose {
		fmt.Printf("perfvoice: cycles=%d hold=%s touch=%t\n", cfg.cycles, cfg.hold, cfg.touch)
	}

	results := make([]cycleResult, 0, cfg.cycles)
	for i := 0; i < cfg.cycles; i++ {
		drainStates(states)

		began := time.Now()
		if err := post(ctx, httpClient, cfg.baseURL+"/v1/voice/session/start"); err != nil {
			return fmt.Errorf("cycle %d start: %w", i+1, err)
		}
		if err := awaitState(states, readErrCh, "online", cfg.stateTimeout); err != nil {
			return fmt.Errorf("cycle %d await online: %w", i+1, err)
		}
		res := cycleResult{StartToOnline: time.Since(began)}

		if cfg.hold > 0 {
			time.Sleep(cfg.hold)
		}

		stopped := time.Now()
		if err := post(ctx, httpClient, cfg.baseURL+"/v1/voice/session/stop"); err != nil {
			return fmt.Errorf("cycle %d stop: %w", i+1, err)
		}
		if err := awaitState(states, readErrCh, "offline", cfg.stateTimeout); err != nil {
			return fmt.Errorf("cycle %d await offline: %w", i+1, err)
		}
		res.StopToOffline = time.Since(stopped)
		results = append(results, res)

		if cfg.verbose {
			fmt.Printf("perfvoice: cycle %d/%d start_to_online=%s stop_to_offline=%s\n",
				i+1, cfg.cycles, res.StartToOnline.Round(time.Millisecond), res.StopToOffline.Round(time.Millisecond))
		}
		if cfg.interCycle > 0 && i < cfg.cycles-1 {
			time.Sleep(cfg.interCycle)
		}
	}

	online := make([]time.Duration, 0, len(results))
	offline := make([]time.Duration, 0, len(results))
	for _, r := range results {
		online = append(online, r.StartToOnline)
		offline = append(offline, r.StopToOffline)
	}
	fmt.Printf("perfvoice: start_to_online p50=%s p95=%s\n", percentile(online, 0.50), percentile(online, 0.95))
	fmt.Printf("perfvoice: stop_to_offline p50=%s p95=%s\n", percentile(offline, 0.50), percentile(offline, 0.95))

	if snapshot, err := fetchPerf(ctx, httpClient, cfg.baseURL); err == nil {
		fmt.Printf("perfvoice: server stages %s\n", snapshot)
	} else if cfg.verbose {
		fmt.Fprintf(os.Stderr, "perfvoice: fetch perf window: %v\n", err)
	}
	return nil
}

func post(ctx context.Context, client *http.Client, target string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, nil)
	if err != nil {
		return err
	}
	res, err := client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	body, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return err
	}
	if res.StatusCode != http.StatusOK {
		return fmt.Errorf("HTTP %d: %s", res.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}

func fetchPerf(ctx context.Context, client *http.Client, baseURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/v1/perf/latency", nil)
	if err != nil {
		return "", err
	}
	res, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer res.Body.Close()
	body, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return "", err
	}
	if res.StatusCode != http.StatusOK {
		return "", fmt.Errorf("HTTP %d", res.StatusCode)
	}
	return strings.TrimSpace(string(body)), nil
}

func hostWSURL(baseURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return "", err
	}
	switch strings.ToLower(u.Scheme) {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported base-url scheme %q", u.Scheme)
	}
	if strings.TrimSpace(u.Host) == "" {
		return "", fmt.Errorf("base-url host is required")
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/v1/host/ws"
	return u.String(), nil
}

// readLoop acts as a headless host UI: pickers always open and speech ends
// immediately.
func readLoop(conn *websocket.Conn, states chan<- string, replies chan<- any, readErrCh chan<- error, verbose bool) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			select {
			case readErrCh <- err:
			default:
			}
			close(replies)
			return
		}

		var env wsEnvelope
		if err := json.Unmarshal(data, &env); err != nil {
			continue
		}
		if reply := replyFor(env); reply != nil {
			replies <- reply
		}
		switch protocol.MessageType(env.Type) {
		case protocol.TypeState:
			select {
			case states <- env.State:
			default:
			}
		case protocol.TypeNotify:
			if verbose {
				fmt.Fprintf(os.Stderr, "perfvoice: notify level=%s message=%s\n", env.Level, env.Message)
			}
		case protocol.TypeSpeak:
			if verbose {
				fmt.Printf("perfvoice: speak %q\n", env.Text)
			}
		}
	}
}

func replyFor(env wsEnvelope) any {
	switch protocol.MessageType(env.Type) {
	case protocol.TypePickerRequest:
		return protocol.PickerResult{Type: protocol.TypePickerResult, ID: env.ID, Opened: true}
	case protocol.TypeSpeak:
		return protocol.SpeechEnded{Type: protocol.TypeSpeechEnded, ID: env.ID}
	default:
		return nil
	}
}

func writeLoop(conn *websocket.Conn, replies <-chan any) {
	for msg := range replies {
		_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := conn.WriteJSON(msg); err != nil {
			return
		}
	}
}

func drainStates(states <-chan string) {
	for {
		select {
		case <-states:
		default:
			return
		}
	}
}

func awaitState(states <-chan string, readErrCh <-chan error, want string, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		select {
		case got := <-states:
			if got == want {
				return nil
			}
		case err := <-readErrCh:
			return err
		case <-timer.C:
			return fmt.Errorf("timeout after %s", timeout)
		}
	}
}

func percentile(samples []time.Duration, q float64) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	sorted := append([]time.Duration(nil), samples...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	// nearest rank
	idx := int(math.Ceil(q*float64(len(sorted)))) - 1
	if idx < 0 {
		idx = 0
	}
	return sorted[idx].Round(time.Millisecond)
}
