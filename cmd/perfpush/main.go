package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/antoniostano/missioncontrol/internal/protocol"
	"github.com/antoniostano/missioncontrol/internal/store"
)

type options struct {
	baseURL       string
	subscribers   int
	updates       int
	interUpdate   time.Duration
	updateTimeout time.Duration
	verbose       bool
}

var statusCycle = []string{"New", "In Progress", "Built", "Backlog"}

func main() {
	cfg, err := parseFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "perfpush: %v\n", err)
		os.Exit(2)
	}
	res, err := run(context.Background(), cfg, http.DefaultClient)
	if err != nil {
		fmt.Fprintf(os.Stderr, "perfpush: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(res.String())
}

func parseFlags(args []string) (options, error) {
	var cfg options
	var interUpdateMS, timeoutMS int

	fs := flag.NewFlagSet("perfpush", flag.ContinueOnError)
	fs.StringVar(&cfg.baseURL, "base-url", "http://127.0.0.1:8080", "mission control base URL")
	fs.IntVar(&cfg.subscribers, "subscribers", 8, "number of concurrent websocket subscribers")
	fs.IntVar(&cfg.updates, "updates", 20, "number of task updates to push")
	fs.IntVar(&interUpdateMS, "inter-update-ms", 50, "delay between updates in milliseconds")
	fs.IntVar(&timeoutMS, "update-timeout-ms", 5000, "timeout waiting for every subscriber to see an update")
	fs.BoolVar(&cfg.verbose, "verbose", false, "print per-update progress")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}

	cfg.baseURL = strings.TrimRight(strings.TrimSpace(cfg.baseURL), "/")
	if cfg.baseURL == "" {
		return options{}, fmt.Errorf("base-url is required")
	}
	if cfg.subscribers <= 0 {
		return options{}, fmt.Errorf("subscribers must be > 0")
	}
	if cfg.updates <= 0 {
		return options{}, fmt.Errorf("updates must be > 0")
	}
	if interUpdateMS < 0 {
		interUpdateMS = 0
	}
	if timeoutMS < 100 {
		timeoutMS = 100
	}
	cfg.interUpdate = time.Duration(interUpdateMS) * time.Millisecond
	cfg.updateTimeout = time.Duration(timeoutMS) * time.Millisecond
	return cfg, nil
}

type result struct {
	Subscribers int
	Updates     int
	Samples     []time.Duration
}

func (r result) percentile(q float64) time.Duration {
	if len(r.Samples) == 0 {
		return 0
	}
	sorted := append([]time.Duration(nil), r.Samples...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	idx := int(q * float64(len(sorted)-1))
	return sorted[idx]
}

func (r result) String() string {
	return fmt.Sprintf("perfpush: subscribers=%d updates=%d deliveries=%d p50=%s p95=%s max=%s",
		r.Subscribers, r.Updates, len(r.Samples),
		r.percentile(0.50).Round(time.Microsecond),
		r.percentile(0.95).Round(time.Microsecond),
		r.percentile(1).Round(time.Microsecond))
}

type arrival struct {
	status string
	at     time.Time
}

func run(ctx context.Context, cfg options, client *http.Client) (result, error) {
	task, err := createTask(ctx, client, cfg.baseURL)
	if err != nil {
		return result{}, fmt.Errorf("create task: %w", err)
	}
	defer func() {
		_ = deleteTask(context.Background(), client, cfg.baseURL, task.ID)
	}()

	wsURL, err := wsURLFor(cfg.baseURL)
	if err != nil {
		return result{}, fmt.Errorf("build ws URL: %w", err)
	}

	arrivals := make(chan arrival, cfg.subscribers*4)
	readErrCh := make(chan error, cfg.subscribers)
	conns := make([]*websocket.Conn, 0, cfg.subscribers)
	defer func() {
		for _, c := range conns {
			_ = c.Close()
		}
	}()
	for i := 0; i < cfg.subscribers; i++ {
		conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
		if err != nil {
			return result{}, fmt.Errorf("open websocket %d: %w", i, err)
		}
		conns = append(conns, conn)
		go readLoop(conn, task.ID, arrivals, readErrCh)
	}
	if err := waitForSubscribers(ctx, client, cfg.baseURL, cfg.subscribers, cfg.updateTimeout); err != nil {
		return result{}, err
	}

	res := result{Subscribers: cfg.subscribers, Updates: cfg.updates}
	for i := 0; i < cfg.updates; i++ {
		status := statusCycle[i%len(statusCycle)]
		sent := time.Now()
		if err := patchStatus(ctx, client, cfg.baseURL, task.ID, status); err != nil {
			return res, fmt.Errorf("update %d: %w", i, err)
		}

		deadline := time.NewTimer(cfg.updateTimeout)
		seen := 0
		for seen < cfg.subscribers {
			select {
			case a := <-arrivals:
				if a.status != status {
					continue
				}
				res.Samples = append(res.Samples, a.at.Sub(sent))
				seen++
			case err := <-readErrCh:
				deadline.Stop()
				return res, fmt.Errorf("ws read: %w", err)
			case <-deadline.C:
				return res, fmt.Errorf("update %d: %d/%d subscribers saw it before timeout", i, seen, cfg.subscribers)
			case <-ctx.Done():
				deadline.Stop()
				return res, ctx.Err()
			}
		}
		deadline.Stop()
		if cfg.verbose {
			fmt.Printf("perfpush: update=%d status=%q delivered=%d\n", i+1, status, seen)
		}
		if cfg.interUpdate > 0 {
			time.Sleep(cfg.interUpdate)
		}
	}
	return res, nil
}

func readLoop(conn *websocket.Conn, taskID int64, arrivals chan<- arrival, readErrCh chan<- error) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure) && !strings.Contains(err.Error(), "use of closed") {
				select {
				case readErrCh <- err:
				default:
				}
			}
			return
		}
		now := time.Now()
		var msg protocol.TaskUpdated
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		if msg.Event != protocol.EventTaskUpdated || msg.Task.ID != taskID {
			continue
		}
		arrivals <- arrival{status: msg.Task.Status, at: now}
	}
}

// waitForSubscribers polls /readyz because the server registers a subscriber
// only after the handshake has completed on its side.
func waitForSubscribers(ctx context.Context, client *http.Client, baseURL string, want int, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		var ready struct {
			Subscribers int `json:"subscribers"`
		}
		if err := doJSON(ctx, client, http.MethodGet, baseURL+"/readyz", nil, http.StatusOK, &ready); err != nil {
			return fmt.Errorf("readyz: %w", err)
		}
		if ready.Subscribers >= want {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("only %d/%d subscribers registered", ready.Subscribers, want)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func wsURLFor(baseURL string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws"
	return u.String(), nil
}

func createTask(ctx context.Context, client *http.Client, baseURL string) (store.Task, error) {
	var task store.Task
	err := doJSON(ctx, client, http.MethodPost, baseURL+"/api/tasks", map[string]any{
		"text": "perfpush probe " + time.Now().UTC().Format(time.RFC3339),
		"type": "Perf",
	}, http.StatusCreated, &task)
	return task, err
}

func patchStatus(ctx context.Context, client *http.Client, baseURL string, id int64, status string) error {
	return doJSON(ctx, client, http.MethodPatch, fmt.Sprintf("%s/api/tasks/%d", baseURL, id), map[string]any{
		"status": status,
	}, http.StatusOK, nil)
}

func deleteTask(ctx context.Context, client *http.Client, baseURL string, id int64) error {
	return doJSON(ctx, client, http.MethodDelete, fmt.Sprintf("%s/api/tasks/%d", baseURL, id), nil, http.StatusNoContent, nil)
}

func doJSON(ctx context.Context, client *http.Client, method, endpoint string, body any, want int, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	res, err := client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode != want {
		msg, _ := io.ReadAll(io.LimitReader(res.Body, 2048))
		return fmt.Errorf("%s %s: status=%d body=%s", method, endpoint, res.StatusCode, strings.TrimSpace(string(msg)))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(res.Body).Decode(out)
}
