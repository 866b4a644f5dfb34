package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/helpdeskpro/helpdesk/internal/config"
)

type flakyProber struct {
	results []error
	calls   int
}

func (p *flakyProber) Health(ctx context.Context) error {
	err := p.results[p.calls%len(p.results)]
	p.calls++
	return err
}

type recordingNotifier struct {
	mu   sync.Mutex
	msgs []AlertMessage
}

func (n *recordingNotifier) Notify(ctx context.Context, msg AlertMessage) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.msgs = append(n.msgs, msg)
	return nil
}

func TestRunOnceNotifiesTransitions(t *testing.T) {
	down := errors.New("connection refused")
	prober := &flakyProber{results: []error{nil, nil, down, down, nil}}
	notifier := &recordingNotifier{}
	svc := NewService(prober, config.MonitoringConfig{Enabled: true}, zerolog.Nop(), notifier)

	if svc.Last() != nil {
		t.Fatalf("expected no status before first check")
	}

	for i := 0; i < 5; i++ {
		svc.RunOnce(context.Background())
	}

	if len(notifier.msgs) != 2 {
		t.Fatalf("expected 2 transitions, got %d: %+v", len(notifier.msgs), notifier.msgs)
	}
	if notifier.msgs[0].Severity != "critical" || !strings.Contains(notifier.msgs[0].Text, "connection refused") {
		t.Fatalf("unexpected down alert: %+v", notifier.msgs[0])
	}
	if notifier.msgs[1].Severity != "info" {
		t.Fatalf("unexpected recovery alert: %+v", notifier.msgs[1])
	}
	if last := svc.Last(); last == nil || !last.Up {
		t.Fatalf("expected last status up, got %+v", last)
	}
}

func TestFirstCheckDownNotifies(t *testing.T) {
	notifier := &recordingNotifier{}
	svc := NewService(&flakyProber{results: []error{errors.New("timeout")}}, config.MonitoringConfig{}, zerolog.Nop(), notifier)

	status := svc.RunOnce(context.Background())
	if status.Up || status.Error != "timeout" {
		t.Fatalf("unexpected status %+v", status)
	}
	if len(notifier.msgs) != 1 {
		t.Fatalf("expected alert on first failure")
	}
}

func TestStartDisabledIsNoop(t *testing.T) {
	prober := &flakyProber{results: []error{nil}}
	svc := NewService(prober, config.MonitoringConfig{Enabled: false}, zerolog.Nop(), nil)
	svc.Start(context.Background())
	svc.Stop()
	if prober.calls != 0 {
		t.Fatalf("disabled monitor must not probe")
	}
}

func TestSlackNotifierPostsText(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &got)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := NewSlackNotifier(srv.URL)
	if err := n.Notify(context.Background(), AlertMessage{Title: "Backend", Text: "fora", Severity: "critical"}); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if got["text"] != ":rotating_light: *Backend*\nfora" {
		t.Fatalf("unexpected payload %q", got["text"])
	}

	if NewSlackNotifier("") != nil {
		t.Fatalf("empty webhook must disable notifier")
	}
}
