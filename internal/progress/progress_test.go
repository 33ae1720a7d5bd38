package progress

import (
	"bytes"
	"context"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jobson/jobson-cli/internal/events"
)

type recordingReporter struct {
	NoOpProgress
	updates []int64
}

func (r *recordingReporter) Update(current int64) {
	r.updates = append(r.updates, current)
}

func TestProgressReader(t *testing.T) {
	rep := &recordingReporter{}
	pr := NewProgressReader(strings.NewReader("hello world"), rep)

	buf := make([]byte, 4)
	var out bytes.Buffer
	if _, err := io.CopyBuffer(&out, struct{ io.Reader }{pr}, buf); err != nil {
		t.Fatalf("copy failed: %v", err)
	}
	if out.String() != "hello world" {
		t.Errorf("unexpected content %q", out.String())
	}
	if len(rep.updates) == 0 || rep.updates[len(rep.updates)-1] != 11 {
		t.Errorf("expected final update of 11 bytes, got %v", rep.updates)
	}
}

func TestCLIProgress_WritesBar(t *testing.T) {
	var out bytes.Buffer
	p := NewCLIProgress(&out)
	p.Start(100, "input.csv")
	p.Update(50)
	p.Finish()
	if !strings.Contains(out.String(), "input.csv") {
		t.Errorf("expected description in output, got %q", out.String())
	}
}

// syncBuffer guards a bytes.Buffer written by the spinner goroutine.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestSpinner_FollowsPendingCount(t *testing.T) {
	bus := events.NewEventBus(16)
	defer bus.Close()

	s := NewSpinner(bus, &syncBuffer{})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	bus.PublishPendingRequests(1)
	waitFor(t, s.Active)

	bus.PublishPendingRequests(2)
	bus.PublishPendingRequests(0)
	waitFor(t, func() bool { return !s.Active() })

	cancel()
	<-done
}
