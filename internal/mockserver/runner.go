package mockserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jobson/jobson-cli/internal/events"
	"github.com/jobson/jobson-cli/internal/logging"
	"github.com/jobson/jobson-cli/internal/models"
)

var errNotAbortable = errors.New("job is not running")

// runner plays a job through submitted, running and finished, echoing its
// inputs to stdout. Each step waits for delay.
type runner struct {
	store *Store
	bus   *events.EventBus
	log   *logging.Logger
	delay time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	running map[string]context.CancelFunc
}

func newRunner(store *Store, bus *events.EventBus, log *logging.Logger, delay time.Duration) *runner {
	ctx, cancel := context.WithCancel(context.Background())
	return &runner{
		store:   store,
		bus:     bus,
		log:     log,
		delay:   delay,
		ctx:     ctx,
		cancel:  cancel,
		running: make(map[string]context.CancelFunc),
	}
}

func (r *runner) start(id string, spec models.JobSpec, req models.JobRequest) {
	jobCtx, cancel := context.WithCancel(r.ctx)
	r.mu.Lock()
	r.running[id] = cancel
	r.mu.Unlock()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		status, message := r.run(jobCtx, id, spec, req)

		// Stop accepting aborts before the final status becomes visible.
		r.mu.Lock()
		delete(r.running, id)
		r.mu.Unlock()
		cancel()

		if err := r.setStatus(id, status, message); err != nil {
			r.log.Error().Err(err).Str("job", id).Msg("Failed to record final status")
		}
	}()
}

func (r *runner) run(ctx context.Context, id string, spec models.JobSpec, req models.JobRequest) (string, string) {
	if !r.wait(ctx) {
		return StatusAborted, "aborted before start"
	}
	if err := r.setStatus(id, StatusRunning, ""); err != nil {
		return StatusFatalError, err.Error()
	}

	for _, in := range spec.ExpectedInputs {
		v, ok := req.Inputs[in.ID]
		if !ok {
			v, _ = in.DefaultValue()
		}
		line := fmt.Sprintf("%s=%s\n", in.ID, describeValue(in, v))
		if err := r.write(id, StreamStdout, []byte(line)); err != nil {
			return StatusFatalError, err.Error()
		}
	}

	if !r.wait(ctx) {
		r.write(id, StreamStderr, []byte("received abort signal\n"))
		return StatusAborted, "aborted by user"
	}
	return StatusFinished, ""
}

func (r *runner) wait(ctx context.Context) bool {
	t := time.NewTimer(r.delay)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

func (r *runner) setStatus(id, status, message string) error {
	if err := r.store.AddStatus(context.Background(), id, status, message, time.Now()); err != nil {
		return err
	}
	r.log.Debug().Str("job", id).Str("status", status).Msg("Job status changed")
	r.bus.PublishJobStatus(id, status)
	return nil
}

func (r *runner) write(id, stream string, data []byte) error {
	if err := r.store.AppendOutput(context.Background(), id, stream, data); err != nil {
		return err
	}
	r.bus.PublishJobOutput(id, stream, data)
	return nil
}

// abort stops a job that has not finished yet.
func (r *runner) abort(id string) error {
	r.mu.Lock()
	cancel, ok := r.running[id]
	r.mu.Unlock()
	if !ok {
		return errNotAbortable
	}
	cancel()
	return nil
}

// close aborts every job and waits for the runners to record it.
func (r *runner) close() {
	r.cancel()
	r.wg.Wait()
}

func describeValue(in models.ExpectedInput, v any) string {
	switch in.Type {
	case models.InputTypeFile:
		if f, ok := v.(map[string]any); ok {
			return fmt.Sprintf("%v", f["filename"])
		}
	case models.InputTypeFileArray:
		if files, ok := v.([]any); ok {
			return fmt.Sprintf("%d files", len(files))
		}
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(data)
}
