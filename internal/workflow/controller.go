package workflow

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/jobson/jobson-cli/internal/events"
	"github.com/jobson/jobson-cli/internal/logging"
	"github.com/jobson/jobson-cli/internal/models"
)

// ErrStopped is returned by operations posted after the controller stopped.
var ErrStopped = errors.New("workflow controller stopped")

// Backend is the job service the workflow talks to.
type Backend interface {
	FetchJobSpecSummaries(ctx context.Context) ([]models.JobSpecSummary, error)
	FetchJobSpec(ctx context.Context, specID string) (*models.JobSpec, error)
	FetchJobDetails(ctx context.Context, jobID string) (*models.JobDetails, error)
	FetchJobInputs(ctx context.Context, jobID string) (map[string]any, error)
	FetchJobSpecForJob(ctx context.Context, jobID string) (*models.JobSpec, error)
	SubmitJobRequest(ctx context.Context, req models.JobRequest) (*models.JobCreatedResponse, error)
}

// Controller runs a Machine on a single goroutine. Backend calls run on their
// own goroutines and post their results back to the loop; user operations are
// posted to the loop and return once it has applied them.
type Controller struct {
	machine *Machine
	backend Backend
	bus     *events.EventBus
	log     *logging.Logger

	inbox   chan func(ctx context.Context)
	results chan Result
	stopped chan struct{}

	mu       sync.RWMutex
	snapshot State
	changed  chan struct{}
}

// NewController creates a controller. bus may be nil.
func NewController(backend Backend, opts Options, bus *events.EventBus, log *logging.Logger) *Controller {
	if log == nil {
		log = logging.Nop()
	}
	log = log.Named("workflow")
	m := NewMachine(opts, log)
	return &Controller{
		machine:  m,
		backend:  backend,
		bus:      bus,
		log:      log,
		inbox:    make(chan func(ctx context.Context)),
		results:  make(chan Result),
		stopped:  make(chan struct{}),
		snapshot: m.State(),
		changed:  make(chan struct{}),
	}
}

// Run starts the workflow and processes results and operations until ctx is
// cancelled.
func (c *Controller) Run(ctx context.Context) error {
	defer close(c.stopped)

	c.apply(ctx, func() Effect { return c.machine.Start() })
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case r := <-c.results:
			c.apply(ctx, func() Effect { return c.machine.Handle(r) })
		case op := <-c.inbox:
			op(ctx)
		}
	}
}

// apply runs a machine step, publishes the resulting state and launches the
// returned effect.
func (c *Controller) apply(ctx context.Context, step func() Effect) {
	old := c.machine.State()
	effect := step()
	c.publish(old, c.machine.State())
	if effect != nil {
		go c.perform(ctx, effect)
	}
}

func (c *Controller) publish(old, next State) {
	c.mu.Lock()
	c.snapshot = next
	close(c.changed)
	c.changed = make(chan struct{})
	c.mu.Unlock()

	if old.Kind() != next.Kind() {
		c.log.Debug().Str("from", old.Kind().String()).Str("to", next.Kind().String()).Msg("Workflow state changed")
		if ed, ok := next.(Editing); ok {
			for id, warning := range ed.Form.Warnings() {
				c.bus.PublishInputWarning(id, warning)
			}
		}
	}
	c.bus.PublishStateChange(old.Kind().String(), next.Kind().String(), Describe(next))
}

func (c *Controller) perform(ctx context.Context, effect Effect) {
	var r Result
	switch e := effect.(type) {
	case FetchSpecSummaries:
		specs, err := c.backend.FetchJobSpecSummaries(ctx)
		r = SpecSummariesLoaded{Gen: e.Gen, Specs: specs, Err: err}
	case FetchSpec:
		spec, err := c.backend.FetchJobSpec(ctx, e.SpecID)
		res := SpecLoaded{Gen: e.Gen, Err: err}
		if spec != nil {
			res.Spec = *spec
		}
		r = res
	case FetchJobDetails:
		details, err := c.backend.FetchJobDetails(ctx, e.JobID)
		res := JobDetailsLoaded{Gen: e.Gen, Err: err}
		if details != nil {
			res.Details = *details
		}
		r = res
	case FetchJobInputs:
		inputs, err := c.backend.FetchJobInputs(ctx, e.JobID)
		r = JobInputsLoaded{Gen: e.Gen, Inputs: inputs, Err: err}
	case FetchJobSpecForJob:
		spec, err := c.backend.FetchJobSpecForJob(ctx, e.JobID)
		res := JobSpecForJobLoaded{Gen: e.Gen, Err: err}
		if spec != nil {
			res.Spec = *spec
		}
		r = res
	case SubmitRequest:
		created, err := c.backend.SubmitJobRequest(ctx, e.Request)
		res := RequestSubmitted{Gen: e.Gen, Err: err}
		if created != nil {
			res.JobID = created.ID
		}
		r = res
	default:
		c.log.Error().Msgf("Unknown workflow effect %T", effect)
		return
	}

	if err := resultErr(r); err != nil && ctx.Err() == nil {
		c.bus.PublishLog(events.WarnLevel, fmt.Sprintf("%T failed", effect), err)
	}

	select {
	case c.results <- r:
	case <-c.stopped:
	}
}

// do posts an operation to the loop and waits for it to complete.
func (c *Controller) do(ctx context.Context, op func(ctx context.Context) error) error {
	done := make(chan error, 1)
	wrapped := func(loopCtx context.Context) { done <- op(loopCtx) }

	select {
	case c.inbox <- wrapped:
	case <-c.stopped:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	return <-done
}

// step posts a machine operation that may return an effect.
func (c *Controller) step(ctx context.Context, op func() (Effect, error)) error {
	return c.do(ctx, func(loopCtx context.Context) error {
		var opErr error
		c.apply(loopCtx, func() Effect {
			effect, err := op()
			opErr = err
			return effect
		})
		return opErr
	})
}

// State returns the latest published state.
func (c *Controller) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshot
}

// Wait blocks until cond holds for the published state and returns that state.
func (c *Controller) Wait(ctx context.Context, cond func(State) bool) (State, error) {
	for {
		c.mu.RLock()
		s, changed := c.snapshot, c.changed
		c.mu.RUnlock()

		if cond(s) {
			return s, nil
		}
		select {
		case <-changed:
		case <-c.stopped:
			return c.State(), ErrStopped
		case <-ctx.Done():
			return s, ctx.Err()
		}
	}
}

// WaitSettled blocks until the workflow is no longer waiting on the backend.
func (c *Controller) WaitSettled(ctx context.Context) (State, error) {
	return c.Wait(ctx, Settled)
}

// Retry re-runs the failed fetch or submission of the current state.
func (c *Controller) Retry(ctx context.Context) error {
	return c.step(ctx, c.machine.Retry)
}

// SetJobName changes the job name of the request being edited.
func (c *Controller) SetJobName(ctx context.Context, name string) error {
	return c.step(ctx, func() (Effect, error) {
		return nil, c.machine.SetJobName(name)
	})
}

// SetInput edits one input and returns the coercion warning, if any.
func (c *Controller) SetInput(ctx context.Context, id string, raw any) (string, error) {
	var warning string
	err := c.step(ctx, func() (Effect, error) {
		w, err := c.machine.SetInput(id, raw)
		warning = w
		return nil, err
	})
	return warning, err
}

// SelectSpec switches the request to another spec.
func (c *Controller) SelectSpec(ctx context.Context, specID string) error {
	return c.step(ctx, func() (Effect, error) {
		return c.machine.SelectSpec(specID)
	})
}

// Submit sends the current request. It returns once the submission started;
// use Wait to observe the outcome.
func (c *Controller) Submit(ctx context.Context) error {
	return c.step(ctx, c.machine.Submit)
}

// Download writes the current request to w as JSON.
func (c *Controller) Download(ctx context.Context, w io.Writer) error {
	return c.do(ctx, func(context.Context) error {
		return c.machine.Download(w)
	})
}
