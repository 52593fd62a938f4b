// Package update drives a device update: it prepares a plan from the local
// and remote manifests and executes it one file at a time.
package update

import (
	"context"
	"fmt"

	"github.com/adamancini/firmup/internal/logging"
	"github.com/adamancini/firmup/internal/plan"
)

// Fetcher downloads files published for a device model.
type Fetcher interface {
	URL(model, file string) string
	Fetch(ctx context.Context, model, file string) ([]byte, error)
}

// Confirmer asks whether a plan may be applied.
type Confirmer interface {
	Confirm(p *plan.Plan) bool
}

// ConfirmFunc adapts a function to Confirmer.
type ConfirmFunc func(p *plan.Plan) bool

// Confirm implements Confirmer.
func (f ConfirmFunc) Confirm(p *plan.Plan) bool { return f(p) }

// Persister writes a whole file to the device.
type Persister interface {
	Persist(name string, data []byte) error
}

// PersistFunc adapts a function to Persister.
type PersistFunc func(name string, data []byte) error

// Persist implements Persister.
func (f PersistFunc) Persist(name string, data []byte) error { return f(name, data) }

// Observer is told about progress while a plan is applied.
type Observer interface {
	Fetching(a plan.Action, url string)
	Fetched(a plan.Action, n int)
	Written(a plan.Action, n int)
}

type nopObserver struct{}

func (nopObserver) Fetching(plan.Action, string) {}
func (nopObserver) Fetched(plan.Action, int)     {}
func (nopObserver) Written(plan.Action, int)     {}

// Summary is the outcome of a run.
type Summary struct {
	Model        string       `json:"model" yaml:"model"`
	State        State        `json:"state" yaml:"state"`
	History      []State      `json:"history" yaml:"history"`
	Written      []string     `json:"written,omitempty" yaml:"written,omitempty"`
	BytesWritten int64        `json:"bytes_written" yaml:"bytes_written"`
	Failed       *plan.Action `json:"failed,omitempty" yaml:"failed,omitempty"`
	Error        string       `json:"error,omitempty" yaml:"error,omitempty"`
}

// Executor applies a plan.
type Executor struct {
	fetcher   Fetcher
	confirmer Confirmer
	persister Persister
	observer  Observer
	log       logging.Logger
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithObserver reports progress to o.
func WithObserver(o Observer) ExecutorOption {
	return func(e *Executor) {
		if o != nil {
			e.observer = o
		}
	}
}

// WithExecutorLogger sets the logger.
func WithExecutorLogger(log logging.Logger) ExecutorOption {
	return func(e *Executor) {
		e.log = log
	}
}

// NewExecutor creates an executor.
func NewExecutor(f Fetcher, c Confirmer, p Persister, opts ...ExecutorOption) *Executor {
	e := &Executor{
		fetcher:   f,
		confirmer: c,
		persister: p,
		observer:  nopObserver{},
		log:       logging.New("executor"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run applies p to the device of the given model.
//
// An empty plan ends in StateUpToDate without prompting. Otherwise the
// confirmer is asked once; a refusal ends in StateCancelled with nothing
// fetched or written. Actions are then applied strictly in order. The first
// fetch failure, size mismatch or write failure ends the run in
// StateAborted; files written before that stay written.
func (e *Executor) Run(ctx context.Context, model string, p *plan.Plan) (*Summary, error) {
	m := newMachine()
	s := &Summary{Model: model}
	finish := func(err error) (*Summary, error) {
		s.State = m.current
		s.History = m.history
		if err != nil {
			s.Error = err.Error()
		}
		return s, err
	}

	if p.NoUpdateNeeded() {
		if err := m.to(StateUpToDate); err != nil {
			return finish(err)
		}
		e.log.Info("all components are up to date")
		return finish(nil)
	}

	for _, next := range []State{StatePlanReady, StateAwaitingConfirmation} {
		if err := m.to(next); err != nil {
			return finish(err)
		}
	}

	if !e.confirmer.Confirm(p) {
		if err := m.to(StateCancelled); err != nil {
			return finish(err)
		}
		e.log.Info("update declined")
		return finish(nil)
	}

	if err := m.to(StateUpdating); err != nil {
		return finish(err)
	}

	for i := range p.Actions {
		a := p.Actions[i]
		n, err := e.apply(ctx, model, a)
		if err != nil {
			s.Failed = &a
			if terr := m.to(StateAborted); terr != nil {
				return finish(terr)
			}
			e.log.WithError(err).WithField("file", a.File).Error("update aborted")
			return finish(err)
		}
		s.Written = append(s.Written, a.File)
		s.BytesWritten += int64(n)
	}

	if err := m.to(StateCompleted); err != nil {
		return finish(err)
	}
	return finish(nil)
}

// apply fetches, validates and persists one action.
func (e *Executor) apply(ctx context.Context, model string, a plan.Action) (int, error) {
	e.observer.Fetching(a, e.fetcher.URL(model, a.File))

	data, err := e.fetcher.Fetch(ctx, model, a.File)
	if err != nil {
		return 0, err
	}
	e.observer.Fetched(a, len(data))

	if want, ok := a.ExpectedSize(); ok && int64(len(data)) != want {
		return 0, &SizeMismatchError{File: a.File, Expected: want, Actual: int64(len(data))}
	}

	if err := e.persister.Persist(a.File, data); err != nil {
		return 0, &IOError{Path: a.File, Err: err}
	}
	e.observer.Written(a, len(data))

	e.log.WithFields(map[string]interface{}{
		"file":  a.File,
		"bytes": len(data),
	}).Debug("component written")

	return len(data), nil
}

func (s *Summary) String() string {
	switch s.State {
	case StateUpToDate:
		return "nothing to do"
	case StateCancelled:
		return "update cancelled, no files were changed"
	case StateCompleted:
		return fmt.Sprintf("updated %d files (%d bytes)", len(s.Written), s.BytesWritten)
	case StateAborted:
		file := ""
		if s.Failed != nil {
			file = s.Failed.File
		}
		return fmt.Sprintf("update aborted at %s after writing %d files: %s", file, len(s.Written), s.Error)
	default:
		return string(s.State)
	}
}
