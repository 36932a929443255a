package qp

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Limits bounds the work of a single solve.
type Limits struct {
	// MaxWorkingSetRecalculations caps the solver iterations (nWSR).
	MaxWorkingSetRecalculations int
	// CPUTime caps the wall time of a solve; zero means no cap.
	CPUTime time.Duration
}

// DefaultLimits matches the solver budget of the walking controller.
func DefaultLimits() Limits {
	return Limits{MaxWorkingSetRecalculations: 1000}
}

// Result is a successful solve.
type Result struct {
	X          []float64
	Objective  float64
	Iterations int
}

// Backend solves QPs. Init starts from x0 (nil for the origin); Hotstart
// reuses whatever the backend kept from the previous solve.
type Backend interface {
	Init(ctx context.Context, p *Problem, x0 []float64, lim Limits) (Result, error)
	Hotstart(ctx context.Context, p *Problem, lim Limits) (Result, error)
}

// State of a Session.
type State int

const (
	Uninitialized State = iota
	Initialized
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Initialized:
		return "initialized"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Session tracks whether its backend has been initialised, so the first
// solve runs Init and later ones Hotstart. A Session is not safe for
// concurrent use.
type Session struct {
	ID      string
	backend Backend
	limits  Limits
	state   State
}

// NewSession wraps a backend.
func NewSession(b Backend, lim Limits) *Session {
	return &Session{
		ID:      uuid.New().String(),
		backend: b,
		limits:  lim,
	}
}

// State returns the session state.
func (s *Session) State() State { return s.state }

// Limits returns the per-solve budget.
func (s *Session) Limits() Limits { return s.limits }

// Solve validates p and runs Init or Hotstart. A failed Init leaves the
// session uninitialised; a failed Hotstart keeps it initialised.
func (s *Session) Solve(ctx context.Context, p *Problem, x0 []float64) (Result, error) {
	if err := p.Validate(); err != nil {
		return Result{}, err
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	if s.state == Uninitialized {
		res, err := s.backend.Init(ctx, p, x0, s.limits)
		if err != nil {
			return Result{}, fmt.Errorf("session %s init: %w", s.ID, err)
		}
		s.state = Initialized
		return res, nil
	}
	res, err := s.backend.Hotstart(ctx, p, s.limits)
	if err != nil {
		return Result{}, fmt.Errorf("session %s hotstart: %w", s.ID, err)
	}
	return res, nil
}

// Reset forces the next Solve to run Init.
func (s *Session) Reset() { s.state = Uninitialized }
