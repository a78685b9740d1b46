package harness

import (
	"errors"
	"fmt"
)

// Kind classifies harness failures. Every kind is fatal to the run.
type Kind int

const (
	KindConfig Kind = iota + 1
	KindEngineConstruction
	KindEngineRun
	KindEnvironmentUnavailable
	KindFilesystem
)

func (k Kind) String() string {
	switch k {
	case KindConfig:
		return "config"
	case KindEngineConstruction:
		return "engine construction"
	case KindEngineRun:
		return "engine run"
	case KindEnvironmentUnavailable:
		return "environment unavailable"
	case KindFilesystem:
		return "filesystem"
	default:
		return "unknown"
	}
}

// Sentinels for errors.Is; they match any *Error of the same kind.
var (
	ErrConfig                 = &Error{Kind: KindConfig, Batch: noBatch}
	ErrEngineConstruction     = &Error{Kind: KindEngineConstruction, Batch: noBatch}
	ErrEngineRun              = &Error{Kind: KindEngineRun, Batch: noBatch}
	ErrEnvironmentUnavailable = &Error{Kind: KindEnvironmentUnavailable, Batch: noBatch}
	ErrFilesystem             = &Error{Kind: KindFilesystem, Batch: noBatch}
)

const noBatch = -1

type Error struct {
	Kind Kind
	Op   string
	// Batch is the zero-based batch index, or -1 outside the batch loop.
	Batch int
	Err   error
}

func newError(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Batch: noBatch, Err: err}
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Op != "" {
		msg += ": " + e.Op
	}
	if e.Batch != noBatch {
		msg += fmt.Sprintf(" (batch %d)", e.Batch)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return t.Kind == e.Kind
	}
	return false
}

// KindOf returns the kind of the first *Error in err's chain, or 0.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

// atBatch returns err stamped with a batch index if its first *Error has
// none. err itself is never modified.
func atBatch(err error, batch int) error {
	var e *Error
	if !errors.As(err, &e) || e.Batch != noBatch {
		return err
	}
	if direct, ok := err.(*Error); ok {
		cp := *direct
		cp.Batch = batch
		return &cp
	}
	return &Error{Kind: e.Kind, Batch: batch, Err: err}
}
