package gateway

import (
	"context"
	"errors"
	"fmt"

	"github.com/ricirt/plinko-sync/internal/domain"
)

// Gateway applies one queued mutation to the remote store.
//
// Implementations must be idempotent per row: replaying an insert whose row
// exists, or a delete whose row is gone, succeeds. Every error they return
// should be classified with Transient or Permanent.
type Gateway interface {
	Apply(ctx context.Context, item domain.QueueItem) error
}

// Pinger is implemented by gateways that can cheaply check reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PeriodLister is implemented by gateways that can read the periods table,
// used to seed the local list at start-up.
type PeriodLister interface {
	ListPeriods(ctx context.Context) ([]domain.Period, error)
}

// Kind separates retryable failures from ones that can never succeed.
type Kind int

const (
	KindTransient Kind = iota
	KindPermanent
)

func (k Kind) String() string {
	if k == KindPermanent {
		return "permanent"
	}
	return "transient"
}

// Error is a classified gateway failure.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s gateway error: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Transient marks err as retryable: network trouble, timeouts, overload.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: KindTransient, Err: err}
}

// Permanent marks err as a mutation the remote store will never accept.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: KindPermanent, Err: err}
}

// IsPermanent reports whether err was classified as permanent.
func IsPermanent(err error) bool {
	var ge *Error
	return errors.As(err, &ge) && ge.Kind == KindPermanent
}

// IsTransient reports whether err should be retried. Unclassified errors are
// treated as transient, so an unexpected failure is retried rather than lost.
func IsTransient(err error) bool {
	return err != nil && !IsPermanent(err)
}
