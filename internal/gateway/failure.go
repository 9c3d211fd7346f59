package gateway

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ErrorKind classifies a gateway failure for retry and rollback decisions.
type ErrorKind int

const (
	ErrUnknown ErrorKind = iota
	ErrNotFound
	ErrUnauthenticated
	ErrPermissionDenied
	ErrUnavailable
	ErrConflict
	// ErrPartialFailure marks a compound mutation that applied one leg
	// remotely and could not apply or compensate the other.
	ErrPartialFailure
)

func (k ErrorKind) String() string {
	switch k {
	case ErrNotFound:
		return "not found"
	case ErrUnauthenticated:
		return "unauthenticated"
	case ErrPermissionDenied:
		return "permission denied"
	case ErrUnavailable:
		return "unavailable"
	case ErrConflict:
		return "conflict"
	case ErrPartialFailure:
		return "partial failure"
	default:
		return "unknown"
	}
}

// Failure is the tagged error every gateway call resolves to. Callers
// branch on Kind, never on error strings.
type Failure struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (f *Failure) Error() string {
	if f.Err != nil {
		return fmt.Sprintf("gateway %s: %s: %v", f.Op, f.Kind, f.Err)
	}
	return fmt.Sprintf("gateway %s: %s", f.Op, f.Kind)
}

func (f *Failure) Unwrap() error { return f.Err }

// Retryable reports whether the failure is transient.
func (f *Failure) Retryable() bool { return f.Kind == ErrUnavailable }

// Fail builds a tagged failure.
func Fail(kind ErrorKind, op string, err error) *Failure {
	return &Failure{Kind: kind, Op: op, Err: err}
}

// KindOf extracts the failure kind from an error chain.
func KindOf(err error) ErrorKind {
	var f *Failure
	if errors.As(err, &f) {
		return f.Kind
	}
	return ErrUnknown
}

// IsKind reports whether err carries the given failure kind.
func IsKind(err error, kind ErrorKind) bool {
	return KindOf(err) == kind
}

// Classify maps backend and context errors onto the failure taxonomy. The
// backing store speaks gRPC, so status codes are the primary signal;
// context expiry counts as Unavailable per the bounded-wait rule.
func Classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var f *Failure
	if errors.As(err, &f) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Fail(ErrUnavailable, op, err)
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	if st, ok := status.FromError(err); ok {
		switch st.Code() {
		case codes.NotFound:
			return Fail(ErrNotFound, op, err)
		case codes.Unauthenticated:
			return Fail(ErrUnauthenticated, op, err)
		case codes.PermissionDenied:
			return Fail(ErrPermissionDenied, op, err)
		case codes.Unavailable, codes.DeadlineExceeded, codes.ResourceExhausted:
			return Fail(ErrUnavailable, op, err)
		case codes.Aborted, codes.FailedPrecondition, codes.AlreadyExists:
			return Fail(ErrConflict, op, err)
		}
	}
	return Fail(ErrUnknown, op, err)
}

// GRPCStatus converts the failure back to a gRPC status, for callers that
// front this module with an RPC surface.
func (f *Failure) GRPCStatus() *status.Status {
	var code codes.Code
	switch f.Kind {
	case ErrNotFound:
		code = codes.NotFound
	case ErrUnauthenticated:
		code = codes.Unauthenticated
	case ErrPermissionDenied:
		code = codes.PermissionDenied
	case ErrUnavailable:
		code = codes.Unavailable
	case ErrConflict:
		code = codes.Aborted
	case ErrPartialFailure:
		code = codes.DataLoss
	default:
		code = codes.Unknown
	}
	return status.New(code, f.Error())
}
