package statussvc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/corray333/backend-labs/dispatcher/internal/service/models/status"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

// DefaultTimeout is the overall budget of one status check.
const DefaultTimeout = 15 * time.Second

var (
	// ErrBudgetExhausted is returned when a retry-after delay does not fit
	// into the remaining budget.
	ErrBudgetExhausted = errors.New("status check budget exhausted")
	// ErrNoResponse is returned when a call produced neither a status nor an error.
	ErrNoResponse = errors.New("empty status response")
)

// FailureError describes a failed status check.
type FailureError struct {
	LastRequestTime time.Duration
	RetriesCount    int
	Err             error
}

func (e *FailureError) Error() string {
	return fmt.Sprintf("status check failed after %d retries (last request %s): %v",
		e.RetriesCount, e.LastRequestTime, e.Err)
}

func (e *FailureError) Unwrap() error {
	return e.Err
}

// statusClient is one of the redundant status backends.
type statusClient interface {
	GetStatus(ctx context.Context, id string) status.Response
}

// StatusService races redundant status backends within a time budget.
type StatusService struct {
	primary   statusClient
	secondary statusClient
	timeout   time.Duration
}

// option is a function that configures the StatusService.
type option func(*StatusService)

// MustNewStatusService creates a new StatusService.
func MustNewStatusService(opts ...option) *StatusService {
	s := &StatusService{timeout: DefaultTimeout}
	for _, opt := range opts {
		opt(s)
	}

	if s.primary == nil || s.secondary == nil {
		panic("status service: both status clients must be set")
	}

	return s
}

// WithClients sets the two redundant status backends.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithClients(primary, secondary statusClient) option {
	return func(s *StatusService) {
		s.primary = primary
		s.secondary = secondary
	}
}

// WithTimeout sets the overall budget of one check.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithTimeout(d time.Duration) option {
	return func(s *StatusService) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// CheckStatus returns the status of the application with the given id.
// A failed check returns a *FailureError.
func (s *StatusService) CheckStatus(ctx context.Context, id string) (status.ApplicationStatus, error) {
	ctx, span := otel.Tracer("service").Start(ctx, "Service.CheckStatus")
	defer span.End()

	deadline := time.Now().Add(s.timeout)
	ctx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	retries := 0
	for {
		started := time.Now()
		resp := s.race(ctx, id)
		elapsed := time.Since(started)

		span.SetAttributes(attribute.Int("status.retries", retries))

		switch {
		case resp.Success != nil:
			return *resp.Success, nil
		case resp.RetryAfter != nil:
			delay := *resp.RetryAfter
			if time.Until(deadline)-delay <= 0 {
				return status.ApplicationStatus{}, &FailureError{
					LastRequestTime: elapsed,
					RetriesCount:    retries,
					Err:             ErrBudgetExhausted,
				}
			}

			if err := wait(ctx, delay); err != nil {
				return status.ApplicationStatus{}, &FailureError{
					LastRequestTime: elapsed,
					RetriesCount:    retries,
					Err:             err,
				}
			}

			retries++
			slog.Debug("Retrying status check", "application_id", id, "retries", retries, "delay", delay)
		default:
			err := resp.Failure
			if err == nil {
				err = ErrNoResponse
			}

			return status.ApplicationStatus{}, &FailureError{
				LastRequestTime: elapsed,
				RetriesCount:    retries,
				Err:             err,
			}
		}
	}
}

// race calls both backends and returns the first response that did not fail.
// If both fail, the last failure is returned.
func (s *StatusService) race(ctx context.Context, id string) status.Response {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	responses := make(chan status.Response, 2)
	for _, c := range []statusClient{s.primary, s.secondary} {
		c := c
		go func() {
			responses <- c.GetStatus(ctx, id)
		}()
	}

	var last status.Response
	for i := 0; i < 2; i++ {
		select {
		case <-ctx.Done():
			return status.Failed(ctx.Err())
		case resp := <-responses:
			if !resp.Failed() {
				return resp
			}
			last = resp
		}
	}

	return last
}

func wait(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
