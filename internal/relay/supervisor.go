package relay

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	apperrors "github.com/Jlypx/BetterForward-enhance/internal/errors"
	"github.com/Jlypx/BetterForward-enhance/internal/metrics"
	"github.com/Jlypx/BetterForward-enhance/internal/model"
)

// Deliverer makes one delivery attempt.
type Deliverer interface {
	Deliver(ctx context.Context, job model.Job) error
}

type RetryPolicy struct {
	Base        time.Duration
	Multiplier  float64
	MaxAttempts int
	MaxDelay    time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Base:        time.Second,
		Multiplier:  2,
		MaxAttempts: 5,
		MaxDelay:    30 * time.Second,
	}
}

// Supervisor retries transient failures and records exactly one outcome per
// job.
type Supervisor struct {
	relay   Deliverer
	policy  RetryPolicy
	onFatal func(error)

	sleep   func(ctx context.Context, d time.Duration) error
	backOff func() backoff.BackOff
}

// NewSupervisor wraps relay. onFatal is called when storage stays
// unavailable after every retry; it may be nil.
func NewSupervisor(relay Deliverer, policy RetryPolicy, onFatal func(error)) *Supervisor {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	if policy.Multiplier < 1 {
		policy.Multiplier = 1
	}
	if onFatal == nil {
		onFatal = func(error) {}
	}
	return &Supervisor{
		relay:   relay,
		policy:  policy,
		onFatal: onFatal,
		sleep:   sleepContext,
		backOff: policy.NewBackOff,
	}
}

// NewBackOff returns a schedule whose n-th wait falls in [d/2, d] for
// d = Base * Multiplier^(n-1) capped at MaxDelay. backoff randomizes by
// ±factor around its interval, so both ends are scaled by 3/4 with a factor
// of 1/3.
func (p RetryPolicy) NewBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.Base * 3 / 4
	b.Multiplier = p.Multiplier
	b.MaxInterval = p.MaxDelay * 3 / 4
	if p.MaxDelay <= 0 {
		b.MaxInterval = time.Duration(1<<63 - 1)
	}
	b.RandomizationFactor = 1.0 / 3
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// Handle adapts Deliver to the worker pool.
func (s *Supervisor) Handle(ctx context.Context, job model.Job) {
	s.Deliver(ctx, job)
}

// Deliver runs the job until it is delivered, dropped, or out of attempts.
func (s *Supervisor) Deliver(ctx context.Context, job model.Job) model.Outcome {
	start := time.Now()
	out := model.Outcome{JobID: job.ID, Key: job.Key}

	schedule := s.backOff()
	var err error
	for attempt := 1; ; attempt++ {
		out.Attempts = attempt
		job.Attempt = attempt
		err = s.relay.Deliver(ctx, job)

		if err == nil {
			out.Status = model.OutcomeDelivered
			break
		}
		if ctx.Err() != nil {
			out.Status = model.OutcomeFailed
			break
		}
		if !retryable(err) {
			out.Status = model.OutcomeDropped
			break
		}
		if attempt >= s.policy.MaxAttempts {
			out.Status = model.OutcomeFailed
			if apperrors.Is(err, apperrors.ErrCodeStorageUnavailable) {
				s.onFatal(err)
			}
			break
		}

		wait := nextWait(schedule, apperrors.RetryAfterOf(err))
		metrics.IncRetry(string(apperrors.GetCode(err)))
		log.Debug().
			Err(err).
			Str("jobId", job.ID).
			Int("attempt", attempt).
			Dur("wait", wait).
			Msg("retrying delivery")

		if serr := s.sleep(ctx, wait); serr != nil {
			out.Status = model.OutcomeFailed
			break
		}
	}

	if err != nil {
		out.LastError = err.Error()
	}
	out.Duration = time.Since(start)
	s.record(job, out)
	return out
}

// Abandon records a Failed outcome for a job the pool gave up on.
func (s *Supervisor) Abandon(job model.Job, reason error) {
	out := model.Outcome{
		JobID:  job.ID,
		Key:    job.Key,
		Status: model.OutcomeFailed,
	}
	if reason != nil {
		out.LastError = reason.Error()
	}
	s.record(job, out)
}

// nextWait takes the next step of the schedule but never waits less than
// the upstream asked for.
func nextWait(schedule backoff.BackOff, retryAfter time.Duration) time.Duration {
	wait := schedule.NextBackOff()
	if wait == backoff.Stop {
		wait = 0
	}
	if retryAfter > wait {
		wait = retryAfter
	}
	return wait
}

func (s *Supervisor) record(job model.Job, out model.Outcome) {
	metrics.ObserveOutcome(string(job.Direction), string(out.Status), out.Attempts, out.Duration)

	var event *zerolog.Event
	switch out.Status {
	case model.OutcomeDelivered:
		event = log.Debug()
	case model.OutcomeDropped:
		event = log.Warn()
	default:
		event = log.Error()
	}
	if out.LastError != "" {
		event = event.Str("lastError", out.LastError)
	}
	event.
		Str("jobId", out.JobID).
		Str("key", out.Key).
		Str("kind", string(job.Kind)).
		Str("status", string(out.Status)).
		Int("attempts", out.Attempts).
		Int64("updateId", job.SourceEventID).
		Dur("duration", out.Duration).
		Msg("job finished")
}

// retryable reports whether another attempt could succeed. Unclassified
// errors are retried.
func retryable(err error) bool {
	appErr, ok := apperrors.AsAppError(err)
	if !ok {
		return true
	}
	switch appErr.Code {
	case apperrors.ErrCodeTransientTransport, apperrors.ErrCodeStorageUnavailable:
		return true
	default:
		return false
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
