package syncengine

import (
	"context"
	"errors"
	"time"

	"github.com/apex/log"
	"github.com/jpillora/backoff"

	"civicspot/apiclient"
	"civicspot/connectivity"
	"civicspot/drafts"
)

// Submitter sends one draft payload to the server.
type Submitter interface {
	Submit(ctx context.Context, p drafts.Payload) (*apiclient.SubmitResult, error)
}

// DefaultMaxAttempts bounds retries per draft before it is parked as failed.
const DefaultMaxAttempts = 5

// Result reports how one draft resolved during a drain.
type Result struct {
	DraftID string
	Created bool
	Outcome *apiclient.SubmitResult
	Err     error
}

// Engine drains the draft spool when connectivity comes back. Drafts are
// submitted strictly oldest first; a transiently failing draft is retried in
// place with exponential backoff so later drafts never overtake it.
type Engine struct {
	store       *drafts.Store
	client      Submitter
	maxAttempts int
	backoff     *backoff.Backoff

	// sleep is swapped out by tests to observe the backoff schedule.
	sleep func(ctx context.Context, d time.Duration) error

	results chan Result
}

// New creates a sync engine over the given spool and submitter.
func New(store *drafts.Store, client Submitter) *Engine {
	return &Engine{
		store:       store,
		client:      client,
		maxAttempts: DefaultMaxAttempts,
		backoff: &backoff.Backoff{
			Min:    2 * time.Second,
			Max:    60 * time.Second,
			Factor: 2,
		},
		sleep:   sleepCtx,
		results: make(chan Result, 16),
	}
}

// Results returns the per-draft outcome channel. Outcomes are dropped when
// nobody is listening.
func (e *Engine) Results() <-chan Result {
	return e.results
}

// Delay returns the backoff before retry number attempt (zero-based):
// 2s, 4s, 8s, ... capped at 60s.
func (e *Engine) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	return e.backoff.ForAttempt(float64(attempt))
}

// Run consumes connectivity edges and drains the spool on every
// offline-to-online transition. It returns when ctx is cancelled.
func (e *Engine) Run(ctx context.Context, events <-chan connectivity.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if !ev.Online {
				continue
			}
			if err := e.Drain(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Warnf("Drain interrupted: %v", err)
			}
		}
	}
}

// Drain submits every pending draft oldest first. A draft that is rejected or
// exhausts its retry budget is parked as failed and the drain moves on to the
// next one. It stops early only when ctx is cancelled or the spool errors;
// whatever is left stays pending for the next drain.
func (e *Engine) Drain(ctx context.Context) error {
	for {
		pending, err := e.store.Pending()
		if err != nil {
			return err
		}
		if len(pending) == 0 {
			return nil
		}

		d := pending[0]
		if err := e.submitOne(ctx, d); err != nil {
			return err
		}
	}
}

// submitOne pushes a single draft to resolution: removed on success or
// conflict, parked as failed on rejection or retry exhaustion. Transient
// failures sleep and retry the same draft to preserve submission order.
func (e *Engine) submitOne(ctx context.Context, d drafts.Draft) error {
	if err := e.store.BeginSubmit(d.ID); err != nil {
		return err
	}
	defer e.store.EndSubmit(d.ID)

	attempts := d.Attempts
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		result, err := e.client.Submit(ctx, d.Payload)
		if err == nil {
			if result.Created {
				log.Infof("Draft %s accepted as report %s", d.ID, result.Report.ID)
			} else {
				log.Infof("Draft %s matched existing report %s (upvoted)", d.ID, result.Conflict.ReportID)
			}
			if err := e.store.Remove(d.ID); err != nil {
				return err
			}
			e.report(Result{DraftID: d.ID, Created: result.Created, Outcome: result})
			return nil
		}

		if errors.Is(err, apiclient.ErrValidation) {
			log.Warnf("Draft %s rejected: %v", d.ID, err)
			if err := e.store.MarkFailed(d.ID, err); err != nil {
				return err
			}
			e.report(Result{DraftID: d.ID, Err: err})
			return nil
		}

		// Transient: count the attempt, then either park or back off and
		// retry the same draft.
		attempts++
		if markErr := e.store.MarkAttempt(d.ID, err); markErr != nil {
			return markErr
		}
		if attempts >= e.maxAttempts {
			log.Warnf("Draft %s exhausted %d attempts: %v", d.ID, attempts, err)
			if err := e.store.MarkFailed(d.ID, err); err != nil {
				return err
			}
			e.report(Result{DraftID: d.ID, Err: err})
			return nil
		}

		delay := e.Delay(attempts - 1)
		log.Infof("Draft %s attempt %d failed, retrying in %s: %v", d.ID, attempts, delay, err)
		if err := e.sleep(ctx, delay); err != nil {
			return err
		}
	}
}

func (e *Engine) report(r Result) {
	select {
	case e.results <- r:
	default:
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
