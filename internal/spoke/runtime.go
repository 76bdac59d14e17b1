// Package spoke implements the generic bound-spoke loop and its two
// variants: sampling (cycler-driven) and fixed-set (re-evaluate on every new
// iterate).
package spoke

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spinwheel/spinwheel/internal/bound"
	"github.com/spinwheel/spinwheel/internal/group"
	"github.com/spinwheel/spinwheel/internal/iterate"
	"github.com/spinwheel/spinwheel/internal/kill"
	pkgerrors "github.com/spinwheel/spinwheel/pkg/errors"
)

// DefaultPollInterval is how long the loop idles when there is no work.
const DefaultPollInterval = 100 * time.Millisecond

// Fetcher polls the hub for the current iterate and kill flag. Implemented
// by group.Client.
type Fetcher interface {
	Fetch(lastSeen uint64) (*group.FetchResult, error)
}

// Reporter delivers bound reports to the hub. Implemented by group.Client.
type Reporter interface {
	Report(r bound.Report) (*group.ReportResult, error)
}

// Variant is one bound-spoke strategy plugged into the runtime loop. The
// loop is single-threaded: OnNewIterate and Step never run concurrently.
type Variant interface {
	Kind() string

	// Tag is the one-letter marker used in compact status logs.
	Tag() string

	// OnNewIterate runs once per adopted iterate version, before Step.
	OnNewIterate(ctx context.Context, snap *iterate.Snapshot) error

	// Step performs one unit of work. work false means nothing to do until
	// the next iterate; the runtime idles one poll interval.
	Step(ctx context.Context) (work bool, err error)

	// Best is the variant's own best bound so far, false before the first.
	Best() (float64, bool)
}

// RuntimeConfig configures a spoke runtime.
type RuntimeConfig struct {
	Fetcher    Fetcher
	Variant    Variant
	Signal     *kill.Signal  // fresh one when nil
	Poll       time.Duration // default DefaultPollInterval
	FailBudget int           // consecutive fetch failures before fatal, default 50
	Logger     *slog.Logger
}

// Runtime drives a variant: poll the hub, mirror the kill flag, adopt new
// iterate versions, hand the variant one unit of work at a time.
type Runtime struct {
	fetcher    Fetcher
	variant    Variant
	kill       *kill.Signal
	poll       time.Duration
	failBudget int
	log        *slog.Logger

	lastSeen uint64
	ticks    uint64
}

// NewRuntime builds a runtime.
func NewRuntime(cfg RuntimeConfig) *Runtime {
	r := &Runtime{
		fetcher:    cfg.Fetcher,
		variant:    cfg.Variant,
		kill:       cfg.Signal,
		poll:       cfg.Poll,
		failBudget: cfg.FailBudget,
		log:        cfg.Logger,
	}
	if r.kill == nil {
		r.kill = kill.New()
	}
	if r.poll <= 0 {
		r.poll = DefaultPollInterval
	}
	if r.failBudget < 1 {
		r.failBudget = 50
	}
	return r
}

// Signal returns the runtime's kill signal, which mirrors the hub's.
func (r *Runtime) Signal() *kill.Signal {
	return r.kill
}

// LastSeen returns the highest iterate version the loop has adopted.
func (r *Runtime) LastSeen() uint64 {
	return r.lastSeen
}

// Run loops until the kill signal arrives, ctx is canceled, or the hub stays
// unreachable past the failure budget. Variant errors are fatal for this
// spoke only.
func (r *Runtime) Run(ctx context.Context) error {
	r.log.Info("spoke loop started",
		"kind", r.variant.Kind(),
		"tag", r.variant.Tag(),
		"poll", r.poll.String())

	fails := 0
	for {
		if ctx.Err() != nil {
			r.log.Info("spoke loop canceled")
			return nil
		}
		if r.kill.Raised() {
			r.log.Info("spoke loop exiting", "reason", r.kill.Reason())
			return nil
		}

		r.ticks++
		if (r.ticks-1)%100 == 0 {
			r.log.Debug("spoke loop heartbeat", "tick", r.ticks, "last_seen", r.lastSeen)
		}

		res, err := r.fetcher.Fetch(r.lastSeen)
		if err != nil {
			fails++
			if fails >= r.failBudget {
				return fmt.Errorf("%w: %d consecutive fetch failures, last: %v",
					pkgerrors.ErrHubUnreachable, fails, err)
			}
			r.log.Warn("fetch failed", "attempt", fails, "err", err)
			r.idle(ctx)
			continue
		}
		fails = 0

		if res.Killed {
			r.kill.Raise(res.Reason)
			r.log.Info("kill signal received", "reason", res.Reason)
			return nil
		}

		worked := false
		if res.Snapshot != nil && res.Snapshot.Version > r.lastSeen {
			r.lastSeen = res.Snapshot.Version
			if err := r.variant.OnNewIterate(ctx, res.Snapshot); err != nil {
				return fmt.Errorf("on new iterate: %w", err)
			}
			worked = true
		}

		w, err := r.variant.Step(ctx)
		if err != nil {
			return fmt.Errorf("step: %w", err)
		}

		if !worked && !w {
			r.idle(ctx)
		}
	}
}

func (r *Runtime) idle(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(r.poll):
	}
}
