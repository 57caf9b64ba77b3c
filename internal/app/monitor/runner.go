package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"

	"github.com/arieluchka/spotify-ocd-saver/internal/domain/playback"
)

// Controller is the playback-control collaborator the runner executes
// decisions against.
type Controller interface {
	GetState(ctx context.Context) (*playback.Snapshot, error)
	Seek(ctx context.Context, positionMs int64) error
	SkipToNext(ctx context.Context) error
}

// Runner drives a monitor: it polls the controller, feeds snapshots
// into ticks, and executes the resulting actions. One runner per
// session goroutine.
type Runner struct {
	controller Controller
	monitor    *Monitor
	logger     zerolog.Logger

	mu    sync.Mutex
	state TickState
}

// NewRunner creates a runner around the monitor.
func NewRunner(controller Controller, m *Monitor) *Runner {
	return &Runner{
		controller: controller,
		monitor:    m,
		logger:     zlog.With().Str("component", "monitor").Logger(),
	}
}

// Run polls until the context is cancelled. Transient controller and
// storage failures skip the tick and retry at the base cadence; only
// cancellation ends the loop.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.Info().Msg("monitor: started")
	defer r.logger.Info().Msg("monitor: stopped")

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}

		delay := r.tick(ctx)
		timer.Reset(delay)
	}
}

// tick runs one poll cycle and returns the delay before the next one.
func (r *Runner) tick(ctx context.Context) time.Duration {
	st := r.State()

	snap, err := r.controller.GetState(ctx)
	if err != nil {
		if ctx.Err() == nil {
			r.logger.Warn().Err(err).Msg("monitor: playback poll failed, skipping tick")
		}
		return r.monitor.intervals.Base
	}

	next, action, err := r.monitor.Tick(ctx, snap, st)
	if err != nil {
		if ctx.Err() == nil {
			r.logger.Warn().Err(err).Msg("monitor: tick failed, state unchanged")
		}
		return r.monitor.intervals.Base
	}

	r.execute(ctx, action, &next)
	r.setState(next)

	if next.NextPollIn <= 0 {
		return r.monitor.intervals.Base
	}
	return next.NextPollIn
}

// execute performs the action with a single attempt. A failed seek is
// retried naturally on the next tick because the position will still
// be inside the window; a failed next-track is deliberately not
// retried because the skip latch already advanced.
func (r *Runner) execute(ctx context.Context, action Action, st *TickState) {
	switch action.Kind {
	case ActionSeek:
		r.logger.Info().Msgf("monitor: seeking past trigger window to %dms", action.SeekToMs)
		if err := r.controller.Seek(ctx, action.SeekToMs); err != nil {
			r.logger.Warn().Err(err).Msg("monitor: seek failed")
		}
	case ActionNextTrack:
		r.logger.Info().Msgf("monitor: skipping track %s", st.TrackID)
		if err := r.controller.SkipToNext(ctx); err != nil {
			r.logger.Warn().Err(err).Msg("monitor: next-track failed")
		}
	}
}

// State returns a copy of the latest tick state for status reporting.
func (r *Runner) State() TickState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *Runner) setState(st TickState) {
	r.mu.Lock()
	r.state = st
	r.mu.Unlock()
}
