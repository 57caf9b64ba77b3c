// Package monitor implements the playback monitoring loop: it polls
// the playback collaborator, caches merged skip windows per track, and
// decides when to seek past a trigger window or skip a track entirely.
package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/arieluchka/spotify-ocd-saver/internal/app/policy"
	"github.com/arieluchka/spotify-ocd-saver/internal/domain/playback"
	"github.com/arieluchka/spotify-ocd-saver/internal/domain/song"
	"github.com/arieluchka/spotify-ocd-saver/internal/domain/trigger"
)

// Store is the persistence surface the monitor needs.
type Store interface {
	UpsertSong(ctx context.Context, info song.TrackInfo) (*song.Song, error)
	SongByID(ctx context.Context, id int64) (*song.Song, error)
	UpdateSongISRC(ctx context.Context, id int64, isrc string) error
	OccurrencesForSong(ctx context.Context, songID int64, userID *int64, categoryIDs []int64) ([]trigger.Occurrence, error)
}

// Scanner runs on-demand scan passes for tracks the monitor meets
// before the queue scanner does.
type Scanner interface {
	ScanSong(ctx context.Context, songID int64, userID *int64, force bool) (song.ScanStatus, error)
}

// ActionKind enumerates the decisions a tick can produce.
type ActionKind int

const (
	ActionNone ActionKind = iota
	ActionSeek
	ActionNextTrack
)

// Action is a side-effect-free tick decision. Executing it is the
// runner's job.
type Action struct {
	Kind     ActionKind
	SeekToMs int64 // target position, ActionSeek only
}

// TickState is the explicit monitor state threaded through ticks. A
// zero value is a valid initial state.
type TickState struct {
	TrackID    string
	SongID     int64
	DurationMs int64
	PositionMs int64
	ScanStatus song.ScanStatus
	Windows    []trigger.Window

	// LastSkippedTrackID makes next-track decisions idempotent per
	// track: a track is skipped once, not on every poll.
	LastSkippedTrackID string

	// NextPollIn is the delay the runner should wait before the next
	// tick.
	NextPollIn time.Duration
}

// Intervals holds the adaptive poll cadence.
type Intervals struct {
	Base time.Duration // steady-state polling
	Min  time.Duration // approaching a window or awaiting a scan
	Idle time.Duration // playback paused or stopped
}

// Monitor owns the per-session decision logic. It is safe for a
// single runner goroutine plus the scan goroutines it spawns.
type Monitor struct {
	store     Store
	scanner   Scanner
	policy    policy.Policy
	userID    *int64
	intervals Intervals

	mu       sync.Mutex
	scanning map[int64]struct{}
}

// New creates a monitor for one user scope.
func New(store Store, scanner Scanner, pol policy.Policy, userID *int64, intervals Intervals) *Monitor {
	return &Monitor{
		store:     store,
		scanner:   scanner,
		policy:    pol,
		userID:    userID,
		intervals: intervals,
		scanning:  make(map[int64]struct{}),
	}
}

// Tick consumes one playback snapshot and produces the next state and
// a decision. It never invokes playback control itself. A storage
// failure returns the input state unchanged so the tick can be
// retried.
func (m *Monitor) Tick(ctx context.Context, snap *playback.Snapshot, st TickState) (TickState, Action, error) {
	if snap == nil || snap.Track == nil || !snap.IsPlaying {
		st.NextPollIn = m.intervals.Idle
		return st, Action{Kind: ActionNone}, nil
	}

	if snap.Track.SpotifyID != st.TrackID {
		next, err := m.onTrackChange(ctx, snap, st)
		if err != nil {
			return st, Action{Kind: ActionNone}, err
		}
		st = next
	} else if st.ScanStatus == song.StatusNotScanned && !m.scanInFlight(st.SongID) {
		// A pending on-demand scan finished; pick up its outcome.
		next, err := m.refreshScanOutcome(ctx, st)
		if err != nil {
			return st, Action{Kind: ActionNone}, err
		}
		st = next
	}
	st.PositionMs = snap.PositionMs

	if st.ScanStatus == song.StatusNotScanned {
		m.requestScan(ctx, st.SongID)
		st.NextPollIn = m.intervals.Min
		return m.decideUnscanned(st)
	}

	action := m.decide(&st)
	st.NextPollIn = m.pollInterval(st)
	return st, action, nil
}

// onTrackChange registers the track and rebuilds the window cache for
// it. LastSkippedTrackID survives the reset so a failed next-track is
// not re-issued forever, while every other cached field belongs to the
// new track.
func (m *Monitor) onTrackChange(ctx context.Context, snap *playback.Snapshot, st TickState) (TickState, error) {
	sng, err := m.store.UpsertSong(ctx, *snap.Track)
	if err != nil {
		return st, errors.Wrap(err, "failed to register current track")
	}
	if snap.Track.ISRC != "" && sng.ISRC == "" {
		if err := m.store.UpdateSongISRC(ctx, sng.ID, snap.Track.ISRC); err != nil {
			zlog.Warn().Err(err).Msgf("monitor: failed to record isrc for song %d", sng.ID)
		}
	}

	next := TickState{
		TrackID:            snap.Track.SpotifyID,
		SongID:             sng.ID,
		DurationMs:         sng.DurationMs,
		ScanStatus:         sng.ScanStatus,
		LastSkippedTrackID: st.LastSkippedTrackID,
	}
	if next.DurationMs == 0 {
		next.DurationMs = snap.Track.DurationMs
	}

	if next.ScanStatus.Terminal() {
		windows, err := m.loadWindows(ctx, sng.ID)
		if err != nil {
			return st, err
		}
		next.Windows = windows
	}

	zlog.Debug().Msgf("monitor: now playing %s - %s (status=%s, windows=%d)",
		snap.Track.Artist, snap.Track.Title, next.ScanStatus, len(next.Windows))
	return next, nil
}

// refreshScanOutcome reloads scan status and windows for the current
// track after an on-demand scan completed.
func (m *Monitor) refreshScanOutcome(ctx context.Context, st TickState) (TickState, error) {
	sng, err := m.store.SongByID(ctx, st.SongID)
	if err != nil {
		return st, errors.Wrap(err, "failed to reload current track")
	}
	st.ScanStatus = sng.ScanStatus
	if !st.ScanStatus.Terminal() {
		return st, nil
	}

	windows, err := m.loadWindows(ctx, st.SongID)
	if err != nil {
		return st, err
	}
	st.Windows = windows
	return st, nil
}

func (m *Monitor) loadWindows(ctx context.Context, songID int64) ([]trigger.Window, error) {
	occs, err := m.store.OccurrencesForSong(ctx, songID, m.userID, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load occurrences")
	}
	return trigger.MergeOccurrences(occs, m.policy.GapToleranceMs), nil
}

// decideUnscanned applies the unknown-lyrics policy while a scan is
// still pending.
func (m *Monitor) decideUnscanned(st TickState) (TickState, Action, error) {
	if m.policy.UnknownLyrics == policy.UnknownSkip && st.LastSkippedTrackID != st.TrackID {
		st.LastSkippedTrackID = st.TrackID
		return st, Action{Kind: ActionNextTrack}, nil
	}
	return st, Action{Kind: ActionNone}, nil
}

// decide evaluates the playback position against the cached windows
// under the session policy.
func (m *Monitor) decide(st *TickState) Action {
	switch st.ScanStatus {
	case song.StatusNoResults:
		// No lyrics at all: only the strict policy acts.
		if m.policy.UnknownLyrics == policy.UnknownSkip {
			return m.skipTrackOnce(st)
		}
		return Action{Kind: ActionNone}

	case song.StatusPlainOnly:
		// Contamination without timing covers the whole track, so the
		// only meaningful action is skipping the song.
		if len(st.Windows) == 0 {
			return Action{Kind: ActionNone}
		}
		switch m.policy.UnknownLyrics {
		case policy.UnknownSkip, policy.UnknownSkipIfPlain:
			return m.skipTrackOnce(st)
		}
		return Action{Kind: ActionNone}
	}

	if len(st.Windows) == 0 {
		return Action{Kind: ActionNone}
	}

	if m.policy.Mode == policy.ModeSkipSong {
		return m.skipTrackOnce(st)
	}

	// Act once the buffered window could be entered before the next
	// poll, so the seek lands before the trigger plays rather than
	// after the position is already inside it.
	lookahead := m.policy.PreSkipBufferMs + m.intervals.Base.Milliseconds()
	for _, w := range st.Windows {
		if st.PositionMs >= w.StartTimeMs-lookahead && st.PositionMs < w.EndTimeMs {
			target := w.EndTimeMs + m.policy.LandingPadMs
			if st.DurationMs > 0 && target >= st.DurationMs {
				// Nothing left to play after the window.
				return m.skipTrackOnce(st)
			}
			return Action{Kind: ActionSeek, SeekToMs: target}
		}
	}
	return Action{Kind: ActionNone}
}

func (m *Monitor) skipTrackOnce(st *TickState) Action {
	if st.LastSkippedTrackID == st.TrackID {
		return Action{Kind: ActionNone}
	}
	st.LastSkippedTrackID = st.TrackID
	return Action{Kind: ActionNextTrack}
}

// pollInterval picks the next poll delay: tighten when a window is
// close enough that a base-rate poll could land inside it.
func (m *Monitor) pollInterval(st TickState) time.Duration {
	horizon := 2 * m.intervals.Base.Milliseconds()
	for _, w := range st.Windows {
		lead := w.StartTimeMs - m.policy.PreSkipBufferMs - st.PositionMs
		if lead >= 0 && lead <= horizon {
			return m.intervals.Min
		}
	}
	return m.intervals.Base
}

// requestScan kicks off an on-demand scan for the song unless one is
// already running. The scan outlives the tick but not the session.
func (m *Monitor) requestScan(ctx context.Context, songID int64) {
	m.mu.Lock()
	if _, running := m.scanning[songID]; running {
		m.mu.Unlock()
		return
	}
	m.scanning[songID] = struct{}{}
	m.mu.Unlock()

	scanCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	go func() {
		defer cancel()
		defer func() {
			m.mu.Lock()
			delete(m.scanning, songID)
			m.mu.Unlock()
		}()

		if _, err := m.scanner.ScanSong(scanCtx, songID, m.userID, false); err != nil {
			zlog.Warn().Err(err).Msgf("monitor: on-demand scan failed for song %d", songID)
		}
	}()
}

func (m *Monitor) scanInFlight(songID int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, running := m.scanning[songID]
	return running
}
