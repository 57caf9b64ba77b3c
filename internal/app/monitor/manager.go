package monitor

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	zlog "github.com/rs/zerolog/log"

	"github.com/arieluchka/spotify-ocd-saver/internal/app/policy"
)

var (
	ErrSessionNotFound = errors.New("monitoring session not found")
	ErrAlreadyRunning  = errors.New("monitoring already running for this user")
)

// SessionStatus is a point-in-time view of one running session.
type SessionStatus struct {
	ID        string    `json:"id"`
	UserID    *int64    `json:"userId,omitempty"`
	StartedAt time.Time `json:"startedAt"`
	TrackID   string    `json:"trackId,omitempty"`
	Policy    string    `json:"policy"`
}

type session struct {
	id        string
	userID    *int64
	policy    policy.Policy
	startedAt time.Time
	runner    *Runner
	cancel    context.CancelFunc
	done      chan struct{}
}

// Manager owns monitoring sessions: at most one per user scope, each
// an independently cancellable goroutine.
type Manager struct {
	store      Store
	scanner    Scanner
	controller Controller
	base       policy.Policy
	intervals  Intervals

	mu       sync.Mutex
	sessions map[string]*session // keyed by user scope
}

// NewManager creates a session manager. base is the configured default
// policy; sessions may override it at start time.
func NewManager(store Store, scanner Scanner, controller Controller, base policy.Policy, intervals Intervals) *Manager {
	return &Manager{
		store:      store,
		scanner:    scanner,
		controller: controller,
		base:       base,
		intervals:  intervals,
		sessions:   make(map[string]*session),
	}
}

// Start launches a monitoring session for the user scope, applying
// any policy overrides on top of the configured defaults. A second
// start for the same scope fails until the first is stopped.
func (m *Manager) Start(userID *int64, overrides map[string]any) (SessionStatus, error) {
	pol, err := m.base.Apply(overrides)
	if err != nil {
		return SessionStatus{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	key := scopeKey(userID)
	if _, running := m.sessions[key]; running {
		return SessionStatus{}, ErrAlreadyRunning
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &session{
		id:        uuid.NewString(),
		userID:    userID,
		policy:    pol,
		startedAt: time.Now(),
		runner:    NewRunner(m.controller, New(m.store, m.scanner, pol, userID, m.intervals)),
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	m.sessions[key] = s

	go func() {
		defer close(s.done)
		if err := s.runner.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			zlog.Error().Err(err).Msgf("monitor: session %s exited", s.id)
		}
	}()

	zlog.Info().Msgf("monitor: session %s started (scope=%s, mode=%s)", s.id, key, pol.Mode)
	return m.statusLocked(s), nil
}

// Stop cancels the session with the given id and waits for its loop
// to exit.
func (m *Manager) Stop(sessionID string) error {
	m.mu.Lock()
	var found *session
	var key string
	for k, s := range m.sessions {
		if s.id == sessionID {
			found, key = s, k
			break
		}
	}
	if found == nil {
		m.mu.Unlock()
		return errors.Wrapf(ErrSessionNotFound, "id=%s", sessionID)
	}
	delete(m.sessions, key)
	m.mu.Unlock()

	found.cancel()
	<-found.done
	zlog.Info().Msgf("monitor: session %s stopped", sessionID)
	return nil
}

// StopAll cancels every running session. Used on shutdown.
func (m *Manager) StopAll() {
	m.mu.Lock()
	sessions := make([]*session, 0, len(m.sessions))
	for k, s := range m.sessions {
		sessions = append(sessions, s)
		delete(m.sessions, k)
	}
	m.mu.Unlock()

	for _, s := range sessions {
		s.cancel()
		<-s.done
	}
}

// Status lists all running sessions.
func (m *Manager) Status() []SessionStatus {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]SessionStatus, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, m.statusLocked(s))
	}
	return out
}

// StatusFor returns the session for one user scope, if any.
func (m *Manager) StatusFor(userID *int64) (SessionStatus, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[scopeKey(userID)]
	if !ok {
		return SessionStatus{}, false
	}
	return m.statusLocked(s), true
}

func (m *Manager) statusLocked(s *session) SessionStatus {
	return SessionStatus{
		ID:        s.id,
		UserID:    s.userID,
		StartedAt: s.startedAt,
		TrackID:   s.runner.State().TrackID,
		Policy:    string(s.policy.Mode),
	}
}

func scopeKey(userID *int64) string {
	if userID == nil {
		return "global"
	}
	return "user:" + strconv.FormatInt(*userID, 10)
}
