package session

import (
	"context"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"
	"github.com/youruser/dpframe/internal/frames"
)

// Manager keeps independent sessions keyed by ULID and evicts idle ones.
type Manager struct {
	opts    Options
	deps    Deps
	catalog *frames.Catalog
	ttl     time.Duration

	mu       sync.RWMutex
	sessions map[string]*Session

	stop chan struct{}
	once sync.Once
}

func NewManager(opts Options, deps Deps, catalog *frames.Catalog, ttl time.Duration) *Manager {
	if catalog == nil {
		catalog, _ = frames.NewCatalog(nil)
	}
	return &Manager{
		opts:     opts,
		deps:     deps,
		catalog:  catalog,
		ttl:      ttl,
		sessions: map[string]*Session{},
		stop:     make(chan struct{}),
	}
}

func (m *Manager) Catalog() *frames.Catalog { return m.catalog }

func (m *Manager) Options() Options { return m.opts }

// Create starts a session and begins loading the default frame. The
// returned channel reports that load, or yields nil at once when the
// catalog is empty.
func (m *Manager) Create(ctx context.Context) (*Session, <-chan error) {
	s := New(ulid.Make().String(), m.opts, m.deps)

	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()

	logrus.WithField("session_id", s.ID).Info("session created")

	if f, ok := m.catalog.Default(); ok {
		return s, s.SwitchFrame(ctx, f)
	}
	done := make(chan error, 1)
	done <- nil
	return s, done
}

func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	return s, ok
}

func (m *Manager) Delete(id string) bool {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if ok {
		s.Close()
	}
	return ok
}

func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Sweep removes sessions idle since before now-ttl and returns how many went.
func (m *Manager) Sweep(now time.Time) int {
	if m.ttl <= 0 {
		return 0
	}
	cutoff := now.Add(-m.ttl)

	var idle []*Session
	m.mu.Lock()
	for id, s := range m.sessions {
		if s.LastActive().Before(cutoff) {
			idle = append(idle, s)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	for _, s := range idle {
		s.Close()
		logrus.WithField("session_id", s.ID).Debug("session expired")
	}
	return len(idle)
}

// Run sweeps every interval until Close.
func (m *Manager) Run(interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case now := <-t.C:
			if n := m.Sweep(now); n > 0 {
				logrus.WithField("count", n).Info("expired idle sessions")
			}
		case <-m.stop:
			return
		}
	}
}

func (m *Manager) Close() {
	m.once.Do(func() { close(m.stop) })
}
