package http

import (
	"log/slog"
	"sync"

	"trivia-live-service/internal/domain"
)

const subscriberBuffer = 16

// Hub fans synchro updates out to websocket subscribers of each match.
// It keeps the last update per match so late joiners start in step.
type Hub struct {
	mu     sync.RWMutex
	subs   map[string]map[chan domain.Match]struct{}
	last   map[string]domain.Match
	logger *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		subs:   make(map[string]map[chan domain.Match]struct{}),
		last:   make(map[string]domain.Match),
		logger: logger,
	}
}

// MatchUpdated delivers m to every subscriber of the match. A subscriber whose
// buffer is full misses the update rather than stalling the match run.
func (h *Hub) MatchUpdated(m domain.Match) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if m.Synchro.MatchOver {
		delete(h.last, m.ID)
	} else {
		h.last[m.ID] = m
	}
	for ch := range h.subs[m.ID] {
		select {
		case ch <- m:
		default:
			h.logger.Warn("synchro update dropped for slow subscriber", "match_id", m.ID)
		}
	}
}

// Subscribe registers for updates of matchID. The returned cancel func must be called once.
func (h *Hub) Subscribe(matchID string) (<-chan domain.Match, func()) {
	ch := make(chan domain.Match, subscriberBuffer)

	h.mu.Lock()
	if h.subs[matchID] == nil {
		h.subs[matchID] = make(map[chan domain.Match]struct{})
	}
	h.subs[matchID][ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs[matchID], ch)
			if len(h.subs[matchID]) == 0 {
				delete(h.subs, matchID)
			}
			h.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

// Last returns the most recent in-flight update of matchID.
func (h *Hub) Last(matchID string) (domain.Match, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	m, ok := h.last[matchID]
	return m, ok
}

// Connections counts live subscriptions across all matches.
func (h *Hub) Connections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, set := range h.subs {
		n += len(set)
	}
	return n
}
