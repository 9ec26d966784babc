package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"trivia-live-service/internal/domain"
)

// MatchRepository is an in-memory implementation of app.MatchRepository.
type MatchRepository struct {
	mu      sync.Mutex
	matches map[string]domain.Match
}

func NewMatchRepository(matches ...domain.Match) *MatchRepository {
	r := &MatchRepository{matches: make(map[string]domain.Match)}
	for _, m := range matches {
		r.matches[m.ID] = cloneMatch(m)
	}
	return r
}

func (r *MatchRepository) GetMatch(_ context.Context, matchID string) (domain.Match, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.matches[matchID]
	if !ok {
		return domain.Match{}, domain.ErrMatchNotFound
	}
	return cloneMatch(m), nil
}

func (r *MatchRepository) DueMatches(_ context.Context, before time.Time) ([]domain.Match, error) {
	return r.filter(func(m domain.Match) bool {
		return m.Status == domain.MatchScheduled && m.StartingAt.Before(before)
	}), nil
}

func (r *MatchRepository) StalledMatches(_ context.Context, now time.Time) ([]domain.Match, error) {
	return r.filter(func(m domain.Match) bool {
		return stalled(m, now)
	}), nil
}

func (r *MatchRepository) ListMatches(_ context.Context) ([]domain.Match, error) {
	return r.filter(func(domain.Match) bool { return true }), nil
}

func (r *MatchRepository) ClaimMatch(_ context.Context, matchID, owner string, now, leaseUntil time.Time) (domain.Claim, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.matches[matchID]
	if !ok {
		return domain.Claim{}, domain.ErrMatchNotFound
	}
	switch {
	case m.Status == domain.MatchScheduled && !m.IsLocked:
		m.Status = domain.MatchReady
	case stalled(m, now):
	default:
		return domain.Claim{Match: cloneMatch(m)}, nil
	}
	m.IsLocked = true
	m.LeaseOwner = owner
	m.LeaseUntil = leaseUntil
	r.matches[matchID] = m
	return domain.Claim{Match: cloneMatch(m), Claimed: true}, nil
}

func (r *MatchRepository) SaveProgress(_ context.Context, matchID, owner string, progress domain.MatchProgress) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.matches[matchID]
	if !ok {
		return domain.ErrMatchNotFound
	}
	if m.LeaseOwner != owner || !m.Status.CanAdvanceTo(progress.Status) {
		return domain.ErrLeaseLost
	}
	m.Status = progress.Status
	m.Synchro = progress.Synchro
	m.IsLocked = progress.IsLocked
	m.LeaseUntil = progress.LeaseUntil
	if !progress.IsLocked {
		m.LeaseOwner = ""
	}
	r.matches[matchID] = m
	return nil
}

func (r *MatchRepository) SaveRating(_ context.Context, matchID string, rating domain.Rating) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.matches[matchID]
	if !ok {
		return domain.ErrMatchNotFound
	}
	m.Rating = &rating
	r.matches[matchID] = cloneMatch(m)
	return nil
}

func (r *MatchRepository) ScheduleMatch(_ context.Context, match domain.Match) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.matches[match.ID]; ok {
		return domain.ErrMatchExists
	}
	r.matches[match.ID] = cloneMatch(match)
	return nil
}

func (r *MatchRepository) filter(keep func(domain.Match) bool) []domain.Match {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.Match, 0)
	for _, m := range r.matches {
		if keep(m) {
			out = append(out, cloneMatch(m))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartingAt.Before(out[j].StartingAt) })
	return out
}

func stalled(m domain.Match, now time.Time) bool {
	return m.IsLocked &&
		(m.Status == domain.MatchReady || m.Status == domain.MatchPlaying) &&
		m.LeaseUntil.Before(now)
}

func cloneMatch(m domain.Match) domain.Match {
	m.QuestionKeys = append([]string(nil), m.QuestionKeys...)
	if m.Rating != nil {
		rt := domain.Rating{TotalScore: m.Rating.TotalScore, Players: make(map[string]int, len(m.Rating.Players))}
		for id, s := range m.Rating.Players {
			rt.Players[id] = s
		}
		m.Rating = &rt
	}
	return m
}
