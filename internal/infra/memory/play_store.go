package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"trivia-live-service/internal/domain"
)

// PlayStore is an in-memory implementation of app.PlayStore. A single mutex makes every
// create-only write and increment atomic.
type PlayStore struct {
	mu  sync.Mutex
	now func() time.Time

	answers  map[string]map[string]domain.PlayerAnswer // match/locale -> answer id -> answer
	counts   map[string]int                            // match/locale/question -> answers
	choices  map[string]map[string]int64               // match/locale/question -> choice -> count
	players  map[string]map[string]domain.MatchPlayer  // match/locale -> player id -> player
	profiles map[string]map[string]*profileRecord      // locale -> player id -> profile
}

type profileRecord struct {
	profile domain.PlayerProfile
	games   map[string]struct{}
}

func NewPlayStore() *PlayStore {
	return &PlayStore{
		now:      time.Now,
		answers:  make(map[string]map[string]domain.PlayerAnswer),
		counts:   make(map[string]int),
		choices:  make(map[string]map[string]int64),
		players:  make(map[string]map[string]domain.MatchPlayer),
		profiles: make(map[string]map[string]*profileRecord),
	}
}

func matchKey(matchID, locale string) string { return matchID + "/" + locale }

func questionKey(matchID, locale, question string) string {
	return matchID + "/" + locale + "/" + question
}

func (s *PlayStore) CreateAnswer(_ context.Context, matchID, locale string, answer domain.PlayerAnswer) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	mk := matchKey(matchID, locale)
	byID, ok := s.answers[mk]
	if !ok {
		byID = make(map[string]domain.PlayerAnswer)
		s.answers[mk] = byID
	}
	id := domain.AnswerID(answer.PlayerID, answer.QuestionKey)
	if _, exists := byID[id]; exists {
		return 0, domain.ErrAnswerExists
	}
	qk := questionKey(matchID, locale, answer.QuestionKey)
	s.counts[qk]++
	answer.Placement = s.counts[qk]
	byID[id] = answer
	return answer.Placement, nil
}

func (s *PlayStore) CountAnswers(_ context.Context, matchID, locale, question string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(s.counts[questionKey(matchID, locale, question)]), nil
}

func (s *PlayStore) ListAnswers(_ context.Context, matchID, locale string) ([]domain.PlayerAnswer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	byID := s.answers[matchKey(matchID, locale)]
	out := make([]domain.PlayerAnswer, 0, len(byID))
	for _, a := range byID {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].QuestionKey != out[j].QuestionKey {
			return out[i].QuestionKey < out[j].QuestionKey
		}
		return out[i].Placement < out[j].Placement
	})
	return out, nil
}

func (s *PlayStore) IncrementChoice(_ context.Context, matchID, locale, question, choiceKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	qk := questionKey(matchID, locale, question)
	stats, ok := s.choices[qk]
	if !ok {
		stats = make(map[string]int64)
		s.choices[qk] = stats
	}
	stats[choiceKey]++
	return nil
}

func (s *PlayStore) ChoiceStatistics(_ context.Context, matchID, locale, question string) (map[string]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]int64)
	for k, v := range s.choices[questionKey(matchID, locale, question)] {
		out[k] = v
	}
	return out, nil
}

func (s *PlayStore) SubscribePlayer(_ context.Context, matchID, locale string, player domain.MatchPlayer) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	mk := matchKey(matchID, locale)
	byID, ok := s.players[mk]
	if !ok {
		byID = make(map[string]domain.MatchPlayer)
		s.players[mk] = byID
	}
	if _, exists := byID[player.PlayerID]; exists {
		return false, nil
	}
	byID[player.PlayerID] = player
	return true, nil
}

func (s *PlayStore) UnsubscribePlayer(_ context.Context, matchID, locale, playerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.players[matchKey(matchID, locale)], playerID)
	return nil
}

func (s *PlayStore) GetMatchPlayer(_ context.Context, matchID, locale, playerID string) (domain.MatchPlayer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.players[matchKey(matchID, locale)][playerID]
	if !ok {
		return domain.MatchPlayer{}, domain.ErrPlayerNotFound
	}
	return p, nil
}

func (s *PlayStore) ApplyMatchScore(_ context.Context, matchID, locale, playerID string, delta domain.ScoreDelta) error {
	return s.updateMatchPlayer(matchID, locale, playerID, func(p *domain.MatchPlayer) {
		p.Score += delta.Score
		p.CorrectAnswers += delta.Correct
		p.WrongAnswers += delta.Wrong
	})
}

func (s *PlayStore) OverwriteMatchScore(_ context.Context, matchID, locale, playerID string, totals domain.ScoreDelta) error {
	return s.updateMatchPlayer(matchID, locale, playerID, func(p *domain.MatchPlayer) {
		p.Score = totals.Score
		p.CorrectAnswers = totals.Correct
		p.WrongAnswers = totals.Wrong
	})
}

func (s *PlayStore) SetMatchRating(_ context.Context, matchID, locale, playerID string, score int, comment string) error {
	return s.updateMatchPlayer(matchID, locale, playerID, func(p *domain.MatchPlayer) {
		p.RatingScore = score
		p.RatingComment = comment
	})
}

func (s *PlayStore) updateMatchPlayer(matchID, locale, playerID string, fn func(*domain.MatchPlayer)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	byID := s.players[matchKey(matchID, locale)]
	p, ok := byID[playerID]
	if !ok {
		return domain.ErrPlayerNotFound
	}
	fn(&p)
	p.UpdatedOn = s.now()
	byID[playerID] = p
	return nil
}

func (s *PlayStore) EnsureProfile(_ context.Context, locale string, profile domain.PlayerProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.profileLocked(locale, profile.PlayerID, false); ok {
		return nil
	}
	rec, _ := s.profileLocked(locale, profile.PlayerID, true)
	rec.profile.Nickname = profile.Nickname
	rec.profile.Avatar = profile.Avatar
	rec.profile.AddedOn = profile.AddedOn
	rec.profile.UpdatedOn = profile.UpdatedOn
	return nil
}

func (s *PlayStore) UpsertProfile(_ context.Context, locale string, profile domain.PlayerProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, existed := s.profileLocked(locale, profile.PlayerID, true)
	rec.profile.Nickname = profile.Nickname
	rec.profile.Avatar = profile.Avatar
	rec.profile.UpdatedOn = profile.UpdatedOn
	if !existed {
		rec.profile.AddedOn = profile.AddedOn
	}
	return nil
}

func (s *PlayStore) GetProfile(_ context.Context, locale, playerID string) (domain.PlayerProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.profileLocked(locale, playerID, false)
	if !ok {
		return domain.PlayerProfile{}, domain.ErrPlayerNotFound
	}
	return rec.snapshot(), nil
}

func (s *PlayStore) ApplyLifetimeScore(_ context.Context, locale, playerID, matchID string, delta domain.ScoreDelta) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, _ := s.profileLocked(locale, playerID, true)
	rec.profile.TotalScore += delta.Score
	rec.profile.TotalQuestions++
	rec.profile.TotalCorrectAnswers += delta.Correct
	rec.profile.TotalWrongAnswers += delta.Wrong
	rec.games[matchID] = struct{}{}
	rec.profile.LastGame = matchID
	rec.profile.UpdatedOn = s.now()
	return nil
}

func (s *PlayStore) RankedPlayers(_ context.Context, scope domain.Scope) ([]domain.PlayerStanding, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.PlayerStanding
	if scope.Kind == domain.ScopeMatch {
		for _, p := range s.players[matchKey(scope.MatchID, scope.Locale)] {
			out = append(out, domain.PlayerStanding{
				PlayerID:       p.PlayerID,
				Nickname:       p.DisplayName,
				Avatar:         p.Avatar,
				Score:          p.Score,
				CorrectAnswers: p.CorrectAnswers,
				WrongAnswers:   p.WrongAnswers,
			})
		}
	} else {
		for _, rec := range s.profiles[scope.Locale] {
			out = append(out, domain.PlayerStanding{
				PlayerID:       rec.profile.PlayerID,
				Nickname:       rec.profile.Nickname,
				Avatar:         rec.profile.Avatar,
				Score:          rec.profile.TotalScore,
				CorrectAnswers: rec.profile.TotalCorrectAnswers,
				WrongAnswers:   rec.profile.TotalWrongAnswers,
				TotalQuestions: rec.profile.TotalQuestions,
			})
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].PlayerID < out[j].PlayerID
	})
	return out, nil
}

func (s *PlayStore) profileLocked(locale, playerID string, create bool) (*profileRecord, bool) {
	byID, ok := s.profiles[locale]
	if !ok {
		if !create {
			return nil, false
		}
		byID = make(map[string]*profileRecord)
		s.profiles[locale] = byID
	}
	rec, ok := byID[playerID]
	if ok || !create {
		return rec, ok
	}
	rec = &profileRecord{
		profile: domain.PlayerProfile{PlayerID: playerID},
		games:   make(map[string]struct{}),
	}
	byID[playerID] = rec
	return rec, false
}

func (r *profileRecord) snapshot() domain.PlayerProfile {
	p := r.profile
	p.GamesPlayed = make([]string, 0, len(r.games))
	for id := range r.games {
		p.GamesPlayed = append(p.GamesPlayed, id)
	}
	sort.Strings(p.GamesPlayed)
	return p
}
