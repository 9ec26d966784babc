package memory

import (
	"context"
	"sync"

	"trivia-live-service/internal/domain"
)

// RewardRepository is an in-memory implementation of app.RewardRepository.
type RewardRepository struct {
	mu      sync.RWMutex
	rewards map[string]domain.Reward
}

func NewRewardRepository(rewards ...domain.Reward) *RewardRepository {
	r := &RewardRepository{rewards: make(map[string]domain.Reward)}
	for _, rw := range rewards {
		r.Put(rw)
	}
	return r
}

// Put stores reward under its match and locale.
func (r *RewardRepository) Put(reward domain.Reward) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rewards[matchKey(reward.MatchID, reward.Locale)] = reward
}

func (r *RewardRepository) GetReward(_ context.Context, matchID, locale string) (domain.Reward, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reward, ok := r.rewards[matchKey(matchID, locale)]
	if !ok {
		return domain.Reward{}, domain.ErrRewardNotFound
	}
	return reward, nil
}
