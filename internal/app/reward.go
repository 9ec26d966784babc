package app

import "trivia-live-service/internal/domain"

// DefaultRewardRankCutoff is the last rank that still earns the premium tier.
const DefaultRewardRankCutoff = 100

// RewardResolver picks the reward tier a final rank earns.
type RewardResolver struct {
	cutoff int
}

func NewRewardResolver(cutoff int) RewardResolver {
	if cutoff <= 0 {
		cutoff = DefaultRewardRankCutoff
	}
	return RewardResolver{cutoff: cutoff}
}

// Resolve returns nil when the player never answered or the match has no reward.
// Ranks above the cutoff get the standard tier, the rest the premium one.
func (r RewardResolver) Resolve(reward *domain.Reward, rank, totalAnswers int) *domain.ResolvedReward {
	if totalAnswers == 0 || reward == nil {
		return nil
	}
	resolved := &domain.ResolvedReward{
		Tier:      domain.TierPremium,
		LoyaltyID: reward.LoyaltyID,
		Reward:    reward.Premium,
		Rank:      rank,
	}
	if rank < 1 || rank > r.cutoff {
		resolved.Tier = domain.TierStandard
		resolved.Reward = reward.Standard
	}
	return resolved
}
