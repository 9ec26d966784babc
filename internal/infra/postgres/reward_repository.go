package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"trivia-live-service/internal/domain"
)

// RewardRepository reads reward configuration stored as JSONB per match and locale.
type RewardRepository struct {
	pool *pgxpool.Pool
}

func NewRewardRepository(pool *pgxpool.Pool) *RewardRepository {
	return &RewardRepository{pool: pool}
}

// rewardDocument is the stored form. It keeps the object paths the API form hides.
type rewardDocument struct {
	LoyaltyID string       `json:"loyaltyId"`
	IconPath  string       `json:"iconPath"`
	ImagePath string       `json:"imagePath"`
	Standard  tierDocument `json:"standardReward"`
	Premium   tierDocument `json:"premiumReward"`
}

type tierDocument struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	LoyaltyID   string `json:"loyaltyId,omitempty"`
	ImagePath   string `json:"imagePath,omitempty"`
}

func (r *RewardRepository) GetReward(ctx context.Context, matchID, locale string) (domain.Reward, error) {
	var raw []byte
	err := r.pool.QueryRow(ctx, `SELECT data FROM rewards WHERE match_id=$1 AND locale=$2`, matchID, locale).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Reward{}, domain.ErrRewardNotFound
	}
	if err != nil {
		return domain.Reward{}, fmt.Errorf("load reward: %w", err)
	}
	var doc rewardDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return domain.Reward{}, fmt.Errorf("unmarshal reward: %w", err)
	}
	return domain.Reward{
		MatchID:   matchID,
		Locale:    locale,
		LoyaltyID: doc.LoyaltyID,
		IconPath:  doc.IconPath,
		ImagePath: doc.ImagePath,
		Standard:  doc.Standard.toDomain(),
		Premium:   doc.Premium.toDomain(),
	}, nil
}

// PutReward creates or replaces the reward of a match in a locale.
func (r *RewardRepository) PutReward(ctx context.Context, reward domain.Reward) error {
	raw, err := json.Marshal(rewardDocument{
		LoyaltyID: reward.LoyaltyID,
		IconPath:  reward.IconPath,
		ImagePath: reward.ImagePath,
		Standard:  tierFromDomain(reward.Standard),
		Premium:   tierFromDomain(reward.Premium),
	})
	if err != nil {
		return fmt.Errorf("marshal reward: %w", err)
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO rewards (match_id, locale, data) VALUES ($1, $2, $3)
		ON CONFLICT (match_id, locale) DO UPDATE SET data = EXCLUDED.data`,
		reward.MatchID, reward.Locale, string(raw),
	)
	if err != nil {
		return fmt.Errorf("save reward: %w", err)
	}
	return nil
}

func (t tierDocument) toDomain() domain.RewardTier {
	return domain.RewardTier{Name: t.Name, Description: t.Description, LoyaltyID: t.LoyaltyID, ImagePath: t.ImagePath}
}

func tierFromDomain(t domain.RewardTier) tierDocument {
	return tierDocument{Name: t.Name, Description: t.Description, LoyaltyID: t.LoyaltyID, ImagePath: t.ImagePath}
}
