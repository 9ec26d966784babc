package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"trivia-live-service/internal/domain"
	"trivia-live-service/internal/infra/postgres"
	transport "trivia-live-service/internal/transport/http"
)

// NewScheduleCmd loads questions, rewards and matches from a YAML file.
func NewScheduleCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "schedule <file.yaml>",
		Short: "Load questions and rewards, then schedule matches",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSchedule(cmd.Context(), *configPath, args[0])
		},
	}
}

type scheduleFile struct {
	Questions []questionDoc               `yaml:"questions"`
	Rewards   []rewardDoc                 `yaml:"rewards"`
	Matches   []transport.ScheduleRequest `yaml:"matches"`
}

type questionDoc struct {
	Key              string               `yaml:"key"`
	TimeLimitSeconds int                  `yaml:"timeLimitSeconds"`
	AssetPath        string               `yaml:"assetPath"`
	Locales          map[string]localeDoc `yaml:"locales"`
}

type localeDoc struct {
	Prompt  string          `yaml:"prompt"`
	Choices []domain.Choice `yaml:"choices"`
}

type tierDoc struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	LoyaltyID   string `yaml:"loyaltyId"`
	ImagePath   string `yaml:"imagePath"`
}

type rewardDoc struct {
	MatchID   string  `yaml:"matchId"`
	Locale    string  `yaml:"locale"`
	LoyaltyID string  `yaml:"loyaltyId"`
	IconPath  string  `yaml:"iconPath"`
	ImagePath string  `yaml:"imagePath"`
	Standard  tierDoc `yaml:"standard"`
	Premium   tierDoc `yaml:"premium"`
}

func (q questionDoc) content() domain.QuestionContent {
	c := domain.QuestionContent{
		Question: domain.Question{
			Key:       q.Key,
			TimeLimit: time.Duration(q.TimeLimitSeconds) * time.Second,
			AssetPath: q.AssetPath,
		},
		Locales: make(map[string]domain.QuestionChoices, len(q.Locales)),
	}
	for locale, l := range q.Locales {
		c.Locales[locale] = domain.QuestionChoices{QuestionKey: q.Key, Locale: locale, Prompt: l.Prompt, Choices: l.Choices}
	}
	return c
}

func (t tierDoc) tier() domain.RewardTier {
	return domain.RewardTier{Name: t.Name, Description: t.Description, LoyaltyID: t.LoyaltyID, ImagePath: t.ImagePath}
}

func (r rewardDoc) reward() domain.Reward {
	return domain.Reward{
		MatchID:   r.MatchID,
		Locale:    r.Locale,
		LoyaltyID: r.LoyaltyID,
		IconPath:  r.IconPath,
		ImagePath: r.ImagePath,
		Standard:  r.Standard.tier(),
		Premium:   r.Premium.tier(),
	}
}

func parseScheduleFile(data []byte) (scheduleFile, error) {
	var f scheduleFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return f, fmt.Errorf("parse schedule file: %w", err)
	}
	for i, q := range f.Questions {
		if q.Key == "" {
			return f, fmt.Errorf("question #%d: missing key", i+1)
		}
		for locale, l := range q.Locales {
			if _, err := (domain.QuestionChoices{Choices: l.Choices}).CorrectChoiceKey(); err != nil {
				return f, fmt.Errorf("question %s (%s): no correct choice", q.Key, locale)
			}
		}
	}
	for i, r := range f.Rewards {
		if r.MatchID == "" || r.Locale == "" {
			return f, fmt.Errorf("reward #%d: matchId and locale are required", i+1)
		}
	}
	return f, nil
}

func runSchedule(ctx context.Context, configPath, file string) error {
	cfg, logger, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if cfg.Postgres.URL == "" {
		return fmt.Errorf("schedule needs postgres: set postgres.url or DATABASE_URL")
	}
	data, err := os.ReadFile(file)
	if err != nil {
		return err
	}
	sf, err := parseScheduleFile(data)
	if err != nil {
		return err
	}

	if err := runMigrations(ctx, cfg, logger); err != nil {
		return err
	}
	b, err := openBackend(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer b.Close()

	questions := postgres.NewQuestionLoader(b.pool)
	for _, q := range sf.Questions {
		if err := questions.SaveQuestion(ctx, q.content()); err != nil {
			return fmt.Errorf("save question %s: %w", q.Key, err)
		}
	}
	rewards := postgres.NewRewardRepository(b.pool)
	for _, r := range sf.Rewards {
		if err := rewards.PutReward(ctx, r.reward()); err != nil {
			return fmt.Errorf("save reward %s/%s: %w", r.MatchID, r.Locale, err)
		}
	}

	service := b.service(nil)
	for _, m := range sf.Matches {
		res, err := service.ScheduleMatch(ctx, m.Match())
		if err != nil {
			return fmt.Errorf("schedule match %s: %w", m.ID, err)
		}
		logger.Info(res.Message, "match_id", m.ID, "starting_at", m.StartingAt)
	}
	logger.Info("schedule loaded", "questions", len(sf.Questions), "rewards", len(sf.Rewards), "matches", len(sf.Matches))
	return nil
}
