package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"trivia-live-service/internal/domain"
)

// QuestionLoader loads question metadata and per-locale choices (JSONB) from Postgres.
type QuestionLoader struct {
	pool *pgxpool.Pool
}

func NewQuestionLoader(pool *pgxpool.Pool) *QuestionLoader {
	return &QuestionLoader{pool: pool}
}

func (l *QuestionLoader) LoadQuestion(ctx context.Context, questionKey string) (domain.QuestionContent, error) {
	var (
		limitMs   int64
		assetPath string
	)
	err := l.pool.QueryRow(ctx, `SELECT time_limit_ms, asset_path FROM questions WHERE key=$1`, questionKey).Scan(&limitMs, &assetPath)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.QuestionContent{}, domain.ErrQuestionNotFound
	}
	if err != nil {
		return domain.QuestionContent{}, fmt.Errorf("load question: %w", err)
	}

	rows, err := l.pool.Query(ctx, `SELECT locale, data FROM question_choices WHERE question_key=$1`, questionKey)
	if err != nil {
		return domain.QuestionContent{}, fmt.Errorf("load question choices: %w", err)
	}
	defer rows.Close()

	content := domain.QuestionContent{
		Question: domain.Question{
			Key:       questionKey,
			TimeLimit: time.Duration(limitMs) * time.Millisecond,
			AssetPath: assetPath,
		},
		Locales: make(map[string]domain.QuestionChoices),
	}
	for rows.Next() {
		var (
			locale string
			raw    []byte
		)
		if err := rows.Scan(&locale, &raw); err != nil {
			return domain.QuestionContent{}, fmt.Errorf("scan question choices: %w", err)
		}
		var choices domain.QuestionChoices
		if err := json.Unmarshal(raw, &choices); err != nil {
			return domain.QuestionContent{}, fmt.Errorf("unmarshal question choices: %w", err)
		}
		choices.QuestionKey = questionKey
		choices.Locale = locale
		content.Locales[locale] = choices
	}
	if err := rows.Err(); err != nil {
		return domain.QuestionContent{}, fmt.Errorf("read question choices: %w", err)
	}
	return content, nil
}

// SaveQuestion upserts a question and replaces its choices in every given locale.
func (l *QuestionLoader) SaveQuestion(ctx context.Context, content domain.QuestionContent) error {
	q := content.Question
	if q.Key == "" {
		return domain.MissingInput("question key")
	}
	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin save question: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `
		INSERT INTO questions (key, time_limit_ms, asset_path) VALUES ($1, $2, $3)
		ON CONFLICT (key) DO UPDATE SET time_limit_ms = EXCLUDED.time_limit_ms, asset_path = EXCLUDED.asset_path`,
		q.Key, q.TimeLimit.Milliseconds(), q.AssetPath,
	); err != nil {
		return fmt.Errorf("save question: %w", err)
	}
	for locale, choices := range content.Locales {
		choices.QuestionKey = q.Key
		choices.Locale = locale
		raw, err := json.Marshal(choices)
		if err != nil {
			return fmt.Errorf("marshal question choices: %w", err)
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO question_choices (question_key, locale, data) VALUES ($1, $2, $3)
			ON CONFLICT (question_key, locale) DO UPDATE SET data = EXCLUDED.data`,
			q.Key, locale, string(raw),
		); err != nil {
			return fmt.Errorf("save question choices: %w", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit save question: %w", err)
	}
	return nil
}
