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

// MatchRepository stores matches in Postgres. Lease changes are single conditional
// UPDATE statements, so two runners can never both hold a match.
type MatchRepository struct {
	pool *pgxpool.Pool
}

func NewMatchRepository(pool *pgxpool.Pool) *MatchRepository {
	return &MatchRepository{pool: pool}
}

const matchColumns = `id, question_keys, starting_at, lobby_ms, question_time_limit_ms, result_time_limit_ms,
	status, is_locked, lease_owner, lease_until, synchro, rating`

// statusOrder ranks statuses so SQL can refuse backward transitions.
const statusOrder = `ARRAY['scheduled','ready','playing','completed']`

func (r *MatchRepository) GetMatch(ctx context.Context, matchID string) (domain.Match, error) {
	m, err := scanMatch(r.pool.QueryRow(ctx, `SELECT `+matchColumns+` FROM matches WHERE id=$1`, matchID))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Match{}, domain.ErrMatchNotFound
	}
	if err != nil {
		return domain.Match{}, fmt.Errorf("load match: %w", err)
	}
	return m, nil
}

func (r *MatchRepository) DueMatches(ctx context.Context, before time.Time) ([]domain.Match, error) {
	return r.query(ctx, `SELECT `+matchColumns+` FROM matches
		WHERE status='scheduled' AND starting_at < $1
		ORDER BY starting_at`, before)
}

func (r *MatchRepository) StalledMatches(ctx context.Context, now time.Time) ([]domain.Match, error) {
	return r.query(ctx, `SELECT `+matchColumns+` FROM matches
		WHERE is_locked AND status IN ('ready','playing') AND lease_until < $1
		ORDER BY starting_at`, now)
}

func (r *MatchRepository) ListMatches(ctx context.Context) ([]domain.Match, error) {
	return r.query(ctx, `SELECT `+matchColumns+` FROM matches ORDER BY starting_at`)
}

func (r *MatchRepository) ClaimMatch(ctx context.Context, matchID, owner string, now, leaseUntil time.Time) (domain.Claim, error) {
	m, err := scanMatch(r.pool.QueryRow(ctx, `
		UPDATE matches SET
			status = CASE WHEN status = 'scheduled' THEN 'ready' ELSE status END,
			is_locked = true,
			lease_owner = $2,
			lease_until = $4,
			updated_at = $3
		WHERE id = $1 AND (
			(status = 'scheduled' AND NOT is_locked)
			OR (is_locked AND status IN ('ready','playing') AND lease_until < $3)
		)
		RETURNING `+matchColumns, matchID, owner, now, leaseUntil))
	if err == nil {
		return domain.Claim{Match: m, Claimed: true}, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return domain.Claim{}, fmt.Errorf("claim match: %w", err)
	}
	current, err := r.GetMatch(ctx, matchID)
	if err != nil {
		return domain.Claim{}, err
	}
	return domain.Claim{Match: current}, nil
}

func (r *MatchRepository) SaveProgress(ctx context.Context, matchID, owner string, progress domain.MatchProgress) error {
	synchro, err := json.Marshal(progress.Synchro)
	if err != nil {
		return fmt.Errorf("marshal synchro: %w", err)
	}
	tag, err := r.pool.Exec(ctx, `
		UPDATE matches SET
			status = $3,
			synchro = $4,
			is_locked = $5::boolean,
			lease_until = $6,
			lease_owner = CASE WHEN $5::boolean THEN lease_owner ELSE '' END,
			updated_at = now()
		WHERE id = $1 AND lease_owner = $2
			AND array_position(`+statusOrder+`, status) <= array_position(`+statusOrder+`, $3::text)`,
		matchID, owner, string(progress.Status), string(synchro), progress.IsLocked, progress.LeaseUntil)
	if err != nil {
		return fmt.Errorf("save match progress: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	if _, err := r.GetMatch(ctx, matchID); err != nil {
		return err
	}
	return domain.ErrLeaseLost
}

func (r *MatchRepository) SaveRating(ctx context.Context, matchID string, rating domain.Rating) error {
	raw, err := json.Marshal(rating)
	if err != nil {
		return fmt.Errorf("marshal rating: %w", err)
	}
	tag, err := r.pool.Exec(ctx, `UPDATE matches SET rating=$2, updated_at=now() WHERE id=$1`, matchID, string(raw))
	if err != nil {
		return fmt.Errorf("save rating: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrMatchNotFound
	}
	return nil
}

func (r *MatchRepository) ScheduleMatch(ctx context.Context, m domain.Match) error {
	status := m.Status
	if status == "" {
		status = domain.MatchScheduled
	}
	tag, err := r.pool.Exec(ctx, `
		INSERT INTO matches (id, question_keys, starting_at, lobby_ms, question_time_limit_ms, result_time_limit_ms, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO NOTHING`,
		m.ID, m.QuestionKeys, m.StartingAt, m.LobbyDuration.Milliseconds(),
		m.QuestionTimeLimit.Milliseconds(), m.ResultTimeLimit.Milliseconds(), string(status))
	if err != nil {
		return fmt.Errorf("schedule match: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrMatchExists
	}
	return nil
}

func (r *MatchRepository) query(ctx context.Context, sql string, args ...interface{}) ([]domain.Match, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query matches: %w", err)
	}
	defer rows.Close()

	var out []domain.Match
	for rows.Next() {
		m, err := scanMatch(rows)
		if err != nil {
			return nil, fmt.Errorf("scan match: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read matches: %w", err)
	}
	return out, nil
}

func scanMatch(row pgx.Row) (domain.Match, error) {
	var (
		m                             domain.Match
		lobbyMs, questionMs, resultMs int64
		status                        string
		synchro, rating               []byte
	)
	err := row.Scan(
		&m.ID, &m.QuestionKeys, &m.StartingAt, &lobbyMs, &questionMs, &resultMs,
		&status, &m.IsLocked, &m.LeaseOwner, &m.LeaseUntil, &synchro, &rating,
	)
	if err != nil {
		return domain.Match{}, err
	}
	m.LobbyDuration = time.Duration(lobbyMs) * time.Millisecond
	m.QuestionTimeLimit = time.Duration(questionMs) * time.Millisecond
	m.ResultTimeLimit = time.Duration(resultMs) * time.Millisecond
	m.Status = domain.MatchStatus(status)
	if len(synchro) > 0 {
		if err := json.Unmarshal(synchro, &m.Synchro); err != nil {
			return domain.Match{}, fmt.Errorf("unmarshal synchro: %w", err)
		}
	}
	if len(rating) > 0 {
		var rt domain.Rating
		if err := json.Unmarshal(rating, &rt); err != nil {
			return domain.Match{}, fmt.Errorf("unmarshal rating: %w", err)
		}
		m.Rating = &rt
	}
	return m, nil
}
