package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"trivia-live-service/internal/domain"
)

func TestClaimMatchIsExclusive(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	repo := NewMatchRepository(domain.Match{ID: "m1", Status: domain.MatchScheduled, StartingAt: now})

	first, err := repo.ClaimMatch(ctx, "m1", "owner-a", now, now.Add(time.Minute))
	if err != nil || !first.Claimed {
		t.Fatalf("expected first claim, claimed=%v err=%v", first.Claimed, err)
	}
	if first.Match.Status != domain.MatchReady || !first.Match.IsLocked {
		t.Fatalf("expected ready and locked, got %+v", first.Match)
	}

	second, err := repo.ClaimMatch(ctx, "m1", "owner-b", now.Add(30*time.Second), now.Add(2*time.Minute))
	if err != nil {
		t.Fatalf("second claim: %v", err)
	}
	if second.Claimed {
		t.Fatalf("expected live lease to block second claim")
	}

	// Once the lease runs out the match can be taken over without rewinding its status.
	if err := repo.SaveProgress(ctx, "m1", "owner-a", domain.MatchProgress{
		Status:     domain.MatchPlaying,
		Synchro:    domain.SynchroData{IsStarted: true, CurrentQuestionNumber: 2},
		IsLocked:   true,
		LeaseUntil: now.Add(time.Minute),
	}); err != nil {
		t.Fatalf("save progress: %v", err)
	}
	later := now.Add(5 * time.Minute)
	stalled, _ := repo.StalledMatches(ctx, later)
	if len(stalled) != 1 {
		t.Fatalf("expected one stalled match, got %d", len(stalled))
	}
	third, err := repo.ClaimMatch(ctx, "m1", "owner-c", later, later.Add(time.Minute))
	if err != nil || !third.Claimed {
		t.Fatalf("expected takeover, claimed=%v err=%v", third.Claimed, err)
	}
	if third.Match.Status != domain.MatchPlaying || third.Match.Synchro.CurrentQuestionNumber != 2 {
		t.Fatalf("takeover rewound state: %+v", third.Match)
	}

	err = repo.SaveProgress(ctx, "m1", "owner-a", domain.MatchProgress{Status: domain.MatchCompleted})
	if !errors.Is(err, domain.ErrLeaseLost) {
		t.Fatalf("expected lease lost for old owner, got %v", err)
	}
}

func TestDueMatchesFiltersByStatusAndStart(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	repo := NewMatchRepository(
		domain.Match{ID: "soon", Status: domain.MatchScheduled, StartingAt: now.Add(time.Minute)},
		domain.Match{ID: "later", Status: domain.MatchScheduled, StartingAt: now.Add(time.Hour)},
		domain.Match{ID: "done", Status: domain.MatchCompleted, StartingAt: now.Add(-time.Hour)},
	)

	due, err := repo.DueMatches(ctx, now.Add(90*time.Second))
	if err != nil {
		t.Fatalf("due matches: %v", err)
	}
	if len(due) != 1 || due[0].ID != "soon" {
		t.Fatalf("expected only 'soon', got %+v", due)
	}
}
