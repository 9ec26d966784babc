package app

import (
	"context"
	"fmt"
	"testing"

	"trivia-live-service/internal/domain"
	"trivia-live-service/internal/infra/memory"
)

func TestAssembleRanksByScore(t *testing.T) {
	standings := []domain.PlayerStanding{
		{PlayerID: "a", Score: 300, CorrectAnswers: 1},
		{PlayerID: "b", Score: 50, CorrectAnswers: 1, WrongAnswers: 1, Avatar: "fries"},
		{PlayerID: "c", Score: 10, WrongAnswers: 1},
	}
	lb := assemble(domain.MatchScope("m1", "en"), standings, "b", 10)

	if lb.TotalPlayers != 3 || len(lb.Entries) != 3 {
		t.Fatalf("expected 3 entries of 3 players, got %+v", lb)
	}
	for i, e := range lb.Entries {
		if e.Rank != i+1 {
			t.Fatalf("entry %d has rank %d", i, e.Rank)
		}
	}
	if lb.Entries[0].Avatar != domain.DefaultAvatar {
		t.Fatalf("expected default avatar, got %q", lb.Entries[0].Avatar)
	}
	if !lb.Entries[1].IsPlayer || lb.Entries[1].TotalAnswers != 2 {
		t.Fatalf("expected requester flagged with 2 answers, got %+v", lb.Entries[1])
	}
}

func TestAssembleKeepsTopAndRequester(t *testing.T) {
	standings := make([]domain.PlayerStanding, 0, 30)
	for i := 0; i < 30; i++ {
		standings = append(standings, domain.PlayerStanding{PlayerID: fmt.Sprintf("p%02d", i), Score: float64(1000 - i)})
	}

	lb := assemble(domain.MatchScope("m1", "en"), standings, "p25", 10)
	if len(lb.Entries) != 11 {
		t.Fatalf("expected top 10 plus requester, got %d", len(lb.Entries))
	}
	last := lb.Entries[10]
	if last.PlayerID != "p25" || last.Rank != 26 || !last.IsPlayer {
		t.Fatalf("unexpected requester entry %+v", last)
	}

	inTop := assemble(domain.MatchScope("m1", "en"), standings, "p03", 10)
	if len(inTop.Entries) != 10 {
		t.Fatalf("requester in top 10 must not be duplicated, got %d entries", len(inTop.Entries))
	}
	seen := 0
	for _, e := range inTop.Entries {
		if e.PlayerID == "p03" {
			seen++
		}
	}
	if seen != 1 {
		t.Fatalf("expected requester exactly once, got %d", seen)
	}
}

func TestAssemblePlaceholderOnlyForMatchScope(t *testing.T) {
	standings := []domain.PlayerStanding{{PlayerID: "a", Score: 1}}

	match := assemble(domain.MatchScope("m1", "en"), standings, "ghost", 10)
	if len(match.Entries) != 2 {
		t.Fatalf("expected placeholder in match scope, got %+v", match.Entries)
	}
	ph := match.Entries[1]
	if ph.PlayerID != "ghost" || ph.Rank != 0 || ph.Score != 0 || !ph.IsPlayer {
		t.Fatalf("unexpected placeholder %+v", ph)
	}

	global := assemble(domain.GlobalScope("en"), standings, "ghost", 10)
	if len(global.Entries) != 1 {
		t.Fatalf("expected no placeholder in global scope, got %+v", global.Entries)
	}
}

func TestAssemblerGlobalTotals(t *testing.T) {
	ctx := context.Background()
	plays := memory.NewPlayStore()
	_ = plays.EnsureProfile(ctx, "en", domain.PlayerProfile{PlayerID: "p1", Nickname: "Ann", Avatar: "nuggets"})
	_ = plays.ApplyLifetimeScore(ctx, "en", "p1", "m1", domain.ScoreDelta{Score: 350, Correct: 1})
	_ = plays.ApplyLifetimeScore(ctx, "en", "p1", "m2", domain.ScoreDelta{Score: 5, Wrong: 1})

	lb, err := NewLeaderboardAssembler(plays, 0).Assemble(ctx, domain.GlobalScope("en"), "p1")
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	if len(lb.Entries) != 1 {
		t.Fatalf("expected one entry, got %+v", lb.Entries)
	}
	e := lb.Entries[0]
	if e.Score != 355 || e.TotalAnswers != 2 || e.Nickname != "Ann" || e.Avatar != "nuggets" || e.Rank != 1 {
		t.Fatalf("unexpected global entry %+v", e)
	}
}
