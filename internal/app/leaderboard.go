package app

import (
	"context"

	"trivia-live-service/internal/domain"
)

// DefaultLeaderboardTop is how many ranked entries a leaderboard shows besides the requester.
const DefaultLeaderboardTop = 10

// LeaderboardAssembler builds ranked player statistics for a scope.
type LeaderboardAssembler struct {
	plays PlayStore
	top   int
}

func NewLeaderboardAssembler(plays PlayStore, top int) *LeaderboardAssembler {
	if top <= 0 {
		top = DefaultLeaderboardTop
	}
	return &LeaderboardAssembler{plays: plays, top: top}
}

// Assemble ranks every player in scope by score and keeps the top entries plus the
// requesting player.
func (a *LeaderboardAssembler) Assemble(ctx context.Context, scope domain.Scope, playerID string) (domain.Leaderboard, error) {
	standings, err := a.plays.RankedPlayers(ctx, scope)
	if err != nil {
		return domain.Leaderboard{}, domain.Internal("rank players", err)
	}
	return assemble(scope, standings, playerID, a.top), nil
}

// Locate returns the requesting player's entry, or a zero placeholder when absent.
func (a *LeaderboardAssembler) Locate(ctx context.Context, scope domain.Scope, playerID string) (domain.LeaderboardEntry, error) {
	standings, err := a.plays.RankedPlayers(ctx, scope)
	if err != nil {
		return domain.LeaderboardEntry{}, domain.Internal("rank players", err)
	}
	for i, s := range standings {
		if s.PlayerID == playerID {
			return toEntry(scope, s, i+1, true), nil
		}
	}
	return placeholder(playerID), nil
}

func assemble(scope domain.Scope, standings []domain.PlayerStanding, playerID string, top int) domain.Leaderboard {
	entries := make([]domain.LeaderboardEntry, 0, min(len(standings), top)+1)
	found := false
	for i, s := range standings {
		rank := i + 1
		isPlayer := playerID != "" && s.PlayerID == playerID
		if rank > top && !isPlayer {
			continue
		}
		if isPlayer {
			found = true
		}
		entries = append(entries, toEntry(scope, s, rank, isPlayer))
		if rank >= top && (found || playerID == "") {
			break
		}
	}
	if !found && playerID != "" && scope.PlaceholderForMissing() {
		entries = append(entries, placeholder(playerID))
	}
	return domain.Leaderboard{Entries: entries, TotalPlayers: len(standings)}
}

func toEntry(scope domain.Scope, s domain.PlayerStanding, rank int, isPlayer bool) domain.LeaderboardEntry {
	avatar := s.Avatar
	if avatar == "" {
		avatar = domain.DefaultAvatar
	}
	return domain.LeaderboardEntry{
		PlayerID:       s.PlayerID,
		Nickname:       s.Nickname,
		Avatar:         avatar,
		Rank:           rank,
		Score:          s.Score,
		TotalAnswers:   scope.TotalAnswers(s),
		CorrectAnswers: s.CorrectAnswers,
		WrongAnswers:   s.WrongAnswers,
		IsPlayer:       isPlayer,
	}
}

func placeholder(playerID string) domain.LeaderboardEntry {
	return domain.LeaderboardEntry{
		PlayerID: playerID,
		Avatar:   domain.DefaultAvatar,
		IsPlayer: true,
	}
}
