package redis

import "trivia-live-service/internal/domain"

// Keys of one match and locale share the {match:<id>:<locale>} hash tag and keys of one
// locale's profiles share {profiles:<locale>}, so every script stays within one slot.
const prefix = "trivia:"

func matchTag(matchID, locale string) string {
	return prefix + "{match:" + matchID + ":" + locale + "}:"
}

func profileTag(locale string) string {
	return prefix + "{profiles:" + locale + "}:"
}

func answersKey(matchID, locale string) string    { return matchTag(matchID, locale) + "answers" }
func placementsKey(matchID, locale string) string { return matchTag(matchID, locale) + "placements" }

func answerCountKey(matchID, locale, questionKey string) string {
	return matchTag(matchID, locale) + "q:" + questionKey + ":count"
}

func choiceStatsKey(matchID, locale, questionKey string) string {
	return matchTag(matchID, locale) + "q:" + questionKey + ":choices"
}

func matchPlayerKey(matchID, locale, playerID string) string {
	return matchTag(matchID, locale) + "player:" + playerID
}

func profileKey(locale, playerID string) string { return profileTag(locale) + "profile:" + playerID }
func gamesKey(locale, playerID string) string   { return profileTag(locale) + "games:" + playerID }

// rankingKey is the sorted set of player ids ordered by the scope's score.
func rankingKey(scope domain.Scope) string {
	if scope.Kind == domain.ScopeMatch {
		return matchTag(scope.MatchID, scope.Locale) + "ranking"
	}
	return profileTag(scope.Locale) + "ranking"
}

// recordKey is the hash holding one player's statistics in scope.
func recordKey(scope domain.Scope, playerID string) string {
	if scope.Kind == domain.ScopeMatch {
		return matchPlayerKey(scope.MatchID, scope.Locale, playerID)
	}
	return profileKey(scope.Locale, playerID)
}

// nameField is the display name field of a scope's record.
func nameField(scope domain.Scope) string {
	if scope.Kind == domain.ScopeMatch {
		return "displayName"
	}
	return "nickname"
}

func questionCacheKey(questionKey string) string { return prefix + "question:" + questionKey }
func synchroKey(matchID string) string           { return prefix + "synchro:" + matchID }
