package domain

// ScopeKind tags which collection of player statistics a leaderboard reads.
type ScopeKind string

const (
	ScopeGlobal ScopeKind = "global"
	ScopeMatch  ScopeKind = "match"
)

// ScopeFields names the record fields a scope ranks and counts on.
// An empty Total means total answers are derived as Correct + Wrong.
type ScopeFields struct {
	Score   string
	Correct string
	Wrong   string
	Total   string
}

var (
	globalFields = ScopeFields{
		Score:   "totalScore",
		Correct: "totalCorrectAnswers",
		Wrong:   "totalWrongAnswers",
		Total:   "totalQuestions",
	}
	matchFields = ScopeFields{
		Score:   "score",
		Correct: "correctAnswers",
		Wrong:   "wrongAnswers",
	}
)

// Scope selects lifetime statistics for a locale or one match's statistics.
type Scope struct {
	Kind    ScopeKind
	MatchID string
	Locale  string
	Fields  ScopeFields
}

// GlobalScope ranks lifetime player profiles of a locale.
func GlobalScope(locale string) Scope {
	return Scope{Kind: ScopeGlobal, Locale: locale, Fields: globalFields}
}

// MatchScope ranks the players subscribed to one match in a locale.
func MatchScope(matchID, locale string) Scope {
	return Scope{Kind: ScopeMatch, MatchID: matchID, Locale: locale, Fields: matchFields}
}

// TotalAnswers applies the scope's rule for how many questions a standing covers.
func (s Scope) TotalAnswers(p PlayerStanding) int {
	if s.Fields.Total == "" {
		return p.CorrectAnswers + p.WrongAnswers
	}
	return p.TotalQuestions
}

// PlaceholderForMissing reports whether a requester without a record still gets a zero entry.
func (s Scope) PlaceholderForMissing() bool {
	return s.Kind == ScopeMatch
}
