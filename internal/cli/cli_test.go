package cli

import (
	"context"
	"strings"
	"testing"
	"time"

	"trivia-live-service/internal/config"
	"trivia-live-service/internal/domain"
)

const scheduleYAML = `
questions:
  - key: q1
    timeLimitSeconds: 15
    assetPath: questions/q1.png
    locales:
      en:
        prompt: What is 2 + 2?
        choices:
          - {key: o1, text: "3"}
          - {key: o2, text: "4", correct: true}
rewards:
  - matchId: m1
    locale: en
    loyaltyId: loyal-1
    iconPath: rewards/icon.png
    standard: {name: Fries, imagePath: rewards/fries.png}
    premium: {name: Burger, imagePath: rewards/burger.png}
matches:
  - id: m1
    questions: [q1]
    startingAt: 2024-11-22T18:00:00Z
    lobbySeconds: 120
    resultTimeLimit: 5
`

func TestParseScheduleFile(t *testing.T) {
	sf, err := parseScheduleFile([]byte(scheduleYAML))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(sf.Questions) != 1 || len(sf.Rewards) != 1 || len(sf.Matches) != 1 {
		t.Fatalf("unexpected file %+v", sf)
	}

	content := sf.Questions[0].content()
	if content.Question.TimeLimit != 15*time.Second {
		t.Fatalf("unexpected time limit %v", content.Question.TimeLimit)
	}
	correct, err := content.Locales["en"].CorrectChoiceKey()
	if err != nil || correct != "o2" {
		t.Fatalf("expected o2 correct, got %q %v", correct, err)
	}

	reward := sf.Rewards[0].reward()
	if reward.Premium.ImagePath != "rewards/burger.png" || reward.IconPath != "rewards/icon.png" {
		t.Fatalf("unexpected reward %+v", reward)
	}

	m := sf.Matches[0].Match()
	if m.LobbyDuration != 2*time.Minute || m.ResultTimeLimit != 5*time.Second || m.Status != domain.MatchScheduled {
		t.Fatalf("unexpected match %+v", m)
	}
	if !m.StartingAt.Equal(time.Date(2024, 11, 22, 18, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected start %v", m.StartingAt)
	}
}

func TestParseScheduleFileRejectsBadContent(t *testing.T) {
	cases := map[string]string{
		"no correct choice": "questions:\n  - key: q1\n    locales:\n      en:\n        choices:\n          - {key: a, text: x}\n",
		"no key":            "questions:\n  - locales: {}\n",
		"reward locale":     "rewards:\n  - matchId: m1\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := parseScheduleFile([]byte(body)); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestMemoryBackendRunsSampleMatch(t *testing.T) {
	cfg := config.Default()
	b, err := openBackend(context.Background(), cfg, newLogger("error", "text"))
	if err != nil {
		t.Fatalf("open backend: %v", err)
	}
	defer b.Close()

	service := b.service(nil)
	m, err := service.GetMatch(context.Background(), "sample")
	if err != nil {
		t.Fatalf("sample match: %v", err)
	}
	for _, key := range m.QuestionKeys {
		if _, err := service.GetQuestion(context.Background(), key, "en"); err != nil {
			t.Fatalf("sample question %s: %v", key, err)
		}
	}
}

func TestGameConfigFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Reward.RankCutoff = 3
	cfg.Match.MaxConcurrent = 4

	gc := gameConfig(cfg)
	if gc.RewardRankCutoff != 3 || gc.Lifecycle.MaxConcurrent != 4 {
		t.Fatalf("unexpected game config %+v", gc)
	}
	if gc.Scoring.CorrectPoints != 300 || gc.LeaderboardTop != 10 || gc.Lifecycle.Lead != 90*time.Second {
		t.Fatalf("defaults not carried over: %+v", gc)
	}
}

func TestRootCommandTree(t *testing.T) {
	root := newRootCmd()
	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	got := strings.Join(names, ",")
	for _, want := range []string{"start", "migrate", "sweep", "schedule"} {
		if !strings.Contains(got, want) {
			t.Fatalf("missing %s command in %s", want, got)
		}
	}
}
