package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, "server:\n  port: \"9090\"\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != "9090" {
		t.Fatalf("expected port from file, got %q", cfg.Server.Port)
	}
	if cfg.Scoring.CorrectPoints != 300 || cfg.Scoring.FirstAnswerBonus != 50 || cfg.Scoring.WrongPoints != 10 {
		t.Fatalf("unexpected scoring defaults %+v", cfg.Scoring)
	}
	if cfg.Reward.RankCutoff != 100 || cfg.Leaderboard.Top != 10 {
		t.Fatalf("unexpected ranking defaults: cutoff=%d top=%d", cfg.Reward.RankCutoff, cfg.Leaderboard.Top)
	}
	if cfg.Match.Lead != 90*time.Second || cfg.Match.SweepInterval != time.Minute {
		t.Fatalf("unexpected match defaults %+v", cfg.Match)
	}
	if cfg.Match.RunTimeout != 15*time.Minute || cfg.Match.SweepTimeout != 30*time.Second {
		t.Fatalf("unexpected match defaults %+v", cfg.Match)
	}
}

func TestLoadExpandsEnvAndOverrides(t *testing.T) {
	t.Setenv("TRIVIA_TEST_REDIS", "cache:6379")
	t.Setenv("REWARD_RANK_CUTOFF", "25")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("MATCH_LOBBY", "45s")
	t.Setenv("MATCH_SWEEP_TIMEOUT", "5s")
	path := writeConfig(t, `
redis:
  addr: ${TRIVIA_TEST_REDIS}
reward:
  rankCutoff: 50
match:
  lobby: 2m
  debug: true
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Redis.Addr != "cache:6379" {
		t.Fatalf("expected expanded redis addr, got %q", cfg.Redis.Addr)
	}
	if cfg.Reward.RankCutoff != 25 {
		t.Fatalf("expected env override of cutoff, got %d", cfg.Reward.RankCutoff)
	}
	if cfg.Match.Lobby != 45*time.Second || !cfg.Match.Debug || cfg.Match.SweepTimeout != 5*time.Second {
		t.Fatalf("unexpected match section %+v", cfg.Match)
	}
	if len(cfg.Kafka.Brokers) != 2 || cfg.Kafka.Brokers[1] != "k2:9092" {
		t.Fatalf("unexpected brokers %v", cfg.Kafka.Brokers)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for explicit missing path")
	}

	dir := t.TempDir()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })

	cfg, err := Load(DefaultPath)
	if err != nil {
		t.Fatalf("default path may be absent: %v", err)
	}
	def := Default()
	if cfg.Scoring != def.Scoring || cfg.Match != def.Match || cfg.Reward != def.Reward {
		t.Fatalf("expected defaults, got %+v", cfg)
	}
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	if _, err := Load(writeConfig(t, "server: [unclosed")); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestTTLDuration(t *testing.T) {
	cases := []struct {
		raw  string
		want time.Duration
	}{
		{"", time.Minute},
		{"90s", 90 * time.Second},
		{"bogus", time.Minute},
	}
	for _, tc := range cases {
		if got := TTLDuration(tc.raw, time.Minute); got != tc.want {
			t.Fatalf("TTLDuration(%q) = %v, want %v", tc.raw, got, tc.want)
		}
	}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}
