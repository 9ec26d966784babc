package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// DefaultPath is read when no --config flag is given. It may be absent.
const DefaultPath = "config/config.yaml"

type Config struct {
	Server struct {
		Port            string        `yaml:"port" env:"PORT"`
		ReadTimeout     time.Duration `yaml:"readTimeout" env:"SERVER_READ_TIMEOUT"`
		WriteTimeout    time.Duration `yaml:"writeTimeout" env:"SERVER_WRITE_TIMEOUT"`
		ShutdownTimeout time.Duration `yaml:"shutdownTimeout" env:"SERVER_SHUTDOWN_TIMEOUT"`
	} `yaml:"server"`
	Log struct {
		Level  string `yaml:"level" env:"LOG_LEVEL"`
		Format string `yaml:"format" env:"LOG_FORMAT"`
	} `yaml:"log"`
	Redis struct {
		Addr     string `yaml:"addr" env:"REDIS_ADDR"`
		Password string `yaml:"password" env:"REDIS_PASSWORD"`
		DB       int    `yaml:"db" env:"REDIS_DB"`
		// SynchroTTL is how long the last synchro snapshot of a match is kept.
		SynchroTTL string `yaml:"synchroTtl" env:"REDIS_SYNCHRO_TTL"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url" env:"DATABASE_URL"`
	} `yaml:"postgres"`
	Questions struct {
		TTL string `yaml:"ttl" env:"QUESTIONS_TTL"`
	} `yaml:"questions"`
	Scoring struct {
		FirstAnswerBonus float64 `yaml:"firstAnswerBonus" env:"SCORING_FIRST_ANSWER_BONUS"`
		CorrectPoints    float64 `yaml:"correctPoints" env:"SCORING_CORRECT_POINTS"`
		WrongPoints      float64 `yaml:"wrongPoints" env:"SCORING_WRONG_POINTS"`
	} `yaml:"scoring"`
	Match struct {
		Lead              time.Duration `yaml:"lead" env:"MATCH_LEAD"`
		Lobby             time.Duration `yaml:"lobby" env:"MATCH_LOBBY"`
		QuestionTimeLimit time.Duration `yaml:"questionTimeLimit" env:"MATCH_QUESTION_TIME_LIMIT"`
		LeaseGrace        time.Duration `yaml:"leaseGrace" env:"MATCH_LEASE_GRACE"`
		// RunTimeout caps one match run; SweepTimeout caps the query and claim step of a sweep.
		RunTimeout    time.Duration `yaml:"runTimeout" env:"MATCH_RUN_TIMEOUT"`
		SweepInterval time.Duration `yaml:"sweepInterval" env:"MATCH_SWEEP_INTERVAL"`
		SweepTimeout  time.Duration `yaml:"sweepTimeout" env:"MATCH_SWEEP_TIMEOUT"`
		MaxConcurrent int           `yaml:"maxConcurrent" env:"MATCH_MAX_CONCURRENT"`
		// Debug makes every sweep pick up all matches regardless of schedule.
		Debug bool `yaml:"debug" env:"MATCH_DEBUG"`
	} `yaml:"match"`
	Leaderboard struct {
		Top int `yaml:"top" env:"LEADERBOARD_TOP"`
	} `yaml:"leaderboard"`
	Reward struct {
		RankCutoff int `yaml:"rankCutoff" env:"REWARD_RANK_CUTOFF"`
	} `yaml:"reward"`
	Blob struct {
		Endpoint        string        `yaml:"endpoint" env:"BLOB_ENDPOINT"`
		Region          string        `yaml:"region" env:"BLOB_REGION"`
		Bucket          string        `yaml:"bucket" env:"BLOB_BUCKET"`
		AccessKeyID     string        `yaml:"accessKeyId" env:"BLOB_ACCESS_KEY_ID"`
		SecretAccessKey string        `yaml:"secretAccessKey" env:"BLOB_SECRET_ACCESS_KEY"`
		URLExpiry       time.Duration `yaml:"urlExpiry" env:"BLOB_URL_EXPIRY"`
	} `yaml:"blob"`
	Kafka struct {
		Brokers  []string `yaml:"brokers" env:"KAFKA_BROKERS" envSeparator:","`
		Topic    string   `yaml:"topic" env:"KAFKA_TOPIC"`
		ClientID string   `yaml:"clientId" env:"KAFKA_CLIENT_ID"`
	} `yaml:"kafka"`
}

// Default returns a config that runs fully in memory.
func Default() Config {
	cfg := Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads YAML config from path, expands ${VAR} references and applies
// environment overrides. A missing file is tolerated only for DefaultPath.
func Load(path string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist) && path == DefaultPath:
	case err != nil:
		return cfg, fmt.Errorf("reading config file: %w", err)
	default:
		data = []byte(os.ExpandEnv(string(data)))
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parsing environment: %w", err)
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == "" {
		c.Server.Port = "8080"
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 15 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 15 * time.Second
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 10 * time.Second
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}

	if c.Scoring.FirstAnswerBonus == 0 {
		c.Scoring.FirstAnswerBonus = 50
	}
	if c.Scoring.CorrectPoints == 0 {
		c.Scoring.CorrectPoints = 300
	}
	if c.Scoring.WrongPoints == 0 {
		c.Scoring.WrongPoints = 10
	}

	if c.Match.Lead == 0 {
		c.Match.Lead = 90 * time.Second
	}
	if c.Match.Lobby == 0 {
		c.Match.Lobby = 5 * time.Minute
	}
	if c.Match.QuestionTimeLimit == 0 {
		c.Match.QuestionTimeLimit = 10 * time.Second
	}
	if c.Match.LeaseGrace == 0 {
		c.Match.LeaseGrace = 30 * time.Second
	}
	if c.Match.RunTimeout == 0 {
		c.Match.RunTimeout = 15 * time.Minute
	}
	if c.Match.SweepInterval == 0 {
		c.Match.SweepInterval = time.Minute
	}
	if c.Match.SweepTimeout == 0 {
		c.Match.SweepTimeout = 30 * time.Second
	}

	if c.Leaderboard.Top == 0 {
		c.Leaderboard.Top = 10
	}
	if c.Reward.RankCutoff == 0 {
		c.Reward.RankCutoff = 100
	}
	if c.Blob.URLExpiry == 0 {
		c.Blob.URLExpiry = time.Hour
	}
	if c.Kafka.Topic == "" {
		c.Kafka.Topic = "trivia-events"
	}
	if c.Kafka.ClientID == "" {
		c.Kafka.ClientID = "trivia-service"
	}
}

// TTLDuration parses a duration string or returns the fallback if empty.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
