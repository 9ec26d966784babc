package redis

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"trivia-live-service/internal/domain"
)

// SynchroChannel carries every match synchro change to all service instances.
const SynchroChannel = prefix + "synchro"

// SynchroStore shares match synchro state across instances.
// Notes:
//   - The latest snapshot per match is kept under a key with a TTL so late joiners can
//     catch up without reading the match store.
//   - Every change is also published on SynchroChannel; each instance relays what it
//     receives to its own websocket clients via Listen.
type SynchroStore struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

func NewSynchroStore(client *redis.Client, ttl time.Duration, logger *slog.Logger) *SynchroStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &SynchroStore{client: client, ttl: ttl, logger: logger}
}

// MatchUpdated stores and publishes the snapshot. Failures are logged; the lifecycle goes on.
func (s *SynchroStore) MatchUpdated(match domain.Match) {
	payload, err := json.Marshal(match)
	if err != nil {
		s.logger.Error("encode synchro snapshot", "match_id", match.ID, "error", err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	pipe := s.client.Pipeline()
	pipe.Set(ctx, synchroKey(match.ID), payload, s.ttl)
	pipe.Publish(ctx, SynchroChannel, payload)
	if _, err := pipe.Exec(ctx); err != nil {
		s.logger.Warn("publish synchro snapshot", "match_id", match.ID, "error", err)
	}
}

// Latest returns the last snapshot of a match, or ErrMatchNotFound when none is live.
func (s *SynchroStore) Latest(ctx context.Context, matchID string) (domain.Match, error) {
	raw, err := s.client.Get(ctx, synchroKey(matchID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.Match{}, domain.ErrMatchNotFound
	}
	if err != nil {
		return domain.Match{}, err
	}
	var m domain.Match
	if err := json.Unmarshal(raw, &m); err != nil {
		return domain.Match{}, err
	}
	return m, nil
}

// Listen delivers every published snapshot to deliver until ctx is done.
func (s *SynchroStore) Listen(ctx context.Context, deliver func(domain.Match)) error {
	sub := s.client.Subscribe(ctx, SynchroChannel)
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		return err
	}
	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var m domain.Match
			if err := json.Unmarshal([]byte(msg.Payload), &m); err != nil {
				s.logger.Warn("decode synchro snapshot", "error", err)
				continue
			}
			deliver(m)
		}
	}
}
