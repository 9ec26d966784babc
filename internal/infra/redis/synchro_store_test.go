package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"trivia-live-service/internal/domain"
)

func TestSynchroStoreKeepsLatestSnapshot(t *testing.T) {
	mr, client := newTestRedis(t)
	store := NewSynchroStore(client, time.Minute, nil)
	ctx := context.Background()

	if _, err := store.Latest(ctx, "m1"); !errors.Is(err, domain.ErrMatchNotFound) {
		t.Fatalf("expected not found before any update, got %v", err)
	}

	store.MatchUpdated(domain.Match{ID: "m1", Status: domain.MatchPlaying, Synchro: domain.SynchroData{IsStarted: true, CurrentQuestionNumber: 1}})
	store.MatchUpdated(domain.Match{ID: "m1", Status: domain.MatchPlaying, Synchro: domain.SynchroData{IsStarted: true, CurrentQuestionNumber: 1, IsResult: true}})

	if !mr.Exists("trivia:synchro:m1") {
		t.Fatalf("expected redis key to be set")
	}
	m, err := store.Latest(ctx, "m1")
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if !m.Synchro.IsResult || m.Status != domain.MatchPlaying {
		t.Fatalf("expected latest snapshot, got %+v", m)
	}

	mr.FastForward(2 * time.Minute)
	if mr.Exists("trivia:synchro:m1") {
		t.Fatalf("expected redis key to expire")
	}
}

func TestSynchroStoreListenRelaysUpdates(t *testing.T) {
	_, client := newTestRedis(t)
	store := NewSynchroStore(client, time.Minute, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan domain.Match, 1)
	ready := make(chan struct{})
	go func() {
		_ = store.Listen(ctx, func(m domain.Match) { got <- m })
	}()
	go func() {
		// Wait for the subscription before publishing.
		for ctx.Err() == nil {
			if n := client.PubSubNumSub(ctx, SynchroChannel).Val()[SynchroChannel]; n > 0 {
				close(ready)
				return
			}
			time.Sleep(5 * time.Millisecond)
		}
	}()

	select {
	case <-ready:
	case <-time.After(2 * time.Second):
		t.Fatal("subscription never became active")
	}
	store.MatchUpdated(domain.Match{ID: "m1", Synchro: domain.SynchroData{MatchOver: true}})

	select {
	case m := <-got:
		if m.ID != "m1" || !m.Synchro.MatchOver {
			t.Fatalf("unexpected relayed snapshot %+v", m)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no snapshot relayed")
	}
}
