package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"trivia-live-service/internal/app"
	"trivia-live-service/internal/domain"
)

const maxInboundMessage = 4096

// LiveGame is what a websocket session needs from the game.
type LiveGame interface {
	SubscribePlayer(ctx context.Context, matchID, playerID, locale string, info domain.DisplayInfo) (app.Result, error)
	GetMatch(ctx context.Context, matchID string) (domain.Match, error)
	SubmitAnswer(ctx context.Context, req app.AnswerRequest) (app.AnswerOutcome, error)
}

// SnapshotSource returns the last synchro update of a match seen by any instance.
type SnapshotSource interface {
	Latest(ctx context.Context, matchID string) (domain.Match, error)
}

type WSHandler struct {
	game      LiveGame
	hub       *Hub
	snapshots SnapshotSource
	logger    *slog.Logger
	upgrader  websocket.Upgrader
}

func NewWSHandler(game LiveGame, hub *Hub, logger *slog.Logger) *WSHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &WSHandler{
		game:   game,
		hub:    hub,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type answerPayload struct {
	QuestionKey string `json:"questionKey"`
	ChoiceKey   string `json:"selectedChoiceKey"`
}

type outboundMessage struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// ServeWS streams synchro updates of one match. When playerId, locale and name
// are given the player is subscribed to the match and may answer over the socket.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	matchID := q.Get("matchId")
	playerID := q.Get("playerId")
	locale := q.Get("locale")
	name := q.Get("name")
	if matchID == "" {
		http.Error(w, "missing matchId", http.StatusBadRequest)
		return
	}
	player := playerID != "" && locale != "" && name != ""

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("ws upgrade failed", "error", err)
		return
	}
	defer conn.Close()
	conn.SetReadLimit(maxInboundMessage)

	ctx := r.Context()
	match, err := h.game.GetMatch(ctx, matchID)
	if err != nil {
		_ = conn.WriteJSON(outboundMessage{Type: "error", Payload: wsError(err)})
		return
	}
	if player {
		if _, err := h.game.SubscribePlayer(ctx, matchID, playerID, locale, domain.DisplayInfo{Nickname: name, Avatar: q.Get("avatar")}); err != nil {
			_ = conn.WriteJSON(outboundMessage{Type: "error", Payload: wsError(err)})
			return
		}
	}
	if last, ok := h.hub.Last(matchID); ok {
		match = last
	} else if h.snapshots != nil {
		if last, err := h.snapshots.Latest(ctx, matchID); err == nil {
			match = last
		}
	}

	updates, cancel := h.hub.Subscribe(matchID)
	defer cancel()

	send := make(chan outboundMessage, 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	updatesDone := make(chan struct{})

	// Only the writer goroutine touches conn for writes.
	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				h.logger.Debug("ws write failed", "match_id", matchID, "error", err)
				return
			}
		}
	}()

	go func() {
		defer close(updatesDone)
		for {
			select {
			case update, ok := <-updates:
				if !ok {
					return
				}
				select {
				case send <- outboundMessage{Type: "synchro", Payload: update}:
				case <-closeSignals:
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	send <- outboundMessage{Type: "synchro", Payload: match}

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		var reply outboundMessage
		switch inbound.Type {
		case "answer":
			reply = h.answer(ctx, player, matchID, playerID, name, locale, inbound.Payload)
		case "ping":
			reply = outboundMessage{Type: "pong"}
		default:
			reply = outboundMessage{Type: "error", Payload: errorPayload{Message: "unsupported message type"}}
		}
		select {
		case send <- reply:
		case <-writerDone:
		}
	}

	close(closeSignals)
	<-updatesDone
	close(send)
	<-writerDone
}

func (h *WSHandler) answer(ctx context.Context, player bool, matchID, playerID, name, locale string, raw json.RawMessage) outboundMessage {
	if !player {
		return outboundMessage{Type: "error", Payload: errorPayload{Message: "connect with playerId, locale and name to answer"}}
	}
	var payload answerPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return outboundMessage{Type: "error", Payload: errorPayload{Message: "invalid answer payload"}}
	}
	out, err := h.game.SubmitAnswer(ctx, app.AnswerRequest{
		MatchID:     matchID,
		PlayerID:    playerID,
		PlayerName:  name,
		QuestionKey: payload.QuestionKey,
		ChoiceKey:   payload.ChoiceKey,
		Locale:      locale,
	})
	if err != nil {
		return outboundMessage{Type: "error", Payload: wsError(err)}
	}
	return outboundMessage{Type: "answerResult", Payload: out}
}

func wsError(err error) errorPayload {
	kind := domain.KindOf(err)
	if kind == domain.KindInternal {
		return errorPayload{Message: "internal error", Code: string(kind)}
	}
	return errorPayload{Message: err.Error(), Code: string(kind)}
}
