package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"trivia-live-service/internal/domain"
)

// Answers are stored as:   HSET {match}:answers    {player-question} {json}
// Placements as:           HSET {match}:placements {player-question} {n}
// Per-question counters:   {match}:q:{key}:count and HINCRBY {match}:q:{key}:choices
// Statistics records are hashes ranked by a sorted set per scope.

// createAnswerScript writes the answer only if absent and takes the next placement in the
// same step, so concurrent answers to a question get distinct placements.
var createAnswerScript = redis.NewScript(`
if redis.call('HEXISTS', KEYS[1], ARGV[1]) == 1 then
  return 0
end
local placement = redis.call('INCR', KEYS[3])
redis.call('HSET', KEYS[1], ARGV[1], ARGV[2])
redis.call('HSET', KEYS[2], ARGV[1], placement)
return placement
`)

// createRecordScript creates a statistics hash and its ranking entry unless the hash exists.
var createRecordScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
  return 0
end
redis.call('HSET', KEYS[1], unpack(ARGV, 2))
redis.call('ZADD', KEYS[2], 'NX', 0, ARGV[1])
return 1
`)

// applyScoreScript increments a statistics record and re-ranks it. With ARGV[2] == '1' the
// record must already exist. When KEYS[3] is given the game id is added to the played set.
var applyScoreScript = redis.NewScript(`
if ARGV[2] == '1' and redis.call('EXISTS', KEYS[1]) == 0 then
  return 0
end
redis.call('HINCRBYFLOAT', KEYS[1], ARGV[3], ARGV[7])
redis.call('HINCRBY', KEYS[1], ARGV[4], ARGV[8])
redis.call('HINCRBY', KEYS[1], ARGV[5], ARGV[9])
if ARGV[6] ~= '' then
  redis.call('HINCRBY', KEYS[1], ARGV[6], 1)
end
redis.call('HSET', KEYS[1], 'playerId', ARGV[1], 'updatedOn', ARGV[10])
if KEYS[3] then
  redis.call('SADD', KEYS[3], ARGV[11])
  redis.call('HSET', KEYS[1], 'lastGame', ARGV[11])
end
redis.call('ZADD', KEYS[2], redis.call('HGET', KEYS[1], ARGV[3]), ARGV[1])
return 1
`)

// overwriteScoreScript replaces a record's totals and its ranking score.
var overwriteScoreScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  return 0
end
redis.call('HSET', KEYS[1], ARGV[2], ARGV[5], ARGV[3], ARGV[6], ARGV[4], ARGV[7], 'updatedOn', ARGV[8])
redis.call('ZADD', KEYS[2], ARGV[5], ARGV[1])
return 1
`)

// updateIfExistsScript sets fields on a hash that must already exist.
var updateIfExistsScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  return 0
end
redis.call('HSET', KEYS[1], unpack(ARGV))
return 1
`)

// PlayStore keeps answers, choice counters, match players and lifetime profiles in Redis.
type PlayStore struct {
	client *redis.Client
	now    func() time.Time
}

func NewPlayStore(client *redis.Client) *PlayStore {
	return &PlayStore{client: client, now: time.Now}
}

func (s *PlayStore) CreateAnswer(ctx context.Context, matchID, locale string, answer domain.PlayerAnswer) (int, error) {
	answer.Placement = 0
	payload, err := json.Marshal(answer)
	if err != nil {
		return 0, fmt.Errorf("encode answer: %w", err)
	}
	keys := []string{
		answersKey(matchID, locale),
		placementsKey(matchID, locale),
		answerCountKey(matchID, locale, answer.QuestionKey),
	}
	placement, err := createAnswerScript.Run(ctx, s.client, keys, domain.AnswerID(answer.PlayerID, answer.QuestionKey), payload).Int()
	if err != nil {
		return 0, err
	}
	if placement == 0 {
		return 0, domain.ErrAnswerExists
	}
	return placement, nil
}

func (s *PlayStore) CountAnswers(ctx context.Context, matchID, locale, questionKey string) (int64, error) {
	n, err := s.client.Get(ctx, answerCountKey(matchID, locale, questionKey)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return n, err
}

func (s *PlayStore) ListAnswers(ctx context.Context, matchID, locale string) ([]domain.PlayerAnswer, error) {
	pipe := s.client.Pipeline()
	answersCmd := pipe.HGetAll(ctx, answersKey(matchID, locale))
	placementsCmd := pipe.HGetAll(ctx, placementsKey(matchID, locale))
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, err
	}
	placements := placementsCmd.Val()

	out := make([]domain.PlayerAnswer, 0, len(answersCmd.Val()))
	for id, raw := range answersCmd.Val() {
		var a domain.PlayerAnswer
		if err := json.Unmarshal([]byte(raw), &a); err != nil {
			return nil, fmt.Errorf("decode answer %s: %w", id, err)
		}
		a.Placement, _ = strconv.Atoi(placements[id])
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].QuestionKey != out[j].QuestionKey {
			return out[i].QuestionKey < out[j].QuestionKey
		}
		return out[i].Placement < out[j].Placement
	})
	return out, nil
}

func (s *PlayStore) IncrementChoice(ctx context.Context, matchID, locale, questionKey, choiceKey string) error {
	return s.client.HIncrBy(ctx, choiceStatsKey(matchID, locale, questionKey), choiceKey, 1).Err()
}

func (s *PlayStore) ChoiceStatistics(ctx context.Context, matchID, locale, questionKey string) (map[string]int64, error) {
	raw, err := s.client.HGetAll(ctx, choiceStatsKey(matchID, locale, questionKey)).Result()
	if err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(raw))
	for choice, v := range raw {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse choice count %s: %w", choice, err)
		}
		out[choice] = n
	}
	return out, nil
}

func (s *PlayStore) SubscribePlayer(ctx context.Context, matchID, locale string, player domain.MatchPlayer) (bool, error) {
	scope := domain.MatchScope(matchID, locale)
	args := []any{
		player.PlayerID,
		"playerId", player.PlayerID,
		"displayName", player.DisplayName,
		"avatar", player.Avatar,
		scope.Fields.Score, formatFloat(player.Score),
		scope.Fields.Correct, player.CorrectAnswers,
		scope.Fields.Wrong, player.WrongAnswers,
		"addedOn", formatTime(player.AddedOn),
		"updatedOn", formatTime(player.UpdatedOn),
	}
	created, err := createRecordScript.Run(ctx, s.client, []string{recordKey(scope, player.PlayerID), rankingKey(scope)}, args...).Int()
	if err != nil {
		return false, err
	}
	return created == 1, nil
}

func (s *PlayStore) UnsubscribePlayer(ctx context.Context, matchID, locale, playerID string) error {
	scope := domain.MatchScope(matchID, locale)
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, recordKey(scope, playerID))
		pipe.ZRem(ctx, rankingKey(scope), playerID)
		return nil
	})
	return err
}

func (s *PlayStore) GetMatchPlayer(ctx context.Context, matchID, locale, playerID string) (domain.MatchPlayer, error) {
	h, err := s.client.HGetAll(ctx, matchPlayerKey(matchID, locale, playerID)).Result()
	if err != nil {
		return domain.MatchPlayer{}, err
	}
	if len(h) == 0 {
		return domain.MatchPlayer{}, domain.ErrPlayerNotFound
	}
	return domain.MatchPlayer{
		PlayerID:       h["playerId"],
		DisplayName:    h["displayName"],
		Avatar:         h["avatar"],
		Score:          parseFloat(h["score"]),
		CorrectAnswers: parseInt(h["correctAnswers"]),
		WrongAnswers:   parseInt(h["wrongAnswers"]),
		RatingScore:    parseInt(h["ratingScore"]),
		RatingComment:  h["ratingComment"],
		AddedOn:        parseTime(h["addedOn"]),
		UpdatedOn:      parseTime(h["updatedOn"]),
	}, nil
}

func (s *PlayStore) ApplyMatchScore(ctx context.Context, matchID, locale, playerID string, delta domain.ScoreDelta) error {
	return s.applyScore(ctx, domain.MatchScope(matchID, locale), playerID, "", delta, true)
}

func (s *PlayStore) OverwriteMatchScore(ctx context.Context, matchID, locale, playerID string, totals domain.ScoreDelta) error {
	scope := domain.MatchScope(matchID, locale)
	ok, err := overwriteScoreScript.Run(ctx, s.client,
		[]string{recordKey(scope, playerID), rankingKey(scope)},
		playerID, scope.Fields.Score, scope.Fields.Correct, scope.Fields.Wrong,
		formatFloat(totals.Score), totals.Correct, totals.Wrong, formatTime(s.now()),
	).Int()
	if err != nil {
		return err
	}
	if ok == 0 {
		return domain.ErrPlayerNotFound
	}
	return nil
}

func (s *PlayStore) SetMatchRating(ctx context.Context, matchID, locale, playerID string, score int, comment string) error {
	ok, err := updateIfExistsScript.Run(ctx, s.client,
		[]string{matchPlayerKey(matchID, locale, playerID)},
		"ratingScore", score, "ratingComment", comment, "updatedOn", formatTime(s.now()),
	).Int()
	if err != nil {
		return err
	}
	if ok == 0 {
		return domain.ErrPlayerNotFound
	}
	return nil
}

func (s *PlayStore) EnsureProfile(ctx context.Context, locale string, profile domain.PlayerProfile) error {
	scope := domain.GlobalScope(locale)
	args := []any{
		profile.PlayerID,
		"playerId", profile.PlayerID,
		"nickname", profile.Nickname,
		"avatar", profile.Avatar,
		"addedOn", formatTime(profile.AddedOn),
		"updatedOn", formatTime(profile.UpdatedOn),
	}
	return createRecordScript.Run(ctx, s.client, []string{recordKey(scope, profile.PlayerID), rankingKey(scope)}, args...).Err()
}

func (s *PlayStore) UpsertProfile(ctx context.Context, locale string, profile domain.PlayerProfile) error {
	scope := domain.GlobalScope(locale)
	key := recordKey(scope, profile.PlayerID)
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key,
			"playerId", profile.PlayerID,
			"nickname", profile.Nickname,
			"avatar", profile.Avatar,
			"updatedOn", formatTime(profile.UpdatedOn),
		)
		pipe.HSetNX(ctx, key, "addedOn", formatTime(profile.AddedOn))
		pipe.ZAddNX(ctx, rankingKey(scope), redis.Z{Member: profile.PlayerID})
		return nil
	})
	return err
}

func (s *PlayStore) GetProfile(ctx context.Context, locale, playerID string) (domain.PlayerProfile, error) {
	pipe := s.client.Pipeline()
	hashCmd := pipe.HGetAll(ctx, profileKey(locale, playerID))
	gamesCmd := pipe.SMembers(ctx, gamesKey(locale, playerID))
	if _, err := pipe.Exec(ctx); err != nil {
		return domain.PlayerProfile{}, err
	}
	h := hashCmd.Val()
	if len(h) == 0 {
		return domain.PlayerProfile{}, domain.ErrPlayerNotFound
	}
	games := gamesCmd.Val()
	sort.Strings(games)
	return domain.PlayerProfile{
		PlayerID:            playerID,
		Nickname:            h["nickname"],
		Avatar:              h["avatar"],
		TotalScore:          parseFloat(h["totalScore"]),
		TotalQuestions:      parseInt(h["totalQuestions"]),
		TotalCorrectAnswers: parseInt(h["totalCorrectAnswers"]),
		TotalWrongAnswers:   parseInt(h["totalWrongAnswers"]),
		GamesPlayed:         games,
		LastGame:            h["lastGame"],
		AddedOn:             parseTime(h["addedOn"]),
		UpdatedOn:           parseTime(h["updatedOn"]),
	}, nil
}

func (s *PlayStore) ApplyLifetimeScore(ctx context.Context, locale, playerID, matchID string, delta domain.ScoreDelta) error {
	return s.applyScore(ctx, domain.GlobalScope(locale), playerID, matchID, delta, false)
}

func (s *PlayStore) applyScore(ctx context.Context, scope domain.Scope, playerID, gameID string, delta domain.ScoreDelta, mustExist bool) error {
	keys := []string{recordKey(scope, playerID), rankingKey(scope)}
	if gameID != "" {
		keys = append(keys, gamesKey(scope.Locale, playerID))
	}
	exist := "0"
	if mustExist {
		exist = "1"
	}
	ok, err := applyScoreScript.Run(ctx, s.client, keys,
		playerID, exist,
		scope.Fields.Score, scope.Fields.Correct, scope.Fields.Wrong, scope.Fields.Total,
		formatFloat(delta.Score), delta.Correct, delta.Wrong,
		formatTime(s.now()), gameID,
	).Int()
	if err != nil {
		return err
	}
	if ok == 0 {
		return domain.ErrPlayerNotFound
	}
	return nil
}

func (s *PlayStore) RankedPlayers(ctx context.Context, scope domain.Scope) ([]domain.PlayerStanding, error) {
	members, err := s.client.ZRevRange(ctx, rankingKey(scope), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	if len(members) == 0 {
		return nil, nil
	}

	fields := []string{nameField(scope), "avatar", scope.Fields.Score, scope.Fields.Correct, scope.Fields.Wrong}
	if scope.Fields.Total != "" {
		fields = append(fields, scope.Fields.Total)
	}
	pipe := s.client.Pipeline()
	cmds := make([]*redis.SliceCmd, len(members))
	for i, id := range members {
		cmds[i] = pipe.HMGet(ctx, recordKey(scope, id), fields...)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, err
	}

	out := make([]domain.PlayerStanding, 0, len(members))
	for i, id := range members {
		v := cmds[i].Val()
		if allNil(v) {
			continue
		}
		st := domain.PlayerStanding{
			PlayerID:       id,
			Nickname:       str(v[0]),
			Avatar:         str(v[1]),
			Score:          parseFloat(str(v[2])),
			CorrectAnswers: parseInt(str(v[3])),
			WrongAnswers:   parseInt(str(v[4])),
		}
		if len(v) > 5 {
			st.TotalQuestions = parseInt(str(v[5]))
		}
		out = append(out, st)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].PlayerID < out[j].PlayerID
	})
	return out, nil
}

func formatFloat(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseFloat(s string) float64 {
	v, _ := strconv.ParseFloat(s, 64)
	return v
}

func parseInt(s string) int {
	v, _ := strconv.Atoi(s)
	return v
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

func str(v any) string {
	s, _ := v.(string)
	return s
}

func allNil(vs []any) bool {
	for _, v := range vs {
		if v != nil {
			return false
		}
	}
	return true
}
