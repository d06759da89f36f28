package store

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"sessionhub/internal/domain"
	"sessionhub/internal/metrics"
)

// persistedState is the JSON shape written to session:{id}:state.
type persistedState struct {
	Mu        float64   `json:"mu"`
	Omega     float64   `json:"omega"`
	Kappa     float64   `json:"kappa"`
	Beta      float64   `json:"beta"`
	Seq       uint64    `json:"seq"`
	UpdatedAt time.Time `json:"updated_at"`
}

// RedisStore is the production persistence store, backed by
// github.com/redis/go-redis/v9. It never returns an "unavailable" error to
// callers that already checked Enabled(); internal failures are logged and
// degrade to the neutral result documented per operation.
type RedisStore struct {
	client  *redis.Client
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewRedisStore wraps an already-connected client. Pass a nil client to get
// a store that behaves exactly like NewNoopStore (used when the backend
// was unreachable at startup).
func NewRedisStore(client *redis.Client, logger *slog.Logger, m *metrics.Metrics) *RedisStore {
	return &RedisStore{client: client, logger: logger, metrics: m}
}

func (s *RedisStore) Enabled() bool { return s != nil && s.client != nil }

func (s *RedisStore) timeOp(op string) func() {
	start := time.Now()
	return func() {
		if s.metrics != nil {
			s.metrics.StoreOpDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
		}
	}
}

func (s *RedisStore) warnFailure(ctx context.Context, op string, err error) {
	if s.metrics != nil {
		s.metrics.StoreOpFailures.WithLabelValues(op).Inc()
	}
	if s.logger != nil {
		s.logger.WarnContext(ctx, "persistence store operation failed", "op", op, "error", err)
	}
}

func (s *RedisStore) SaveState(ctx context.Context, sessionID domain.SessionID, state domain.Snapshot, seq uint64) error {
	if !s.Enabled() {
		return nil
	}
	defer s.timeOp("save_state")()

	rec := persistedState{
		Mu: state.Mu, Omega: state.Omega, Kappa: state.Kappa, Beta: state.Beta,
		Seq: seq, UpdatedAt: time.Now().UTC(),
	}
	data, err := json.Marshal(rec)
	if err != nil {
		s.warnFailure(ctx, "save_state", err)
		return nil
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, stateKey(sessionID), data, TTL)
	pipe.Set(ctx, seqKey(sessionID), seq, TTL)
	if _, err := pipe.Exec(ctx); err != nil {
		s.warnFailure(ctx, "save_state", err)
	}
	return nil
}

func (s *RedisStore) LoadState(ctx context.Context, sessionID domain.SessionID) (*StateRecord, error) {
	if !s.Enabled() {
		return nil, nil
	}
	defer s.timeOp("load_state")()

	data, err := s.client.Get(ctx, stateKey(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		s.warnFailure(ctx, "load_state", err)
		return nil, nil
	}

	var rec persistedState
	if err := json.Unmarshal(data, &rec); err != nil {
		s.warnFailure(ctx, "load_state", err)
		return nil, nil
	}

	return &StateRecord{
		State:     domain.Snapshot{Mu: rec.Mu, Omega: rec.Omega, Kappa: rec.Kappa, Beta: rec.Beta},
		Seq:       rec.Seq,
		UpdatedAt: rec.UpdatedAt,
	}, nil
}

func (s *RedisStore) DeleteState(ctx context.Context, sessionID domain.SessionID) error {
	if !s.Enabled() {
		return nil
	}
	defer s.timeOp("delete_state")()

	if err := s.client.Del(ctx,
		stateKey(sessionID), seqKey(sessionID), usersKey(sessionID), historyKey(sessionID),
	).Err(); err != nil {
		s.warnFailure(ctx, "delete_state", err)
	}
	return nil
}

func (s *RedisStore) AppendHistory(ctx context.Context, sessionID domain.SessionID, userID domain.UserID, params domain.Params, seq uint64) error {
	if !s.Enabled() {
		return nil
	}
	defer s.timeOp("append_history")()

	wireParams := make(map[string]any, len(params))
	for name, value := range params {
		wireParams[string(name)] = value
	}

	event := HistoryEvent{
		Seq: seq, UserID: string(userID), Params: wireParams, Timestamp: time.Now().UTC(),
	}
	data, err := json.Marshal(event)
	if err != nil {
		s.warnFailure(ctx, "append_history", err)
		return nil
	}

	key := historyKey(sessionID)
	pipe := s.client.TxPipeline()
	pipe.ZAdd(ctx, key, redis.Z{Score: float64(seq), Member: data})
	pipe.Expire(ctx, key, TTL)
	pipe.ZRemRangeByRank(ctx, key, 0, -int64(MaxHistoryEvents)-1)
	if _, err := pipe.Exec(ctx); err != nil {
		s.warnFailure(ctx, "append_history", err)
	}
	return nil
}

func (s *RedisStore) RangeHistory(ctx context.Context, sessionID domain.SessionID, startSeq uint64, endSeq *uint64) ([]HistoryEvent, error) {
	if !s.Enabled() {
		return nil, nil
	}
	defer s.timeOp("range_history")()

	max := "+inf"
	if endSeq != nil {
		max = strconv.FormatUint(*endSeq, 10)
	}

	raw, err := s.client.ZRangeByScore(ctx, historyKey(sessionID), &redis.ZRangeBy{
		Min: strconv.FormatUint(startSeq, 10),
		Max: max,
	}).Result()
	if err != nil {
		s.warnFailure(ctx, "range_history", err)
		return nil, nil
	}

	events := make([]HistoryEvent, 0, len(raw))
	for _, item := range raw {
		var ev HistoryEvent
		if err := json.Unmarshal([]byte(item), &ev); err != nil {
			continue
		}
		events = append(events, ev)
	}
	return events, nil
}

func (s *RedisStore) AddUser(ctx context.Context, sessionID domain.SessionID, userID domain.UserID, user UserRecord) error {
	if !s.Enabled() {
		return nil
	}
	defer s.timeOp("add_user")()

	data, err := json.Marshal(user)
	if err != nil {
		s.warnFailure(ctx, "add_user", err)
		return nil
	}

	key := usersKey(sessionID)
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, string(userID), data)
	pipe.Expire(ctx, key, TTL)
	if _, err := pipe.Exec(ctx); err != nil {
		s.warnFailure(ctx, "add_user", err)
	}
	return nil
}

func (s *RedisStore) RemoveUser(ctx context.Context, sessionID domain.SessionID, userID domain.UserID) error {
	if !s.Enabled() {
		return nil
	}
	defer s.timeOp("remove_user")()

	if err := s.client.HDel(ctx, usersKey(sessionID), string(userID)).Err(); err != nil {
		s.warnFailure(ctx, "remove_user", err)
	}
	return nil
}

func (s *RedisStore) ListUsers(ctx context.Context, sessionID domain.SessionID) ([]UserRecord, error) {
	if !s.Enabled() {
		return nil, nil
	}
	defer s.timeOp("list_users")()

	raw, err := s.client.HGetAll(ctx, usersKey(sessionID)).Result()
	if err != nil {
		s.warnFailure(ctx, "list_users", err)
		return nil, nil
	}

	users := make([]UserRecord, 0, len(raw))
	for _, v := range raw {
		var u UserRecord
		if err := json.Unmarshal([]byte(v), &u); err != nil {
			continue
		}
		users = append(users, u)
	}
	return users, nil
}

func (s *RedisStore) ListActiveSessions(ctx context.Context) ([]domain.SessionID, error) {
	if !s.Enabled() {
		return nil, nil
	}
	defer s.timeOp("list_active_sessions")()

	keys, err := s.client.Keys(ctx, "session:*:state").Result()
	if err != nil {
		s.warnFailure(ctx, "list_active_sessions", err)
		return nil, nil
	}

	ids := make([]domain.SessionID, 0, len(keys))
	for _, key := range keys {
		parts := strings.SplitN(key, ":", 3)
		if len(parts) == 3 {
			ids = append(ids, domain.SessionID(parts[1]))
		}
	}
	return ids, nil
}
