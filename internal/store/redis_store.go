package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/skillcheck/session-engine/internal/models"
)

const incompleteSetKey = "incomplete_sessions"

// RedisStore is a ProgressStore backed by Redis, used for emulator/CI
// runs and server-mediated installations where progress should follow
// the user across devices.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func progressKey(sessionID string) string { return "progress_" + sessionID }
func timestampKey(sessionID string) string {
	return "timestamp_" + sessionID
}
func elapsedTimeKey(sessionID string) string {
	return "elapsed_time_" + sessionID
}
func answersKey(sessionID string) string { return "answers_" + sessionID }

func (s *RedisStore) SaveProgress(ctx context.Context, sessionID string, questionIndex int, elapsedTime time.Duration) error {
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, progressKey(sessionID), questionIndex, 0)
	pipe.Set(ctx, timestampKey(sessionID), time.Now().UnixMilli(), 0)
	pipe.Set(ctx, elapsedTimeKey(sessionID), elapsedTime.Milliseconds(), 0)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save progress: %w", err)
	}
	return nil
}

func (s *RedisStore) GetProgress(ctx context.Context, sessionID string) (int, bool, error) {
	idx, err := s.client.Get(ctx, progressKey(sessionID)).Int()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to get progress: %w", err)
	}
	return idx, true, nil
}

func (s *RedisStore) GetElapsedTime(ctx context.Context, sessionID string) (time.Duration, bool, error) {
	millis, err := s.client.Get(ctx, elapsedTimeKey(sessionID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to get elapsed time: %w", err)
	}
	return time.Duration(millis) * time.Millisecond, true, nil
}

func (s *RedisStore) SaveAnswerSnapshot(ctx context.Context, sessionID string, answers map[string]models.Answer) error {
	data, err := json.Marshal(answers)
	if err != nil {
		return fmt.Errorf("failed to marshal answer snapshot: %w", err)
	}
	if err := s.client.Set(ctx, answersKey(sessionID), data, 0).Err(); err != nil {
		return fmt.Errorf("failed to save answer snapshot: %w", err)
	}
	return nil
}

func (s *RedisStore) GetAnswerSnapshot(ctx context.Context, sessionID string) (map[string]models.Answer, bool, error) {
	data, err := s.client.Get(ctx, answersKey(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get answer snapshot: %w", err)
	}

	var answers map[string]models.Answer
	if err := json.Unmarshal(data, &answers); err != nil {
		return nil, false, fmt.Errorf("failed to unmarshal answer snapshot: %w", err)
	}
	return answers, true, nil
}

func (s *RedisStore) MarkIncomplete(ctx context.Context, sessionID string) error {
	member := redis.Z{
		Score:  float64(time.Now().UnixMilli()),
		Member: sessionID,
	}
	if err := s.client.ZAdd(ctx, incompleteSetKey, member).Err(); err != nil {
		return fmt.Errorf("failed to mark session incomplete: %w", err)
	}
	return nil
}

func (s *RedisStore) RemoveIncomplete(ctx context.Context, sessionID string) error {
	if err := s.client.ZRem(ctx, incompleteSetKey, sessionID).Err(); err != nil {
		return fmt.Errorf("failed to remove incomplete session: %w", err)
	}
	return nil
}

func (s *RedisStore) IncompleteSessions(ctx context.Context) ([]string, error) {
	ids, err := s.client.ZRevRange(ctx, incompleteSetKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list incomplete sessions: %w", err)
	}
	return ids, nil
}

func (s *RedisStore) ClearSession(ctx context.Context, sessionID string) error {
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, progressKey(sessionID), timestampKey(sessionID), elapsedTimeKey(sessionID), answersKey(sessionID))
	pipe.ZRem(ctx, incompleteSetKey, sessionID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	return nil
}
