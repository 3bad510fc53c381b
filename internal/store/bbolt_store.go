package store

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/skillcheck/session-engine/internal/models"
)

var (
	bucketProgress   = []byte("progress")
	bucketAnswers    = []byte("answers")
	bucketIncomplete = []byte("incomplete_sessions")
)

// BoltStore is the default on-device ProgressStore, backed by a single
// bbolt file. It is safe for concurrent use; bbolt serializes writers.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens (or creates) the progress database at path and
// ensures all buckets exist.
func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open progress database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketProgress, bucketAnswers, bucketIncomplete} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize progress buckets: %w", err)
	}

	return &BoltStore{db: db}, nil
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}

func (s *BoltStore) SaveProgress(_ context.Context, sessionID string, questionIndex int, elapsedTime time.Duration) error {
	rec := models.ProgressRecord{
		SessionID:         sessionID,
		QuestionIndex:     questionIndex,
		TimestampMillis:   time.Now().UnixMilli(),
		ElapsedTimeMillis: elapsedTime.Milliseconds(),
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal progress record: %w", err)
	}

	err = s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketProgress).Put([]byte(sessionID), data)
	})
	if err != nil {
		return fmt.Errorf("failed to save progress: %w", err)
	}
	return nil
}

func (s *BoltStore) GetProgress(ctx context.Context, sessionID string) (int, bool, error) {
	rec, ok, err := s.getRecord(sessionID)
	if err != nil || !ok {
		return 0, false, err
	}
	return rec.QuestionIndex, true, nil
}

func (s *BoltStore) GetElapsedTime(ctx context.Context, sessionID string) (time.Duration, bool, error) {
	rec, ok, err := s.getRecord(sessionID)
	if err != nil || !ok {
		return 0, false, err
	}
	return time.Duration(rec.ElapsedTimeMillis) * time.Millisecond, true, nil
}

func (s *BoltStore) getRecord(sessionID string) (models.ProgressRecord, bool, error) {
	var rec models.ProgressRecord
	var found bool

	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketProgress).Get([]byte(sessionID))
		if data == nil {
			return nil
		}
		if err := json.Unmarshal(data, &rec); err != nil {
			return fmt.Errorf("failed to unmarshal progress record: %w", err)
		}
		found = true
		return nil
	})
	if err != nil {
		return models.ProgressRecord{}, false, err
	}
	return rec, found, nil
}

func (s *BoltStore) SaveAnswerSnapshot(_ context.Context, sessionID string, answers map[string]models.Answer) error {
	data, err := json.Marshal(answers)
	if err != nil {
		return fmt.Errorf("failed to marshal answer snapshot: %w", err)
	}

	err = s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketAnswers).Put([]byte(sessionID), data)
	})
	if err != nil {
		return fmt.Errorf("failed to save answer snapshot: %w", err)
	}
	return nil
}

func (s *BoltStore) GetAnswerSnapshot(_ context.Context, sessionID string) (map[string]models.Answer, bool, error) {
	var answers map[string]models.Answer
	var found bool

	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketAnswers).Get([]byte(sessionID))
		if data == nil {
			return nil
		}
		if err := json.Unmarshal(data, &answers); err != nil {
			return fmt.Errorf("failed to unmarshal answer snapshot: %w", err)
		}
		found = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return answers, found, nil
}

func (s *BoltStore) MarkIncomplete(_ context.Context, sessionID string) error {
	// Value is the marked-at instant, so listing can order by recency.
	markedAt := make([]byte, 8)
	binary.BigEndian.PutUint64(markedAt, uint64(time.Now().UnixNano()))

	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketIncomplete).Put([]byte(sessionID), markedAt)
	})
	if err != nil {
		return fmt.Errorf("failed to mark session incomplete: %w", err)
	}
	return nil
}

func (s *BoltStore) RemoveIncomplete(_ context.Context, sessionID string) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketIncomplete).Delete([]byte(sessionID))
	})
	if err != nil {
		return fmt.Errorf("failed to remove incomplete session: %w", err)
	}
	return nil
}

func (s *BoltStore) IncompleteSessions(_ context.Context) ([]string, error) {
	type entry struct {
		id       string
		markedAt uint64
	}
	var entries []entry

	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketIncomplete).ForEach(func(k, v []byte) error {
			var markedAt uint64
			if len(v) == 8 {
				markedAt = binary.BigEndian.Uint64(v)
			}
			entries = append(entries, entry{id: string(k), markedAt: markedAt})
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list incomplete sessions: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].markedAt > entries[j].markedAt
	})

	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = e.id
	}
	return ids, nil
}

func (s *BoltStore) ClearSession(_ context.Context, sessionID string) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		key := []byte(sessionID)
		if err := tx.Bucket(bucketProgress).Delete(key); err != nil {
			return err
		}
		if err := tx.Bucket(bucketAnswers).Delete(key); err != nil {
			return err
		}
		return tx.Bucket(bucketIncomplete).Delete(key)
	})
	if err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	return nil
}
