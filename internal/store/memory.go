package store

import (
	"context"
	"sync"
	"time"

	"github.com/skillcheck/session-engine/internal/models"
)

// MemoryStore is a process-lifetime ProgressStore used by tests and as a
// fallback when no data directory is configured. Progress saved here does
// not survive a restart.
type MemoryStore struct {
	mu         sync.Mutex
	progress   map[string]models.ProgressRecord
	snapshots  map[string]map[string]models.Answer
	incomplete map[string]time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		progress:   make(map[string]models.ProgressRecord),
		snapshots:  make(map[string]map[string]models.Answer),
		incomplete: make(map[string]time.Time),
	}
}

func (m *MemoryStore) SaveProgress(_ context.Context, sessionID string, questionIndex int, elapsedTime time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.progress[sessionID] = models.ProgressRecord{
		SessionID:         sessionID,
		QuestionIndex:     questionIndex,
		TimestampMillis:   time.Now().UnixMilli(),
		ElapsedTimeMillis: elapsedTime.Milliseconds(),
	}
	return nil
}

func (m *MemoryStore) GetProgress(_ context.Context, sessionID string) (int, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.progress[sessionID]
	if !ok {
		return 0, false, nil
	}
	return rec.QuestionIndex, true, nil
}

func (m *MemoryStore) GetElapsedTime(_ context.Context, sessionID string) (time.Duration, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.progress[sessionID]
	if !ok {
		return 0, false, nil
	}
	return time.Duration(rec.ElapsedTimeMillis) * time.Millisecond, true, nil
}

func (m *MemoryStore) SaveAnswerSnapshot(_ context.Context, sessionID string, answers map[string]models.Answer) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	copied := make(map[string]models.Answer, len(answers))
	for k, v := range answers {
		copied[k] = v
	}
	m.snapshots[sessionID] = copied
	return nil
}

func (m *MemoryStore) GetAnswerSnapshot(_ context.Context, sessionID string) (map[string]models.Answer, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap, ok := m.snapshots[sessionID]
	if !ok {
		return nil, false, nil
	}
	copied := make(map[string]models.Answer, len(snap))
	for k, v := range snap {
		copied[k] = v
	}
	return copied, true, nil
}

func (m *MemoryStore) MarkIncomplete(_ context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.incomplete[sessionID] = time.Now()
	return nil
}

func (m *MemoryStore) RemoveIncomplete(_ context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.incomplete, sessionID)
	return nil
}

func (m *MemoryStore) IncompleteSessions(_ context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := make([]string, 0, len(m.incomplete))
	for id := range m.incomplete {
		ids = append(ids, id)
	}
	// Most recently marked first.
	sortByMarkedAtDesc(ids, m.incomplete)
	return ids, nil
}

func (m *MemoryStore) ClearSession(_ context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.progress, sessionID)
	delete(m.snapshots, sessionID)
	delete(m.incomplete, sessionID)
	return nil
}

func sortByMarkedAtDesc(ids []string, markedAt map[string]time.Time) {
	for i := 1; i < len(ids); i++ {
		for j := i; j > 0 && markedAt[ids[j]].After(markedAt[ids[j-1]]); j-- {
			ids[j], ids[j-1] = ids[j-1], ids[j]
		}
	}
}
