package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/skillcheck/session-engine/internal/models"
)

// SessionProgress is the relational shape of a progress record, used by
// server-synced installations where progress lives in Postgres instead
// of an on-device file.
type SessionProgress struct {
	SessionID         string         `gorm:"primaryKey;size:64"`
	QuestionIndex     int            `gorm:"not null"`
	TimestampMillis   int64          `gorm:"not null"`
	ElapsedTimeMillis int64          `gorm:"not null"`
	Incomplete        bool           `gorm:"index"`
	MarkedAt          *time.Time     `gorm:"index"`
	AnswerSnapshot    datatypes.JSON `gorm:"type:jsonb"`
	UpdatedAt         time.Time
}

// GormStore is a ProgressStore backed by a relational database via GORM.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) (*GormStore, error) {
	if err := db.AutoMigrate(&SessionProgress{}); err != nil {
		return nil, fmt.Errorf("failed to migrate session progress schema: %w", err)
	}
	return &GormStore{db: db}, nil
}

func (s *GormStore) SaveProgress(ctx context.Context, sessionID string, questionIndex int, elapsedTime time.Duration) error {
	row := SessionProgress{
		SessionID:         sessionID,
		QuestionIndex:     questionIndex,
		TimestampMillis:   time.Now().UnixMilli(),
		ElapsedTimeMillis: elapsedTime.Milliseconds(),
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "session_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"question_index", "timestamp_millis", "elapsed_time_millis", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("failed to save progress: %w", err)
	}
	return nil
}

func (s *GormStore) GetProgress(ctx context.Context, sessionID string) (int, bool, error) {
	row, found, err := s.getRow(ctx, sessionID)
	if err != nil || !found {
		return 0, false, err
	}
	return row.QuestionIndex, true, nil
}

func (s *GormStore) GetElapsedTime(ctx context.Context, sessionID string) (time.Duration, bool, error) {
	row, found, err := s.getRow(ctx, sessionID)
	if err != nil || !found {
		return 0, false, err
	}
	return time.Duration(row.ElapsedTimeMillis) * time.Millisecond, true, nil
}

func (s *GormStore) getRow(ctx context.Context, sessionID string) (*SessionProgress, bool, error) {
	var row SessionProgress
	err := s.db.WithContext(ctx).First(&row, "session_id = ?", sessionID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get progress row: %w", err)
	}
	return &row, true, nil
}

func (s *GormStore) SaveAnswerSnapshot(ctx context.Context, sessionID string, answers map[string]models.Answer) error {
	data, err := json.Marshal(answers)
	if err != nil {
		return fmt.Errorf("failed to marshal answer snapshot: %w", err)
	}
	row := SessionProgress{
		SessionID:      sessionID,
		AnswerSnapshot: datatypes.JSON(data),
	}
	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "session_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"answer_snapshot", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("failed to save answer snapshot: %w", err)
	}
	return nil
}

func (s *GormStore) GetAnswerSnapshot(ctx context.Context, sessionID string) (map[string]models.Answer, bool, error) {
	row, found, err := s.getRow(ctx, sessionID)
	if err != nil || !found {
		return nil, false, err
	}
	if len(row.AnswerSnapshot) == 0 {
		return nil, false, nil
	}

	var answers map[string]models.Answer
	if err := json.Unmarshal(row.AnswerSnapshot, &answers); err != nil {
		return nil, false, fmt.Errorf("failed to unmarshal answer snapshot: %w", err)
	}
	return answers, true, nil
}

func (s *GormStore) MarkIncomplete(ctx context.Context, sessionID string) error {
	now := time.Now()
	row := SessionProgress{
		SessionID:  sessionID,
		Incomplete: true,
		MarkedAt:   &now,
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "session_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"incomplete", "marked_at", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("failed to mark session incomplete: %w", err)
	}
	return nil
}

func (s *GormStore) RemoveIncomplete(ctx context.Context, sessionID string) error {
	err := s.db.WithContext(ctx).Model(&SessionProgress{}).
		Where("session_id = ?", sessionID).
		Updates(map[string]interface{}{"incomplete": false, "marked_at": nil}).Error
	if err != nil {
		return fmt.Errorf("failed to remove incomplete session: %w", err)
	}
	return nil
}

func (s *GormStore) IncompleteSessions(ctx context.Context) ([]string, error) {
	var ids []string
	err := s.db.WithContext(ctx).Model(&SessionProgress{}).
		Where("incomplete = ?", true).
		Order("marked_at DESC").
		Pluck("session_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list incomplete sessions: %w", err)
	}
	return ids, nil
}

func (s *GormStore) ClearSession(ctx context.Context, sessionID string) error {
	err := s.db.WithContext(ctx).Delete(&SessionProgress{}, "session_id = ?", sessionID).Error
	if err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	return nil
}
