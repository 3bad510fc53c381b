package services

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/skillcheck/session-engine/internal/models"
)

func TestResultExportService_ExportResultToExcel(t *testing.T) {
	exporter := NewResultExportService(testLogger())

	result := &models.TestResult{
		SessionID:      "sess-1",
		Score:          15,
		TotalPoints:    20,
		Feedback:       "Good work",
		DurationMillis: 90000,
		QuestionResults: []models.QuestionResult{
			{QuestionID: "q1", IsCorrect: true, PointsEarned: 5, UserAnswer: "var", CorrectAnswer: "var"},
			{QuestionID: "q2", IsCorrect: false, PointsEarned: 0, UserAnswer: "decimal", CorrectAnswer: "rune, complex128", Feedback: "Review built-in types"},
		},
	}

	data, err := exporter.ExportResultToExcel(result)
	require.NoError(t, err)
	require.NotEmpty(t, data)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()

	sessionID, err := f.GetCellValue("Result", "B1")
	require.NoError(t, err)
	assert.Equal(t, "sess-1", sessionID)

	score, err := f.GetCellValue("Result", "B2")
	require.NoError(t, err)
	assert.Equal(t, "15 / 20", score)

	duration, err := f.GetCellValue("Result", "B3")
	require.NoError(t, err)
	assert.Equal(t, "1m30s", duration)

	firstQuestion, err := f.GetCellValue("Result", "A7")
	require.NoError(t, err)
	assert.Equal(t, "q1", firstQuestion)

	secondFeedback, err := f.GetCellValue("Result", "F8")
	require.NoError(t, err)
	assert.Equal(t, "Review built-in types", secondFeedback)
}
