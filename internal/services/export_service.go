package services

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/skillcheck/session-engine/internal/models"
)

// ResultExportService renders a graded TestResult to an xlsx workbook so
// users can keep or share their results outside the app.
type ResultExportService struct {
	logger *slog.Logger
}

func NewResultExportService(logger *slog.Logger) *ResultExportService {
	return &ResultExportService{logger: logger}
}

// ExportResultToExcel renders the result as a single-sheet workbook: a
// summary block followed by a per-question breakdown.
func (s *ResultExportService) ExportResultToExcel(result *models.TestResult) ([]byte, error) {
	f := excelize.NewFile()
	sheetName := "Result"

	index, err := f.NewSheet(sheetName)
	if err != nil {
		return nil, fmt.Errorf("failed to create Excel sheet: %w", err)
	}
	f.SetActiveSheet(index)
	f.DeleteSheet("Sheet1")

	// Summary block
	f.SetCellValue(sheetName, "A1", "Session")
	f.SetCellValue(sheetName, "B1", result.SessionID)
	f.SetCellValue(sheetName, "A2", "Score")
	f.SetCellValue(sheetName, "B2", fmt.Sprintf("%d / %d", result.Score, result.TotalPoints))
	f.SetCellValue(sheetName, "A3", "Duration")
	f.SetCellValue(sheetName, "B3", (time.Duration(result.DurationMillis) * time.Millisecond).String())
	f.SetCellValue(sheetName, "A4", "Feedback")
	f.SetCellValue(sheetName, "B4", result.Feedback)

	// Per-question breakdown
	headers := []string{
		"Question ID", "Correct", "Points Earned", "Your Answer", "Correct Answer", "Feedback",
	}
	headerRow := 6
	for i, header := range headers {
		cell := fmt.Sprintf("%c%d", 'A'+i, headerRow)
		f.SetCellValue(sheetName, cell, header)
	}

	for rowIndex, qr := range result.QuestionResults {
		row := []interface{}{
			qr.QuestionID, qr.IsCorrect, qr.PointsEarned, qr.UserAnswer, qr.CorrectAnswer, qr.Feedback,
		}
		for colIndex, value := range row {
			cell := fmt.Sprintf("%c%d", 'A'+colIndex, headerRow+1+rowIndex)
			f.SetCellValue(sheetName, cell, value)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to write Excel file: %w", err)
	}

	s.logger.Info("Exported result",
		"session_id", result.SessionID,
		"questions", len(result.QuestionResults))

	return buf.Bytes(), nil
}
