package configcache

import (
	"context"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"rexbot/internal/models"
)

// Source supplies survey definitions and prompt templates from an external
// document. Implementations must return complete snapshots; partial results
// would leave the cache inconsistent across modes.
type Source interface {
	Fetch(ctx context.Context) ([]models.SurveyDefinition, map[models.Mode]string, error)
}

// SpreadsheetSource reads configuration from a workbook. The first sheet
// holds survey questions with columns mode, key, type, text, options
// (comma-separated, choice questions only). A sheet named "Prompts" holds
// prompt templates with columns mode, text.
type SpreadsheetSource struct {
	path string
}

// NewSpreadsheetSource creates a source reading the workbook at path.
func NewSpreadsheetSource(path string) *SpreadsheetSource {
	return &SpreadsheetSource{path: path}
}

const promptSheet = "Prompts"

func (s *SpreadsheetSource) Fetch(ctx context.Context) ([]models.SurveyDefinition, map[models.Mode]string, error) {
	f, err := excelize.OpenFile(s.path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open config workbook %s: %w", s.path, err)
	}
	defer f.Close()

	questionSheet := f.GetSheetName(0)
	rows, err := f.GetRows(questionSheet)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read sheet %s: %w", questionSheet, err)
	}

	byMode := make(map[models.Mode][]models.Question)
	var order []models.Mode
	for i, row := range rows {
		if i == 0 || len(row) < 4 {
			// Header row, or a row too short to be a question.
			continue
		}
		mode := models.Mode(strings.TrimSpace(row[0]))
		if !models.IsValidMode(mode) {
			return nil, nil, fmt.Errorf("sheet %s row %d: unknown mode %q", questionSheet, i+1, row[0])
		}
		q := models.Question{
			Key:    strings.TrimSpace(row[1]),
			Kind:   models.QuestionKind(strings.TrimSpace(row[2])),
			Prompt: strings.TrimSpace(row[3]),
		}
		if len(row) > 4 && strings.TrimSpace(row[4]) != "" {
			for _, opt := range strings.Split(row[4], ",") {
				q.Options = append(q.Options, strings.TrimSpace(opt))
			}
		}
		if _, ok := byMode[mode]; !ok {
			order = append(order, mode)
		}
		byMode[mode] = append(byMode[mode], q)
	}

	defs := make([]models.SurveyDefinition, 0, len(order))
	for _, mode := range order {
		def := models.SurveyDefinition{Mode: mode, Questions: byMode[mode]}
		if err := def.Validate(); err != nil {
			return nil, nil, fmt.Errorf("invalid survey for %s: %w", mode, err)
		}
		defs = append(defs, def)
	}

	prompts := make(map[models.Mode]string)
	promptRows, err := f.GetRows(promptSheet)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read sheet %s: %w", promptSheet, err)
	}
	for i, row := range promptRows {
		if i == 0 || len(row) < 2 {
			continue
		}
		mode := models.Mode(strings.TrimSpace(row[0]))
		if !models.IsValidMode(mode) {
			return nil, nil, fmt.Errorf("sheet %s row %d: unknown mode %q", promptSheet, i+1, row[0])
		}
		prompts[mode] = row[1]
	}

	return defs, prompts, nil
}
