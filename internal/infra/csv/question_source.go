package csv

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"crqbank/internal/domain"
)

// Columns every question file must carry. Order in the file is free.
var requiredColumns = []string{"topic", "question", "option_a", "option_b", "option_c", "option_d", "answer", "explanation"}

// FileSource reads the question bank from a CSV file on disk.
type FileSource struct {
	Path string
}

func NewFileSource(path string) *FileSource {
	return &FileSource{Path: path}
}

func (s *FileSource) LoadQuestions(_ context.Context) ([]domain.Question, error) {
	f, err := os.Open(s.Path)
	if err != nil {
		return nil, &domain.LoadError{Source: s.Path, Err: err}
	}
	defer f.Close()
	return Parse(f, s.Path)
}

// Parse decodes a question CSV. Question ids are the 0-based data row index.
func Parse(r io.Reader, source string) ([]domain.Question, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, &domain.LoadError{Source: source, Err: errors.New("file is empty")}
	}
	if err != nil {
		return nil, &domain.LoadError{Source: source, Err: err}
	}

	index := make(map[string]int, len(header))
	for i, name := range header {
		name = strings.TrimPrefix(name, "\ufeff")
		index[strings.ToLower(strings.TrimSpace(name))] = i
	}
	var missing []string
	for _, col := range requiredColumns {
		if _, ok := index[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, &domain.LoadError{Source: source, Err: fmt.Errorf("missing columns: %s", strings.Join(missing, ", "))}
	}

	var questions []domain.Question
	for line := 2; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, &domain.LoadError{Source: source, Err: err}
		}
		field := func(col string) string {
			return strings.TrimSpace(record[index[col]])
		}

		answer, err := domain.ParseOption(field("answer"))
		if err != nil {
			return nil, &domain.LoadError{Source: source, Err: fmt.Errorf("line %d: answer %q: %w", line, field("answer"), err)}
		}
		questions = append(questions, domain.Question{
			ID:          len(questions),
			Topic:       field("topic"),
			Prompt:      field("question"),
			Choices:     [4]string{field("option_a"), field("option_b"), field("option_c"), field("option_d")},
			Answer:      answer,
			Explanation: field("explanation"),
		})
	}
	if len(questions) == 0 {
		return nil, &domain.LoadError{Source: source, Err: domain.ErrNoQuestions}
	}
	return questions, nil
}
