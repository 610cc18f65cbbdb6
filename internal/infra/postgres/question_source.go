package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"crqbank/internal/domain"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/uptrace/bun"
)

// QuestionSource loads the question bank from the questions table.
type QuestionSource struct {
	pool *pgxpool.Pool
}

func NewQuestionSource(pool *pgxpool.Pool) *QuestionSource {
	return &QuestionSource{pool: pool}
}

func (l *QuestionSource) LoadQuestions(ctx context.Context) ([]domain.Question, error) {
	rows, err := l.pool.Query(ctx,
		`SELECT idx, topic, question, option_a, option_b, option_c, option_d, answer, explanation FROM questions ORDER BY idx`)
	if err != nil {
		return nil, &domain.LoadError{Source: "postgres", Err: err}
	}
	defer rows.Close()

	var questions []domain.Question
	for rows.Next() {
		var (
			q      domain.Question
			answer string
		)
		if err := rows.Scan(&q.ID, &q.Topic, &q.Prompt, &q.Choices[0], &q.Choices[1], &q.Choices[2], &q.Choices[3], &answer, &q.Explanation); err != nil {
			return nil, &domain.LoadError{Source: "postgres", Err: err}
		}
		if q.ID != len(questions) {
			return nil, &domain.LoadError{Source: "postgres", Err: fmt.Errorf("question index %d out of sequence", q.ID)}
		}
		if q.Answer, err = domain.ParseOption(answer); err != nil {
			return nil, &domain.LoadError{Source: "postgres", Err: fmt.Errorf("question %d: %w", q.ID, err)}
		}
		questions = append(questions, q)
	}
	if err := rows.Err(); err != nil {
		return nil, &domain.LoadError{Source: "postgres", Err: err}
	}
	if len(questions) == 0 {
		return nil, &domain.LoadError{Source: "postgres", Err: domain.ErrNoQuestions}
	}
	return questions, nil
}

type questionRow struct {
	bun.BaseModel `bun:"table:questions"`

	Idx         int    `bun:"idx,pk"`
	Topic       string `bun:"topic"`
	Question    string `bun:"question"`
	OptionA     string `bun:"option_a"`
	OptionB     string `bun:"option_b"`
	OptionC     string `bun:"option_c"`
	OptionD     string `bun:"option_d"`
	Answer      string `bun:"answer"`
	Explanation string `bun:"explanation"`
}

// ImportQuestions replaces the questions table with the given bank.
func ImportQuestions(ctx context.Context, db *bun.DB, questions []domain.Question) (int, error) {
	if len(questions) == 0 {
		return 0, errors.New("nothing to import")
	}
	rows := make([]questionRow, 0, len(questions))
	for _, q := range questions {
		rows = append(rows, questionRow{
			Idx:         q.ID,
			Topic:       q.Topic,
			Question:    q.Prompt,
			OptionA:     q.Choices[0],
			OptionB:     q.Choices[1],
			OptionC:     q.Choices[2],
			OptionD:     q.Choices[3],
			Answer:      strings.ToUpper(string(q.Answer)),
			Explanation: q.Explanation,
		})
	}

	err := db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewDelete().Model((*questionRow)(nil)).Where("TRUE").Exec(ctx); err != nil {
			return fmt.Errorf("clear questions: %w", err)
		}
		if _, err := tx.NewInsert().Model(&rows).Exec(ctx); err != nil {
			return fmt.Errorf("insert questions: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(rows), nil
}
