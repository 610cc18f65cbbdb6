package postgres

import (
	"context"
	"fmt"

	"crqbank/internal/domain"
	"github.com/jackc/pgx/v4/pgxpool"
)

// ResponseStore is the append-only answer log in the responses table.
type ResponseStore struct {
	pool *pgxpool.Pool
}

func NewResponseStore(pool *pgxpool.Pool) *ResponseStore {
	return &ResponseStore{pool: pool}
}

func (s *ResponseStore) Record(ctx context.Context, resp domain.StoredResponse) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO responses (user_id, question_idx, question, selected, correct, created_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		resp.UserID, resp.QuestionID, resp.Question, string(resp.Selected), resp.IsCorrect, resp.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert response: %w", err)
	}
	return nil
}

// History returns the user's answers oldest first; insertion order breaks ties.
func (s *ResponseStore) History(ctx context.Context, userID string) ([]domain.StoredResponse, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT user_id, question_idx, question, selected, correct, created_at
		 FROM responses WHERE user_id=$1 ORDER BY created_at ASC, id ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("query responses: %w", err)
	}
	defer rows.Close()

	var out []domain.StoredResponse
	for rows.Next() {
		var (
			r        domain.StoredResponse
			selected string
		)
		if err := rows.Scan(&r.UserID, &r.QuestionID, &r.Question, &selected, &r.IsCorrect, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan response: %w", err)
		}
		r.Selected = domain.Option(selected)
		out = append(out, r)
	}
	return out, rows.Err()
}
