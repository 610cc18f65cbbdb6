package postgres

import (
	"context"
	"errors"
	"fmt"

	"crqbank/internal/domain"
	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

const uniqueViolation = "23505"

// UserStore persists accounts in the users table.
type UserStore struct {
	pool *pgxpool.Pool
}

func NewUserStore(pool *pgxpool.Pool) *UserStore {
	return &UserStore{pool: pool}
}

func (s *UserStore) Create(ctx context.Context, user domain.User) (domain.User, error) {
	err := s.pool.QueryRow(ctx,
		`INSERT INTO users (id, email, password_hash, paid) VALUES ($1, $2, $3, $4) RETURNING created_at`,
		user.ID, user.Email, user.PasswordHash, user.Paid,
	).Scan(&user.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return domain.User{}, domain.ErrEmailTaken
		}
		return domain.User{}, fmt.Errorf("insert user: %w", err)
	}
	return user, nil
}

func (s *UserStore) Get(ctx context.Context, id string) (domain.User, error) {
	return s.scanOne(ctx, `SELECT id, email, password_hash, paid, created_at FROM users WHERE id=$1`, id)
}

func (s *UserStore) GetByEmail(ctx context.Context, email string) (domain.User, error) {
	return s.scanOne(ctx, `SELECT id, email, password_hash, paid, created_at FROM users WHERE email=$1`, email)
}

// MarkPaid sets the sticky paid flag.
func (s *UserStore) MarkPaid(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE users SET paid=TRUE WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("mark paid: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

func (s *UserStore) scanOne(ctx context.Context, query string, arg string) (domain.User, error) {
	var user domain.User
	err := s.pool.QueryRow(ctx, query, arg).Scan(&user.ID, &user.Email, &user.PasswordHash, &user.Paid, &user.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.User{}, domain.ErrUserNotFound
	}
	if err != nil {
		return domain.User{}, fmt.Errorf("load user: %w", err)
	}
	return user, nil
}
