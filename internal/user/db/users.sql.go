package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/narendersurabhi/microservices-ml-platform/pkg/database"
)

const createUser = `INSERT INTO users (id, email, role, full_name, created_at) VALUES (?, ?, ?, ?, ?)`

// CreateUserParams はCreateUserの引数。
type CreateUserParams struct {
	ID        string
	Email     string
	Role      string
	FullName  string
	CreatedAt time.Time
}

// CreateUser はユーザーを登録する。
func (q *Queries) CreateUser(ctx context.Context, arg CreateUserParams) error {
	_, err := q.db.ExecContext(ctx, database.Rebind(q.dialect, createUser),
		arg.ID, arg.Email, arg.Role, arg.FullName, arg.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("ユーザーの登録に失敗: %w", err)
	}
	return nil
}

const getUser = `SELECT id, email, role, full_name, created_at FROM users WHERE id = ?`

// GetUser はIDでユーザーを取得する。存在しない場合はErrNotFoundを返す。
func (q *Queries) GetUser(ctx context.Context, id string) (User, error) {
	var u User
	err := q.db.QueryRowContext(ctx, database.Rebind(q.dialect, getUser), id).
		Scan(&u.ID, &u.Email, &u.Role, &u.FullName, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("ユーザーの取得に失敗: %w", err)
	}
	return u, nil
}

const listUsers = `SELECT id, email, role, full_name, created_at FROM users ORDER BY created_at, id`

// ListUsers は全ユーザーを登録順に取得する。
func (q *Queries) ListUsers(ctx context.Context) ([]User, error) {
	rows, err := q.db.QueryContext(ctx, listUsers)
	if err != nil {
		return nil, fmt.Errorf("ユーザー一覧の取得に失敗: %w", err)
	}
	defer rows.Close()

	users := []User{}
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Email, &u.Role, &u.FullName, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("ユーザー行の読み取りに失敗: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}
