package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/narendersurabhi/microservices-ml-platform/pkg/database"
)

const caseColumns = `id, title, status, owner_id, score, priority, created_at`

const createCase = `INSERT INTO cases (id, title, status, owner_id, priority, created_at) VALUES (?, ?, ?, ?, ?, ?)`

// CreateCaseParams はCreateCaseの引数。
type CreateCaseParams struct {
	ID        string
	Title     string
	OwnerID   string
	Priority  string
	CreatedAt time.Time
}

// CreateCase はNEW状態のケースを登録する。
func (q *Queries) CreateCase(ctx context.Context, arg CreateCaseParams) error {
	_, err := q.db.ExecContext(ctx, database.Rebind(q.dialect, createCase),
		arg.ID, arg.Title, StatusNew, arg.OwnerID, arg.Priority, arg.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("ケースの登録に失敗: %w", err)
	}
	return nil
}

const getCase = `SELECT ` + caseColumns + ` FROM cases WHERE id = ?`

// GetCase はIDでケースを取得する。存在しない場合はErrNotFoundを返す。
func (q *Queries) GetCase(ctx context.Context, id string) (Case, error) {
	row := q.db.QueryRowContext(ctx, database.Rebind(q.dialect, getCase), id)
	c, err := scanCase(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Case{}, ErrNotFound
	}
	if err != nil {
		return Case{}, fmt.Errorf("ケースの取得に失敗: %w", err)
	}
	return c, nil
}

const listCases = `SELECT ` + caseColumns + ` FROM cases ORDER BY created_at, id`

// ListCases は全ケースを作成順に取得する。
func (q *Queries) ListCases(ctx context.Context) ([]Case, error) {
	rows, err := q.db.QueryContext(ctx, listCases)
	if err != nil {
		return nil, fmt.Errorf("ケース一覧の取得に失敗: %w", err)
	}
	defer rows.Close()

	cases := []Case{}
	for rows.Next() {
		c, err := scanCase(rows)
		if err != nil {
			return nil, fmt.Errorf("ケース行の読み取りに失敗: %w", err)
		}
		cases = append(cases, c)
	}
	return cases, rows.Err()
}

const markScored = `UPDATE cases SET status = ?, score = ? WHERE id = ? AND status = ?`

// MarkScored はNEWのケースにスコアを記録してSCOREDにする。
func (q *Queries) MarkScored(ctx context.Context, id string, score float64) error {
	return q.transition(ctx, markScored, StatusScored, score, id, StatusNew)
}

const markPending = `UPDATE cases SET status = ? WHERE id = ? AND status = ?`

// MarkPending はNEWのケースをPENDING_SCOREにする。
func (q *Queries) MarkPending(ctx context.Context, id string) error {
	return q.transition(ctx, markPending, StatusPendingScore, id, StatusNew)
}

func (q *Queries) transition(ctx context.Context, query string, args ...any) error {
	res, err := q.db.ExecContext(ctx, database.Rebind(q.dialect, query), args...)
	if err != nil {
		return fmt.Errorf("ケースの状態更新に失敗: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("ケースの状態更新結果の取得に失敗: %w", err)
	}
	if n == 0 {
		return ErrNotNew
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanCase(s scanner) (Case, error) {
	var c Case
	err := s.Scan(&c.ID, &c.Title, &c.Status, &c.OwnerID, &c.Score, &c.Priority, &c.CreatedAt)
	return c, err
}
