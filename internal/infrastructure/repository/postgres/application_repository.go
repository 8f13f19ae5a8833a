package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/kirillkom/visa-desk/internal/core/domain"
	"github.com/kirillkom/visa-desk/internal/core/ports"
	"github.com/kirillkom/visa-desk/internal/infrastructure/resilience"
)

// ApplicationRepository stores each application as one JSONB document with a
// version column for optimistic concurrency. Indexed columns mirror the fields
// used by list filters.
type ApplicationRepository struct {
	db       *sql.DB
	executor *resilience.Executor
}

func NewApplicationRepository(db *sql.DB, executor *resilience.Executor) *ApplicationRepository {
	return &ApplicationRepository{db: db, executor: executor}
}

func (r *ApplicationRepository) Create(ctx context.Context, app *domain.Application) error {
	body, err := json.Marshal(app)
	if err != nil {
		return fmt.Errorf("marshal application: %w", err)
	}

	err = r.executor.Execute(ctx, "postgres.applications.create", func(ctx context.Context) error {
		_, err := r.db.ExecContext(ctx, `
INSERT INTO applications (id, user_id, agent_id, current_status, body, version, created_at, updated_at)
VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, $7, $8)
`, app.ID, app.UserID, app.AgentID, string(app.CurrentStatus), body, app.Version, app.CreatedAt, app.UpdatedAt)
		return err
	}, classifyPostgresError)
	if err != nil {
		return translateError("insert application", err)
	}
	return nil
}

func (r *ApplicationRepository) GetByID(ctx context.Context, id string) (*domain.Application, error) {
	app, err := resilience.Call(ctx, r.executor, "postgres.applications.get", func(ctx context.Context) (*domain.Application, error) {
		row := r.db.QueryRowContext(ctx, `
SELECT body, version
FROM applications
WHERE id = $1
`, id)
		return scanApplication(row, id)
	}, classifyPostgresError)
	if err != nil {
		return nil, translateError("get application", err)
	}
	return app, nil
}

func (r *ApplicationRepository) List(ctx context.Context, filter domain.ApplicationFilter) ([]domain.Application, error) {
	query, args := buildListQuery(filter)

	apps, err := resilience.Call(ctx, r.executor, "postgres.applications.list", func(ctx context.Context) ([]domain.Application, error) {
		rows, err := r.db.QueryContext(ctx, query, args...)
		if err != nil {
			return nil, fmt.Errorf("list applications: %w", err)
		}
		defer rows.Close()

		out := make([]domain.Application, 0)
		for rows.Next() {
			app, err := scanApplication(rows, "")
			if err != nil {
				return nil, err
			}
			out = append(out, *app)
		}
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("iterate applications: %w", err)
		}
		return out, nil
	}, classifyPostgresError)
	if err != nil {
		return nil, translateError("list applications", err)
	}
	return apps, nil
}

func buildListQuery(filter domain.ApplicationFilter) (string, []any) {
	var (
		where []string
		args  []any
	)
	placeholder := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.UserID != "" {
		where = append(where, "user_id = "+placeholder(filter.UserID))
	}
	if filter.AgentID != "" {
		clause := "agent_id = " + placeholder(filter.AgentID)
		if filter.IncludeUnassigned {
			clause = "(" + clause + " OR agent_id IS NULL)"
		}
		where = append(where, clause)
	}
	if filter.Status != "" {
		variants := filter.Status.Variants()
		marks := make([]string, 0, len(variants))
		for _, status := range variants {
			marks = append(marks, placeholder(string(status)))
		}
		where = append(where, "current_status IN ("+strings.Join(marks, ", ")+")")
	}

	var b strings.Builder
	b.WriteString("SELECT body, version\nFROM applications\n")
	if len(where) > 0 {
		b.WriteString("WHERE " + strings.Join(where, " AND ") + "\n")
	}
	b.WriteString("ORDER BY updated_at DESC")
	if filter.Limit > 0 {
		b.WriteString("\nLIMIT " + placeholder(filter.Limit))
	}
	return b.String(), args
}

// Mutate runs fn inside a transaction holding the row lock. The final UPDATE
// is additionally guarded by the version read under that lock; a lost write
// restarts the whole cycle with a fresh read.
func (r *ApplicationRepository) Mutate(ctx context.Context, id string, fn ports.MutateFunc) (*domain.Application, error) {
	app, err := resilience.Call(ctx, r.executor, "postgres.applications.mutate", func(ctx context.Context) (*domain.Application, error) {
		return r.mutateOnce(ctx, id, fn)
	}, classifyPostgresError)
	if err != nil {
		return nil, translateError("mutate application", err)
	}
	return app, nil
}

func (r *ApplicationRepository) mutateOnce(ctx context.Context, id string, fn ports.MutateFunc) (*domain.Application, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin mutate tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	row := tx.QueryRowContext(ctx, `
SELECT body, version
FROM applications
WHERE id = $1
FOR UPDATE
`, id)
	app, err := scanApplication(row, id)
	if err != nil {
		return nil, err
	}

	readVersion := app.Version
	changed, err := fn(app)
	if err != nil {
		return nil, err
	}
	if !changed {
		return app, nil
	}

	app.Version = readVersion + 1
	body, err := json.Marshal(app)
	if err != nil {
		return nil, fmt.Errorf("marshal application: %w", err)
	}
	result, err := tx.ExecContext(ctx, `
UPDATE applications
SET body = $2, version = $3, current_status = $4, agent_id = NULLIF($5, ''), updated_at = $6
WHERE id = $1 AND version = $7
`, id, body, app.Version, string(app.CurrentStatus), app.AgentID, app.UpdatedAt, readVersion)
	if err != nil {
		return nil, fmt.Errorf("update application: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("update application rows affected: %w", err)
	}
	if rows == 0 {
		return nil, errVersionConflict
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit mutate tx: %w", err)
	}
	return app, nil
}

func (r *ApplicationRepository) Delete(ctx context.Context, id string) error {
	err := r.executor.Execute(ctx, "postgres.applications.delete", func(ctx context.Context) error {
		result, err := r.db.ExecContext(ctx, `DELETE FROM applications WHERE id = $1`, id)
		if err != nil {
			return fmt.Errorf("delete application: %w", err)
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("delete application rows affected: %w", err)
		}
		if rows == 0 {
			return domain.WrapError(domain.ErrApplicationNotFound, "delete application", fmt.Errorf("id=%s", id))
		}
		return nil
	}, classifyPostgresError)
	return translateError("delete application", err)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanApplication(row rowScanner, id string) (*domain.Application, error) {
	var (
		body    []byte
		version int64
	)
	if err := row.Scan(&body, &version); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrApplicationNotFound, "get application", fmt.Errorf("id=%s", id))
		}
		return nil, fmt.Errorf("scan application: %w", err)
	}

	var app domain.Application
	if err := json.Unmarshal(body, &app); err != nil {
		return nil, fmt.Errorf("unmarshal application: %w", err)
	}
	app.Version = version
	if app.Documents == nil {
		app.Documents = []domain.Document{}
	}
	return &app, nil
}
