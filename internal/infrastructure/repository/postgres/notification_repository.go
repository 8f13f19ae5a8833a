package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/kirillkom/visa-desk/internal/core/domain"
	"github.com/kirillkom/visa-desk/internal/infrastructure/resilience"
)

type NotificationRepository struct {
	db       *sql.DB
	executor *resilience.Executor
}

func NewNotificationRepository(db *sql.DB, executor *resilience.Executor) *NotificationRepository {
	return &NotificationRepository{db: db, executor: executor}
}

// SaveNotification inserts n keyed by its event id. It reports false when the
// notification already exists.
func (r *NotificationRepository) SaveNotification(ctx context.Context, n *domain.Notification) (bool, error) {
	inserted, err := resilience.Call(ctx, r.executor, "postgres.notifications.save", func(ctx context.Context) (bool, error) {
		result, err := r.db.ExecContext(ctx, `
INSERT INTO notifications (id, application_id, user_id, email, status, subject, body, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (id) DO NOTHING
`, n.ID, n.ApplicationID, n.UserID, n.Email, string(n.Status), n.Subject, n.Body, n.CreatedAt)
		if err != nil {
			return false, fmt.Errorf("insert notification: %w", err)
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return false, fmt.Errorf("insert notification rows affected: %w", err)
		}
		return rows > 0, nil
	}, classifyPostgresError)
	if err != nil {
		return false, translateError("save notification", err)
	}
	return inserted, nil
}
