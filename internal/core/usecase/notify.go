package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kirillkom/visa-desk/internal/core/domain"
	"github.com/kirillkom/visa-desk/internal/core/ports"
)

type NotificationUseCase struct {
	store ports.NotificationStore
	now   Clock
}

func NewNotificationUseCase(store ports.NotificationStore, now Clock) *NotificationUseCase {
	if now == nil {
		now = systemClock
	}
	return &NotificationUseCase{store: store, now: now}
}

// Record turns a status event into an applicant notification. Redelivered
// events are recorded once.
func (uc *NotificationUseCase) Record(ctx context.Context, event domain.StatusChanged) error {
	if strings.TrimSpace(event.EventID) == "" || strings.TrimSpace(event.ApplicationID) == "" {
		return domain.WrapError(domain.ErrInvalidInput, "record notification", errors.New("event id and application id are required"))
	}

	n := &domain.Notification{
		ID:            event.EventID,
		ApplicationID: event.ApplicationID,
		UserID:        event.UserID,
		Email:         event.Email,
		Status:        event.Status,
		Subject:       fmt.Sprintf("Your visa application: %s", domain.NormalizeStatus(event.Status)),
		Body:          notificationBody(event),
		CreatedAt:     uc.now(),
	}

	inserted, err := uc.store.SaveNotification(ctx, n)
	if err != nil {
		return fmt.Errorf("save notification: %w", err)
	}
	if !inserted {
		slog.Info("notification_duplicate", "event_id", event.EventID, "application_id", event.ApplicationID)
	}
	return nil
}

func notificationBody(event domain.StatusChanged) string {
	var b strings.Builder
	if name := strings.TrimSpace(event.Name); name != "" {
		fmt.Fprintf(&b, "Dear %s,\n\n", name)
	}
	b.WriteString(domain.StatusMessage(event.Status))
	if note := strings.TrimSpace(event.Note); note != "" {
		fmt.Fprintf(&b, "\n\nNote: %s", note)
	}
	return b.String()
}
