package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/kirillkom/visa-desk/internal/core/domain"
)

type notificationStoreFake struct {
	saved map[string]domain.Notification
	err   error
}

func (f *notificationStoreFake) SaveNotification(_ context.Context, n *domain.Notification) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	if f.saved == nil {
		f.saved = make(map[string]domain.Notification)
	}
	if _, ok := f.saved[n.ID]; ok {
		return false, nil
	}
	f.saved[n.ID] = *n
	return true, nil
}

func TestRecordNotificationIsIdempotent(t *testing.T) {
	store := &notificationStoreFake{}
	uc := NewNotificationUseCase(store, newStepClock().Now)
	event := domain.StatusChanged{
		EventID:       "evt-1",
		ApplicationID: "app-1",
		UserID:        "user-1",
		Email:         "amina@example.com",
		Name:          "Amina",
		Status:        domain.StatusAdditionalDocumentsSubmitted,
		Note:          "All required documents have been uploaded",
	}

	for i := 0; i < 2; i++ {
		if err := uc.Record(context.Background(), event); err != nil {
			t.Fatalf("Record() error = %v", err)
		}
	}
	if len(store.saved) != 1 {
		t.Fatalf("expected one notification, got %d", len(store.saved))
	}
	n := store.saved["evt-1"]
	if n.Subject != "Your visa application: Additional Document Submitted" {
		t.Fatalf("unexpected subject %q", n.Subject)
	}
	if !strings.HasPrefix(n.Body, "Dear Amina,") || !strings.Contains(n.Body, domain.StatusMessage(domain.StatusAdditionalDocumentSubmitted)) {
		t.Fatalf("unexpected body %q", n.Body)
	}
}

func TestRecordNotificationErrors(t *testing.T) {
	uc := NewNotificationUseCase(&notificationStoreFake{}, nil)
	if err := uc.Record(context.Background(), domain.StatusChanged{}); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}

	failing := NewNotificationUseCase(&notificationStoreFake{err: errors.New("db down")}, nil)
	err := failing.Record(context.Background(), domain.StatusChanged{EventID: "e", ApplicationID: "a"})
	if err == nil || !strings.Contains(err.Error(), "save notification") {
		t.Fatalf("expected store error, got %v", err)
	}
}
