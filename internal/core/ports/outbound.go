package ports

import (
	"context"
	"io"

	"github.com/kirillkom/visa-desk/internal/core/domain"
)

// MutateFunc changes app in place and reports whether anything changed.
// It may be invoked more than once for a single Mutate call and must not keep
// state between invocations.
type MutateFunc func(app *domain.Application) (changed bool, err error)

// ApplicationRepository persists applications as single documents.
type ApplicationRepository interface {
	Create(ctx context.Context, app *domain.Application) error
	GetByID(ctx context.Context, id string) (*domain.Application, error)
	List(ctx context.Context, filter domain.ApplicationFilter) ([]domain.Application, error)
	// Mutate loads the application, applies fn and writes the result back
	// atomically. Nothing is written when fn reports no change.
	Mutate(ctx context.Context, id string, fn MutateFunc) (*domain.Application, error)
	Delete(ctx context.Context, id string) error
}

// NotificationStore records applicant notifications produced by the worker.
type NotificationStore interface {
	SaveNotification(ctx context.Context, n *domain.Notification) (bool, error)
}

// ObjectStorage stores uploaded application documents.
type ObjectStorage interface {
	Save(ctx context.Context, key string, data io.Reader) (int64, error)
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	URL(key string) string
}

// StatusEventPublisher announces persisted status transitions.
type StatusEventPublisher interface {
	PublishStatusChanged(ctx context.Context, event domain.StatusChanged) error
}

// StatusEventSubscriber consumes status transitions.
type StatusEventSubscriber interface {
	SubscribeStatusChanged(ctx context.Context, handler func(context.Context, domain.StatusChanged) error) error
}

// PDFInspector checks that a payload is a readable PDF and returns its page count.
type PDFInspector interface {
	PageCount(data []byte) (int, error)
}

// ApplicationExporter renders applications into a spreadsheet.
type ApplicationExporter interface {
	Export(ctx context.Context, w io.Writer, apps []domain.Application) error
}
