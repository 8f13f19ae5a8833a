package ports

import (
	"context"
	"io"

	"github.com/kirillkom/visa-desk/internal/core/domain"
)

type SubmitApplication struct {
	Name        string `json:"name" validate:"required,max=200"`
	Email       string `json:"email" validate:"required,email"`
	Destination string `json:"destination" validate:"required,max=100"`
	VisaType    string `json:"visaType" validate:"required,max=100"`
}

type StatusUpdate struct {
	Status            string   `json:"status" validate:"required"`
	Note              string   `json:"note"`
	TentativeDate     string   `json:"tentativeDate,omitempty"`
	RequiredDocuments []string `json:"requiredDocuments,omitempty"`
}

type UploadFile struct {
	DocumentType string
	FileName     string
	ContentType  string
	Body         io.Reader
}

// ApplicationSubmitter is the inbound contract for creating applications.
type ApplicationSubmitter interface {
	Submit(ctx context.Context, actor domain.Session, input SubmitApplication) (*domain.Application, error)
}

// StatusWorkflow is the inbound contract for status transitions and agent assignment.
type StatusWorkflow interface {
	UpdateApplicationStatus(ctx context.Context, actor domain.Session, applicationID string, update StatusUpdate) (*domain.Application, error)
	Accept(ctx context.Context, agent domain.Session, applicationID string) (*domain.Application, error)
}

// DocumentIntake is the inbound contract for document uploads.
type DocumentIntake interface {
	UploadDocuments(ctx context.Context, actor domain.Session, applicationID string, files []UploadFile) (*domain.Application, error)
	AttachOfferLetter(ctx context.Context, actor domain.Session, applicationID, fileName, base64Payload string) (*domain.Application, error)
}

// ApplicationReader is the inbound read model for applications.
type ApplicationReader interface {
	Get(ctx context.Context, actor domain.Session, id string) (*domain.Application, error)
	List(ctx context.Context, actor domain.Session, filter domain.ApplicationFilter) ([]domain.Application, error)
	Delete(ctx context.Context, actor domain.Session, id string) error
	Export(ctx context.Context, actor domain.Session, filter domain.ApplicationFilter, w io.Writer) error
}

// NotificationRecorder is the inbound contract of the notification worker.
type NotificationRecorder interface {
	Record(ctx context.Context, event domain.StatusChanged) error
}
