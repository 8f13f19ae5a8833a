package usecase

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/visa-desk/internal/core/domain"
	"github.com/kirillkom/visa-desk/internal/core/ports"
)

const (
	noteAllRequiredUploaded = "All required documents have been uploaded"
	noteDocumentUploaded    = "Document uploaded"
)

type DocumentOptions struct {
	Now Clock
}

type DocumentUseCase struct {
	repo      ports.ApplicationRepository
	storage   ports.ObjectStorage
	inspector ports.PDFInspector
	publisher ports.StatusEventPublisher
	now       Clock
}

func NewDocumentUseCase(
	repo ports.ApplicationRepository,
	storage ports.ObjectStorage,
	inspector ports.PDFInspector,
	publisher ports.StatusEventPublisher,
	opts DocumentOptions,
) *DocumentUseCase {
	if opts.Now == nil {
		opts.Now = systemClock
	}
	return &DocumentUseCase{
		repo:      repo,
		storage:   storage,
		inspector: inspector,
		publisher: publisher,
		now:       opts.Now,
	}
}

// UploadDocuments stores every file and records each one against the application.
func (uc *DocumentUseCase) UploadDocuments(
	ctx context.Context,
	actor domain.Session,
	applicationID string,
	files []ports.UploadFile,
) (*domain.Application, error) {
	if len(files) == 0 {
		return nil, domain.NewValidationError("files", "at least one file is required")
	}
	for i, f := range files {
		if strings.TrimSpace(f.DocumentType) == "" {
			return nil, domain.NewValidationError("documentTypes", fmt.Sprintf("document type for file %d is required", i+1))
		}
	}
	if _, err := uc.loadVisible(ctx, actor, applicationID, "upload documents"); err != nil {
		return nil, err
	}

	// Each file commits on its own. A failure leaves earlier files recorded and
	// the error reports how many made it.
	var app *domain.Application
	for i, f := range files {
		key := storageKey(applicationID, f.FileName)
		size, err := uc.storage.Save(ctx, key, f.Body)
		if err != nil {
			return nil, fmt.Errorf("save to object storage: %s (%d of %d files recorded): %w", f.FileName, i, len(files), err)
		}
		app, err = uc.RecordDocumentUpload(ctx, actor, applicationID, f.DocumentType, domain.DocumentMetadata{
			URL:         uc.storage.URL(key),
			FileName:    f.FileName,
			ContentType: f.ContentType,
			Size:        size,
		})
		if err != nil {
			if i == 0 {
				return nil, err
			}
			return nil, fmt.Errorf("%s (%d of %d files recorded): %w", f.FileName, i, len(files), err)
		}
	}
	return app, nil
}

// RecordDocumentUpload appends the document and promotes the application to
// "Additional Documents Submitted" once the latest requirement is satisfied.
// Applications without any requirement are promoted on every upload, unless
// they already reached or passed that step.
func (uc *DocumentUseCase) RecordDocumentUpload(
	ctx context.Context,
	actor domain.Session,
	applicationID, documentType string,
	meta domain.DocumentMetadata,
) (*domain.Application, error) {
	documentType = strings.TrimSpace(documentType)
	if documentType == "" {
		return nil, domain.NewValidationError("documentType", "this field is required")
	}

	var promotion *domain.StatusEvent
	app, err := uc.repo.Mutate(ctx, applicationID, func(app *domain.Application) (bool, error) {
		promotion = nil
		if !actor.CanView(app) {
			return false, domain.WrapError(domain.ErrForbidden, "record document upload", errors.New("application not accessible"))
		}
		now := uc.now()
		app.AppendDocument(domain.Document{
			Type:        documentType,
			URL:         meta.URL,
			FileName:    meta.FileName,
			ContentType: meta.ContentType,
			Size:        meta.Size,
			UploadDate:  now,
		})
		if event, ok := promotionFor(app, now); ok {
			app.AppendStatus(event)
			promotion = &event
		}
		return true, nil
	})
	if err != nil {
		return nil, fmt.Errorf("record document upload: %w", err)
	}

	if promotion != nil {
		publishStatusChanged(ctx, uc.publisher, app, *promotion, true)
	}
	return app, nil
}

func promotionFor(app *domain.Application, now time.Time) (domain.StatusEvent, bool) {
	if app.CurrentStatus.AtOrPast(domain.StatusAdditionalDocumentSubmitted) {
		return domain.StatusEvent{}, false
	}

	note := noteDocumentUploaded
	if requirement, ok := app.LatestRequirement(); ok {
		if len(app.MissingDocuments(requirement.RequiredDocuments)) > 0 {
			return domain.StatusEvent{}, false
		}
		note = noteAllRequiredUploaded
	}

	system := domain.SystemSession()
	return domain.StatusEvent{
		Status:    domain.StatusAdditionalDocumentsSubmitted,
		Date:      now,
		Note:      note,
		ActorID:   system.UserID,
		ActorRole: system.Role,
	}, true
}

// AttachOfferLetter stores a base64 PDF offer letter as an application document.
// It never changes the application status.
func (uc *DocumentUseCase) AttachOfferLetter(
	ctx context.Context,
	actor domain.Session,
	applicationID, fileName, base64Payload string,
) (*domain.Application, error) {
	if !actor.Role.IsStaff() {
		return nil, domain.WrapError(domain.ErrForbidden, "attach offer letter", errors.New("staff role required"))
	}
	data, err := decodeBase64Payload(base64Payload)
	if err != nil {
		return nil, domain.NewValidationError("offerLetter", "must be base64-encoded")
	}
	pages, err := uc.inspector.PageCount(data)
	if err != nil || pages == 0 {
		return nil, domain.NewValidationError("offerLetter", "must be a readable PDF document")
	}
	if _, err := uc.loadVisible(ctx, actor, applicationID, "attach offer letter"); err != nil {
		return nil, err
	}

	if strings.TrimSpace(fileName) == "" {
		fileName = "offer-letter.pdf"
	}
	key := storageKey(applicationID, fileName)
	size, err := uc.storage.Save(ctx, key, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("save to object storage: %w", err)
	}

	app, err := uc.repo.Mutate(ctx, applicationID, func(app *domain.Application) (bool, error) {
		app.AppendDocument(domain.Document{
			Type:        domain.DocumentTypeOfferLetter,
			URL:         uc.storage.URL(key),
			FileName:    fileName,
			ContentType: "application/pdf",
			Size:        size,
			UploadDate:  uc.now(),
		})
		return true, nil
	})
	if err != nil {
		return nil, fmt.Errorf("attach offer letter: %w", err)
	}
	return app, nil
}

func (uc *DocumentUseCase) loadVisible(ctx context.Context, actor domain.Session, applicationID, operation string) (*domain.Application, error) {
	app, err := uc.repo.GetByID(ctx, applicationID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", operation, err)
	}
	if !actor.CanView(app) {
		return nil, domain.WrapError(domain.ErrForbidden, operation, errors.New("application not accessible"))
	}
	return app, nil
}

func decodeBase64Payload(payload string) ([]byte, error) {
	payload = strings.TrimSpace(payload)
	if i := strings.Index(payload, ";base64,"); i >= 0 && strings.HasPrefix(payload, "data:") {
		payload = payload[i+len(";base64,"):]
	}
	if payload == "" {
		return nil, errors.New("empty payload")
	}
	return base64.StdEncoding.DecodeString(payload)
}

func storageKey(applicationID, filename string) string {
	return fmt.Sprintf("applications/%s/%s_%s", sanitizeFilename(applicationID), uuid.NewString(), sanitizeFilename(filename))
}

func sanitizeFilename(name string) string {
	base := filepath.Base(name)
	base = strings.ReplaceAll(base, " ", "_")
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r
		case r >= 'A' && r <= 'Z':
			return r
		case r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, base)
	if base == "" || base == "." || base == ".." {
		return "document.bin"
	}
	return base
}
