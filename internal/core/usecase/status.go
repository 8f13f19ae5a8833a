package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/visa-desk/internal/core/domain"
	"github.com/kirillkom/visa-desk/internal/core/ports"
)

type Clock func() time.Time

func systemClock() time.Time {
	return time.Now().UTC()
}

type WorkflowOptions struct {
	// RequireNote rejects manual transitions without a note. When false the
	// note defaults to "Status updated to {status}".
	RequireNote bool
	Now         Clock
}

type StatusWorkflowUseCase struct {
	repo      ports.ApplicationRepository
	publisher ports.StatusEventPublisher
	opts      WorkflowOptions
}

func NewStatusWorkflowUseCase(
	repo ports.ApplicationRepository,
	publisher ports.StatusEventPublisher,
	opts WorkflowOptions,
) *StatusWorkflowUseCase {
	if opts.Now == nil {
		opts.Now = systemClock
	}
	return &StatusWorkflowUseCase{
		repo:      repo,
		publisher: publisher,
		opts:      opts,
	}
}

func (uc *StatusWorkflowUseCase) UpdateApplicationStatus(
	ctx context.Context,
	actor domain.Session,
	applicationID string,
	update ports.StatusUpdate,
) (*domain.Application, error) {
	if !actor.Role.IsStaff() {
		return nil, domain.WrapError(domain.ErrForbidden, "update application status", errors.New("staff role required"))
	}
	if err := validateStruct(update); err != nil {
		return nil, err
	}
	status, err := domain.ParseStatus(update.Status)
	if err != nil {
		return nil, err
	}
	required := trimmedNonEmpty(update.RequiredDocuments)
	note := strings.TrimSpace(update.Note)

	var appended *domain.StatusEvent
	app, err := uc.repo.Mutate(ctx, applicationID, func(app *domain.Application) (bool, error) {
		appended = nil
		if actor.Role == domain.RoleAgent && !app.AssignedTo(actor.UserID) {
			return false, domain.WrapError(domain.ErrForbidden, "update application status", errors.New("application is not assigned to this agent"))
		}
		if note == "" && status.SameAs(app.CurrentStatus) && len(required) == 0 {
			return false, nil
		}

		event, err := uc.buildEvent(actor, status, note, update.TentativeDate, required)
		if err != nil {
			return false, err
		}
		app.AppendStatus(event)
		appended = &event
		return true, nil
	})
	if err != nil {
		return nil, fmt.Errorf("update application status: %w", err)
	}

	if appended != nil {
		publishStatusChanged(ctx, uc.publisher, app, *appended, false)
	}
	return app, nil
}

func (uc *StatusWorkflowUseCase) buildEvent(
	actor domain.Session,
	status domain.Status,
	note, tentativeDate string,
	required []string,
) (domain.StatusEvent, error) {
	if note == "" {
		if uc.opts.RequireNote {
			return domain.StatusEvent{}, domain.NewValidationError("note", "this field is required")
		}
		note = fmt.Sprintf("Status updated to %s", status)
	}

	event := domain.StatusEvent{
		Status:        status,
		Date:          uc.opts.Now(),
		Note:          note,
		TentativeDate: strings.TrimSpace(tentativeDate),
		ActorID:       actor.UserID,
		ActorRole:     actor.Role,
	}
	if status == domain.StatusAdditionalDocumentsNeeded {
		if len(required) == 0 {
			return domain.StatusEvent{}, domain.NewValidationError("requiredDocuments", "at least one document type is required")
		}
		event.RequiredDocuments = append([]string(nil), required...)
	}
	return event, nil
}

// Accept assigns an unassigned application to the calling agent. The first
// agent to accept keeps it.
func (uc *StatusWorkflowUseCase) Accept(ctx context.Context, agent domain.Session, applicationID string) (*domain.Application, error) {
	if agent.Role != domain.RoleAgent {
		return nil, domain.WrapError(domain.ErrForbidden, "accept application", errors.New("agent role required"))
	}

	app, err := uc.repo.Mutate(ctx, applicationID, func(app *domain.Application) (bool, error) {
		if app.AssignedTo(agent.UserID) {
			return false, nil
		}
		if app.AgentID != "" {
			return false, domain.WrapError(domain.ErrConflict, "accept application", fmt.Errorf("already accepted by agent %s", app.AgentID))
		}
		now := uc.opts.Now()
		app.AgentID = agent.UserID
		app.AgentName = agent.Name
		app.AgentEmail = agent.Email
		app.AcceptedAt = &now
		app.UpdatedAt = now
		return true, nil
	})
	if err != nil {
		return nil, fmt.Errorf("accept application: %w", err)
	}
	return app, nil
}

func publishStatusChanged(
	ctx context.Context,
	publisher ports.StatusEventPublisher,
	app *domain.Application,
	event domain.StatusEvent,
	automatic bool,
) {
	if publisher == nil {
		return
	}
	msg := domain.StatusChanged{
		EventID:       uuid.NewString(),
		ApplicationID: app.ID,
		UserID:        app.UserID,
		Email:         app.Email,
		Name:          app.Name,
		Status:        event.Status,
		Note:          event.Note,
		ActorRole:     event.ActorRole,
		Automatic:     automatic,
		OccurredAt:    event.Date,
	}
	// The transition is already committed; publish failures are logged, not returned.
	if err := publisher.PublishStatusChanged(ctx, msg); err != nil {
		slog.Warn("status_event_publish_failed",
			"application_id", app.ID,
			"status", string(event.Status),
			"error", err,
		)
	}
}
