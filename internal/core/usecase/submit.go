package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/kirillkom/visa-desk/internal/core/domain"
	"github.com/kirillkom/visa-desk/internal/core/ports"
)

const noteApplicationSubmitted = "Application submitted"

type SubmitApplicationUseCase struct {
	repo      ports.ApplicationRepository
	publisher ports.StatusEventPublisher
	now       Clock
}

func NewSubmitApplicationUseCase(
	repo ports.ApplicationRepository,
	publisher ports.StatusEventPublisher,
	now Clock,
) *SubmitApplicationUseCase {
	if now == nil {
		now = systemClock
	}
	return &SubmitApplicationUseCase{
		repo:      repo,
		publisher: publisher,
		now:       now,
	}
}

func (uc *SubmitApplicationUseCase) Submit(
	ctx context.Context,
	actor domain.Session,
	input ports.SubmitApplication,
) (*domain.Application, error) {
	if strings.TrimSpace(actor.UserID) == "" {
		return nil, domain.WrapError(domain.ErrUnauthorized, "submit application", errors.New("missing session"))
	}
	input = ports.SubmitApplication{
		Name:        strings.TrimSpace(input.Name),
		Email:       strings.TrimSpace(input.Email),
		Destination: strings.TrimSpace(input.Destination),
		VisaType:    strings.TrimSpace(input.VisaType),
	}
	if err := validateStruct(input); err != nil {
		return nil, err
	}

	now := uc.now()
	initial := domain.StatusEvent{
		Status:    domain.StatusDocumentSubmitted,
		Date:      now,
		Note:      noteApplicationSubmitted,
		ActorID:   actor.UserID,
		ActorRole: actor.Role,
	}
	app := &domain.Application{
		ID:            uuid.NewString(),
		Name:          input.Name,
		Email:         input.Email,
		UserID:        actor.UserID,
		Destination:   input.Destination,
		VisaType:      input.VisaType,
		Documents:     []domain.Document{},
		CurrentStatus: initial.Status,
		StatusHistory: []domain.StatusEvent{initial},
		Version:       1,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := uc.repo.Create(ctx, app); err != nil {
		return nil, fmt.Errorf("create application: %w", err)
	}
	publishStatusChanged(ctx, uc.publisher, app, initial, false)
	return app, nil
}
