package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/kirillkom/visa-desk/internal/core/domain"
	"github.com/kirillkom/visa-desk/internal/core/ports"
)

const defaultListLimit = 200

type ApplicationQueryUseCase struct {
	repo     ports.ApplicationRepository
	exporter ports.ApplicationExporter
}

func NewApplicationQueryUseCase(repo ports.ApplicationRepository, exporter ports.ApplicationExporter) *ApplicationQueryUseCase {
	return &ApplicationQueryUseCase{
		repo:     repo,
		exporter: exporter,
	}
}

func (uc *ApplicationQueryUseCase) Get(ctx context.Context, actor domain.Session, id string) (*domain.Application, error) {
	app, err := uc.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get application: %w", err)
	}
	if !actor.CanView(app) {
		return nil, domain.WrapError(domain.ErrForbidden, "get application", errors.New("application not accessible"))
	}
	return app, nil
}

// List scopes filter to what the actor may see before querying.
func (uc *ApplicationQueryUseCase) List(ctx context.Context, actor domain.Session, filter domain.ApplicationFilter) ([]domain.Application, error) {
	scoped, err := scopeFilter(actor, filter)
	if err != nil {
		return nil, err
	}
	apps, err := uc.repo.List(ctx, scoped)
	if err != nil {
		return nil, fmt.Errorf("list applications: %w", err)
	}
	return apps, nil
}

func (uc *ApplicationQueryUseCase) Delete(ctx context.Context, actor domain.Session, id string) error {
	if actor.Role != domain.RoleAdmin {
		return domain.WrapError(domain.ErrForbidden, "delete application", errors.New("admin role required"))
	}
	if err := uc.repo.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete application: %w", err)
	}
	return nil
}

func (uc *ApplicationQueryUseCase) Export(ctx context.Context, actor domain.Session, filter domain.ApplicationFilter, w io.Writer) error {
	if actor.Role != domain.RoleAdmin {
		return domain.WrapError(domain.ErrForbidden, "export applications", errors.New("admin role required"))
	}
	apps, err := uc.List(ctx, actor, filter)
	if err != nil {
		return err
	}
	if err := uc.exporter.Export(ctx, w, apps); err != nil {
		return fmt.Errorf("export applications: %w", err)
	}
	return nil
}

func scopeFilter(actor domain.Session, filter domain.ApplicationFilter) (domain.ApplicationFilter, error) {
	if filter.Status != "" && !filter.Status.Known() {
		return domain.ApplicationFilter{}, fmt.Errorf("%w: %q", domain.ErrInvalidStatus, filter.Status)
	}
	if filter.Limit <= 0 || filter.Limit > defaultListLimit {
		filter.Limit = defaultListLimit
	}

	switch actor.Role {
	case domain.RoleAdmin, domain.RoleEmployee, domain.RoleSales:
		return filter, nil
	case domain.RoleAgent:
		filter.AgentID = actor.UserID
		filter.IncludeUnassigned = true
		return filter, nil
	case domain.RoleUser:
		filter.UserID = actor.UserID
		filter.AgentID = ""
		filter.IncludeUnassigned = false
		return filter, nil
	default:
		return domain.ApplicationFilter{}, domain.WrapError(domain.ErrForbidden, "list applications", errors.New("unknown role"))
	}
}
