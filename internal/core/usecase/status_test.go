package usecase

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"

	"github.com/kirillkom/visa-desk/internal/core/domain"
	"github.com/kirillkom/visa-desk/internal/core/ports"
)

func newWorkflow(repo *memoryRepoFake, pub *publisherFake) *StatusWorkflowUseCase {
	return NewStatusWorkflowUseCase(repo, pub, WorkflowOptions{RequireNote: true, Now: newStepClock().Now})
}

func TestUpdateStatusSameStatusWithoutNoteIsNoop(t *testing.T) {
	repo := newMemoryRepoFake(submittedApplication("app-1"))
	pub := &publisherFake{}
	uc := newWorkflow(repo, pub)

	app, err := uc.UpdateApplicationStatus(context.Background(), adminSession, "app-1", ports.StatusUpdate{
		Status: string(domain.StatusDocumentSubmitted),
	})
	if err != nil {
		t.Fatalf("UpdateApplicationStatus() error = %v", err)
	}
	if len(app.StatusHistory) != 1 {
		t.Fatalf("expected history unchanged, got %d events", len(app.StatusHistory))
	}
	if repo.writes != 0 {
		t.Fatalf("expected no write, got %d", repo.writes)
	}
	if len(pub.published()) != 0 {
		t.Fatalf("expected no published event")
	}
}

func TestUpdateStatusAppendsOnlyNonNoopCalls(t *testing.T) {
	repo := newMemoryRepoFake(submittedApplication("app-1"))
	uc := newWorkflow(repo, &publisherFake{})
	ctx := context.Background()

	calls := []ports.StatusUpdate{
		{Status: string(domain.StatusDocumentsVerified), Note: "checked"},
		{Status: string(domain.StatusDocumentsVerified)},
		{Status: string(domain.StatusDocumentsVerified), Note: "double checked"},
		{Status: string(domain.StatusVisaApplicationSubmitted), Note: "filed at embassy", TentativeDate: "2025-06-01"},
	}
	for _, update := range calls {
		if _, err := uc.UpdateApplicationStatus(ctx, adminSession, "app-1", update); err != nil {
			t.Fatalf("UpdateApplicationStatus(%+v) error = %v", update, err)
		}
	}

	app := repo.get("app-1")
	if len(app.StatusHistory) != 1+3 {
		t.Fatalf("expected 4 events, got %d", len(app.StatusHistory))
	}
	last := app.StatusHistory[len(app.StatusHistory)-1]
	if app.CurrentStatus != last.Status {
		t.Fatalf("currentStatus %q does not match last event %q", app.CurrentStatus, last.Status)
	}
	if last.TentativeDate != "2025-06-01" {
		t.Fatalf("expected tentative date carried, got %q", last.TentativeDate)
	}
	if last.ActorID != adminSession.UserID || last.ActorRole != domain.RoleAdmin {
		t.Fatalf("expected actor attribution, got %+v", last)
	}
}

func TestUpdateStatusAttachesTrimmedRequiredDocuments(t *testing.T) {
	repo := newMemoryRepoFake(submittedApplication("app-1"))
	pub := &publisherFake{}
	uc := newWorkflow(repo, pub)

	app, err := uc.UpdateApplicationStatus(context.Background(), adminSession, "app-1", ports.StatusUpdate{
		Status:            string(domain.StatusAdditionalDocumentsNeeded),
		Note:              "need more",
		RequiredDocuments: []string{" Passport ", "", "Bank Statement", "   "},
	})
	if err != nil {
		t.Fatalf("UpdateApplicationStatus() error = %v", err)
	}
	last := app.StatusHistory[len(app.StatusHistory)-1]
	want := []string{"Passport", "Bank Statement"}
	if !reflect.DeepEqual(last.RequiredDocuments, want) {
		t.Fatalf("requiredDocuments = %v, want %v", last.RequiredDocuments, want)
	}
	events := pub.published()
	if len(events) != 1 || events[0].Status != domain.StatusAdditionalDocumentsNeeded || events[0].Automatic {
		t.Fatalf("unexpected published events %+v", events)
	}
}

func TestUpdateStatusDropsRequiredDocumentsForOtherStatuses(t *testing.T) {
	repo := newMemoryRepoFake(submittedApplication("app-1"))
	uc := newWorkflow(repo, &publisherFake{})

	app, err := uc.UpdateApplicationStatus(context.Background(), adminSession, "app-1", ports.StatusUpdate{
		Status:            string(domain.StatusVisaApproved),
		Note:              "approved",
		RequiredDocuments: []string{"Passport"},
	})
	if err != nil {
		t.Fatalf("UpdateApplicationStatus() error = %v", err)
	}
	if got := app.StatusHistory[len(app.StatusHistory)-1].RequiredDocuments; len(got) != 0 {
		t.Fatalf("expected no required documents, got %v", got)
	}
}

func TestUpdateStatusValidation(t *testing.T) {
	tests := []struct {
		name   string
		update ports.StatusUpdate
		field  string
	}{
		{name: "unknown status", update: ports.StatusUpdate{Status: "Teleported", Note: "x"}},
		{name: "missing status", update: ports.StatusUpdate{Note: "x"}, field: "status"},
		{name: "blank note", update: ports.StatusUpdate{Status: string(domain.StatusVisaApproved), Note: "   "}, field: "note"},
		{name: "needed without documents", update: ports.StatusUpdate{
			Status:            string(domain.StatusAdditionalDocumentsNeeded),
			Note:              "need more",
			RequiredDocuments: []string{" "},
		}, field: "requiredDocuments"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			repo := newMemoryRepoFake(submittedApplication("app-1"))
			uc := newWorkflow(repo, &publisherFake{})

			_, err := uc.UpdateApplicationStatus(context.Background(), adminSession, "app-1", tc.update)
			if !errors.Is(err, domain.ErrInvalidInput) {
				t.Fatalf("expected invalid input, got %v", err)
			}
			if tc.field != "" {
				var verr *domain.ValidationError
				if !errors.As(err, &verr) {
					t.Fatalf("expected validation error, got %T", err)
				}
				if _, ok := verr.Fields[tc.field]; !ok {
					t.Fatalf("expected field %q in %v", tc.field, verr.Fields)
				}
			}
			if len(repo.get("app-1").StatusHistory) != 1 {
				t.Fatalf("history must be unchanged on validation failure")
			}
		})
	}
}

func TestUpdateStatusDefaultsNoteWhenNotRequired(t *testing.T) {
	repo := newMemoryRepoFake(submittedApplication("app-1"))
	uc := NewStatusWorkflowUseCase(repo, &publisherFake{}, WorkflowOptions{RequireNote: false})

	app, err := uc.UpdateApplicationStatus(context.Background(), adminSession, "app-1", ports.StatusUpdate{
		Status: string(domain.StatusVisaApproved),
	})
	if err != nil {
		t.Fatalf("UpdateApplicationStatus() error = %v", err)
	}
	if got := app.StatusHistory[1].Note; got != "Status updated to Visa Approved" {
		t.Fatalf("unexpected default note %q", got)
	}
}

func TestUpdateStatusPermissions(t *testing.T) {
	ctx := context.Background()
	update := ports.StatusUpdate{Status: string(domain.StatusVisaApproved), Note: "ok"}

	repo := newMemoryRepoFake(submittedApplication("app-1"))
	uc := newWorkflow(repo, &publisherFake{})
	if _, err := uc.UpdateApplicationStatus(ctx, ownerSession, "app-1", update); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected applicant to be forbidden, got %v", err)
	}
	if _, err := uc.UpdateApplicationStatus(ctx, agentSession, "app-1", update); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected unassigned agent to be forbidden, got %v", err)
	}
	if _, err := uc.Accept(ctx, agentSession, "app-1"); err != nil {
		t.Fatalf("Accept() error = %v", err)
	}
	if _, err := uc.UpdateApplicationStatus(ctx, agentSession, "app-1", update); err != nil {
		t.Fatalf("expected assigned agent to update, got %v", err)
	}
	if _, err := uc.UpdateApplicationStatus(ctx, adminSession, "missing", update); !errors.Is(err, domain.ErrApplicationNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestUpdateStatusPublishFailureDoesNotFailTransition(t *testing.T) {
	repo := newMemoryRepoFake(submittedApplication("app-1"))
	uc := newWorkflow(repo, &publisherFake{err: errors.New("nats down")})

	app, err := uc.UpdateApplicationStatus(context.Background(), adminSession, "app-1", ports.StatusUpdate{
		Status: string(domain.StatusVisaRejected),
		Note:   "insufficient funds",
	})
	if err != nil {
		t.Fatalf("UpdateApplicationStatus() error = %v", err)
	}
	if app.CurrentStatus != domain.StatusVisaRejected {
		t.Fatalf("expected rejected, got %q", app.CurrentStatus)
	}
}

func TestAcceptFirstAgentWins(t *testing.T) {
	repo := newMemoryRepoFake(submittedApplication("app-1"))
	uc := newWorkflow(repo, &publisherFake{})
	ctx := context.Background()

	app, err := uc.Accept(ctx, agentSession, "app-1")
	if err != nil {
		t.Fatalf("Accept() error = %v", err)
	}
	if app.AgentID != agentSession.UserID || app.AgentEmail != agentSession.Email || app.AcceptedAt == nil {
		t.Fatalf("unexpected assignment %+v", app)
	}
	if _, err := uc.Accept(ctx, agentSession, "app-1"); err != nil {
		t.Fatalf("repeated Accept() error = %v", err)
	}
	if repo.writes != 1 {
		t.Fatalf("expected repeated accept to skip the write, got %d writes", repo.writes)
	}
	if _, err := uc.Accept(ctx, otherAgent, "app-1"); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected conflict for second agent, got %v", err)
	}
	if _, err := uc.Accept(ctx, adminSession, "app-1"); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected non-agent to be forbidden, got %v", err)
	}
}

func TestConcurrentTransitionsKeepEveryEvent(t *testing.T) {
	repo := newMemoryRepoFake(submittedApplication("app-1"))
	uc := newWorkflow(repo, &publisherFake{})

	const workers = 8
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := uc.UpdateApplicationStatus(context.Background(), adminSession, "app-1", ports.StatusUpdate{
				Status: string(domain.StatusVisaVerificationInProgress),
				Note:   "progress",
			})
			if err != nil {
				t.Errorf("UpdateApplicationStatus() error = %v", err)
			}
		}()
	}
	wg.Wait()

	app := repo.get("app-1")
	if len(app.StatusHistory) != 1+workers {
		t.Fatalf("expected %d events, got %d", 1+workers, len(app.StatusHistory))
	}
	if app.Version != 1+workers {
		t.Fatalf("expected version %d, got %d", 1+workers, app.Version)
	}
}
