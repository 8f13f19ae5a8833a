package httpadapter

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"strings"
	"sync"

	"github.com/kirillkom/visa-desk/internal/config"
	"github.com/kirillkom/visa-desk/internal/core/domain"
	"github.com/kirillkom/visa-desk/internal/core/ports"
)

var (
	adminSession = domain.Session{UserID: "admin-1", Name: "Ada", Role: domain.RoleAdmin}
	agentSession = domain.Session{UserID: "agent-1", Name: "Kofi", Role: domain.RoleAgent}
	salesSession = domain.Session{UserID: "sales-1", Name: "Sam", Role: domain.RoleSales}
	userSession  = domain.Session{UserID: "user-1", Name: "Amina", Email: "amina@example.com", Role: domain.RoleUser}
	otherSession = domain.Session{UserID: "user-2", Name: "Bola", Email: "bola@example.com", Role: domain.RoleUser}
)

type verifierFake map[string]domain.Session

func (f verifierFake) Verify(token string) (domain.Session, error) {
	session, ok := f[token]
	if !ok {
		return domain.Session{}, domain.WrapError(domain.ErrUnauthorized, "verify token", errors.New("unknown token"))
	}
	return session, nil
}

func testVerifier() verifierFake {
	return verifierFake{
		"admin": adminSession,
		"agent": agentSession,
		"sales": salesSession,
		"user":  userSession,
		"other": otherSession,
	}
}

func sampleApplication(id string) *domain.Application {
	return &domain.Application{
		ID:            id,
		Name:          "Amina",
		Email:         "amina@example.com",
		UserID:        userSession.UserID,
		Destination:   "Canada",
		VisaType:      "Student",
		CurrentStatus: domain.StatusDocumentSubmitted,
		Version:       1,
	}
}

type submitterFake struct {
	gotSession domain.Session
	gotInput   ports.SubmitApplication
	err        error
}

func (f *submitterFake) Submit(_ context.Context, actor domain.Session, input ports.SubmitApplication) (*domain.Application, error) {
	f.gotSession = actor
	f.gotInput = input
	if f.err != nil {
		return nil, f.err
	}
	app := sampleApplication("app-new")
	app.Name = input.Name
	return app, nil
}

type workflowFake struct {
	mu        sync.Mutex
	calls     []string
	gotUpdate ports.StatusUpdate
	err       error
}

func (f *workflowFake) UpdateApplicationStatus(_ context.Context, _ domain.Session, id string, update ports.StatusUpdate) (*domain.Application, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "update:"+id)
	f.gotUpdate = update
	if f.err != nil {
		return nil, f.err
	}
	app := sampleApplication(id)
	app.CurrentStatus = domain.Status(update.Status)
	return app, nil
}

func (f *workflowFake) Accept(_ context.Context, agent domain.Session, id string) (*domain.Application, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "accept:"+id)
	if f.err != nil {
		return nil, f.err
	}
	app := sampleApplication(id)
	app.AgentID = agent.UserID
	return app, nil
}

type uploadedFake struct {
	DocumentType string
	FileName     string
	ContentType  string
	Body         string
}

type documentsFake struct {
	workflow    *workflowFake
	gotID       string
	uploaded    []uploadedFake
	offerLetter string
	offerName   string
	err         error
}

func (f *documentsFake) UploadDocuments(_ context.Context, _ domain.Session, id string, files []ports.UploadFile) (*domain.Application, error) {
	f.gotID = id
	for _, file := range files {
		body, err := io.ReadAll(file.Body)
		if err != nil {
			return nil, err
		}
		f.uploaded = append(f.uploaded, uploadedFake{
			DocumentType: file.DocumentType,
			FileName:     file.FileName,
			ContentType:  file.ContentType,
			Body:         string(body),
		})
	}
	if f.err != nil {
		return nil, f.err
	}
	app := sampleApplication(id)
	app.CurrentStatus = domain.StatusAdditionalDocumentsSubmitted
	return app, nil
}

func (f *documentsFake) AttachOfferLetter(_ context.Context, _ domain.Session, id, fileName, payload string) (*domain.Application, error) {
	if f.workflow != nil {
		f.workflow.mu.Lock()
		f.workflow.calls = append(f.workflow.calls, "offer:"+id)
		f.workflow.mu.Unlock()
	}
	f.offerLetter = payload
	f.offerName = fileName
	if f.err != nil {
		return nil, f.err
	}
	app := sampleApplication(id)
	app.Documents = append(app.Documents, domain.Document{Type: domain.DocumentTypeOfferLetter, FileName: fileName})
	return app, nil
}

type readerFake struct {
	apps      []domain.Application
	gotFilter domain.ApplicationFilter
	deleted   string
	err       error
}

func (f *readerFake) Get(_ context.Context, actor domain.Session, id string) (*domain.Application, error) {
	if f.err != nil {
		return nil, f.err
	}
	for i := range f.apps {
		if f.apps[i].ID == id {
			app := f.apps[i]
			if !actor.CanView(&app) {
				return nil, domain.WrapError(domain.ErrForbidden, "get application", errors.New("not visible"))
			}
			return &app, nil
		}
	}
	return nil, domain.ErrApplicationNotFound
}

func (f *readerFake) List(_ context.Context, _ domain.Session, filter domain.ApplicationFilter) ([]domain.Application, error) {
	f.gotFilter = filter
	if f.err != nil {
		return nil, f.err
	}
	return f.apps, nil
}

func (f *readerFake) Delete(_ context.Context, _ domain.Session, id string) error {
	f.deleted = id
	return f.err
}

func (f *readerFake) Export(_ context.Context, _ domain.Session, filter domain.ApplicationFilter, w io.Writer) error {
	f.gotFilter = filter
	if f.err != nil {
		return f.err
	}
	_, err := w.Write([]byte("xlsx-bytes"))
	return err
}

type filesFake struct {
	objects map[string]string
	opened  []string
}

func (f *filesFake) Save(_ context.Context, key string, data io.Reader) (int64, error) {
	raw, err := io.ReadAll(data)
	if err != nil {
		return 0, err
	}
	f.objects[key] = string(raw)
	return int64(len(raw)), nil
}

func (f *filesFake) Open(_ context.Context, key string) (io.ReadCloser, error) {
	f.opened = append(f.opened, key)
	body, ok := f.objects[key]
	if !ok {
		return nil, fmt.Errorf("open file: %w", fs.ErrNotExist)
	}
	return io.NopCloser(strings.NewReader(body)), nil
}

func (f *filesFake) URL(key string) string {
	return "/uploads/" + key
}

type routerFixture struct {
	submitter *submitterFake
	workflow  *workflowFake
	documents *documentsFake
	reader    *readerFake
	files     *filesFake
	handler   http.Handler
}

func newRouterFixture(cfg config.Config) *routerFixture {
	workflow := &workflowFake{}
	fx := &routerFixture{
		submitter: &submitterFake{},
		workflow:  workflow,
		documents: &documentsFake{workflow: workflow},
		reader:    &readerFake{apps: []domain.Application{*sampleApplication("app-1")}},
		files:     &filesFake{objects: map[string]string{}},
	}
	fx.handler = NewRouter(cfg, Dependencies{
		Submitter: fx.submitter,
		Workflow:  fx.workflow,
		Documents: fx.documents,
		Reader:    fx.reader,
		Verifier:  testVerifier(),
		Files:     fx.files,
	}).Handler()
	return fx
}
