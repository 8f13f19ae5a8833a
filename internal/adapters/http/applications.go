package httpadapter

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kirillkom/visa-desk/internal/core/domain"
	"github.com/kirillkom/visa-desk/internal/core/ports"
)

const (
	maxJSONBodyBytes    = 1 << 20
	multipartMemory     = 8 << 20
	xlsxContentType     = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	uploadKindApplicant = "applicant"
	uploadKindOffer     = "offer_letter"
)

type applicationView struct {
	*domain.Application
	StatusColor   string `json:"statusColor"`
	StatusMessage string `json:"statusMessage"`
	Step          int    `json:"step"`
}

func newApplicationView(app *domain.Application) applicationView {
	return applicationView{
		Application:   app,
		StatusColor:   domain.StatusColor(app.CurrentStatus),
		StatusMessage: domain.StatusMessage(app.CurrentStatus),
		Step:          app.CurrentStatus.Step(),
	}
}

type applicationResponse struct {
	Success     bool            `json:"success"`
	Application applicationView `json:"application"`
}

type applicationListResponse struct {
	Success      bool              `json:"success"`
	Applications []applicationView `json:"applications"`
}

func writeApplication(w http.ResponseWriter, status int, app *domain.Application) {
	writeJSON(w, status, applicationResponse{Success: true, Application: newApplicationView(app)})
}

func (rt *Router) submitApplication(w http.ResponseWriter, r *http.Request) {
	session, _ := sessionFromContext(r.Context())

	var req ports.SubmitApplication
	if err := decodeJSON(w, r, &req, maxJSONBodyBytes); err != nil {
		writeError(w, r, err)
		return
	}
	app, err := rt.deps.Submitter.Submit(r.Context(), session, req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeApplication(w, http.StatusCreated, app)
}

func (rt *Router) listApplications(w http.ResponseWriter, r *http.Request) {
	session, _ := sessionFromContext(r.Context())

	query := r.URL.Query()
	filter := domain.ApplicationFilter{
		UserID:  strings.TrimSpace(query.Get("userId")),
		AgentID: strings.TrimSpace(query.Get("agentId")),
		Status:  domain.Status(strings.TrimSpace(query.Get("status"))),
	}
	if raw := strings.TrimSpace(query.Get("limit")); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			writeError(w, r, domain.NewValidationError("limit", "must be a non-negative integer"))
			return
		}
		filter.Limit = limit
	}

	apps, err := rt.deps.Reader.List(r.Context(), session, filter)
	if err != nil {
		writeError(w, r, err)
		return
	}
	views := make([]applicationView, 0, len(apps))
	for i := range apps {
		views = append(views, newApplicationView(&apps[i]))
	}
	writeJSON(w, http.StatusOK, applicationListResponse{Success: true, Applications: views})
}

func (rt *Router) getApplication(w http.ResponseWriter, r *http.Request) {
	session, _ := sessionFromContext(r.Context())

	app, err := rt.deps.Reader.Get(r.Context(), session, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeApplication(w, http.StatusOK, app)
}

func (rt *Router) updateStatus(w http.ResponseWriter, r *http.Request) {
	session, _ := sessionFromContext(r.Context())

	var req ports.StatusUpdate
	if err := decodeJSON(w, r, &req, maxJSONBodyBytes); err != nil {
		writeError(w, r, err)
		return
	}
	app, err := rt.deps.Workflow.UpdateApplicationStatus(r.Context(), session, chi.URLParam(r, "id"), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeApplication(w, http.StatusOK, app)
}

type statusUpdateWithOfferLetter struct {
	ports.StatusUpdate
	OfferLetter         string `json:"offerLetter,omitempty"`
	OfferLetterFileName string `json:"offerLetterFileName,omitempty"`
}

// updateStatusWithOfferLetter applies the transition first and then attaches
// the optional base64 offer letter.
func (rt *Router) updateStatusWithOfferLetter(w http.ResponseWriter, r *http.Request) {
	session, _ := sessionFromContext(r.Context())
	id := chi.URLParam(r, "id")

	var req statusUpdateWithOfferLetter
	if err := decodeJSON(w, r, &req, rt.offerLetterBodyLimit()); err != nil {
		writeError(w, r, err)
		return
	}
	app, err := rt.deps.Workflow.UpdateApplicationStatus(r.Context(), session, id, req.StatusUpdate)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if strings.TrimSpace(req.OfferLetter) != "" {
		app, err = rt.deps.Documents.AttachOfferLetter(r.Context(), session, id, req.OfferLetterFileName, req.OfferLetter)
		if err != nil {
			writeError(w, r, err)
			return
		}
		rt.recordUploads(uploadKindOffer, 1)
	}
	writeApplication(w, http.StatusOK, app)
}

func (rt *Router) offerLetterBodyLimit() int64 {
	// base64 inflates the payload by a third.
	limit := rt.cfg.MaxUploadBytes/3*4 + maxJSONBodyBytes
	if limit <= maxJSONBodyBytes {
		return maxJSONBodyBytes
	}
	return limit
}

func (rt *Router) acceptApplication(w http.ResponseWriter, r *http.Request) {
	session, _ := sessionFromContext(r.Context())

	app, err := rt.deps.Workflow.Accept(r.Context(), session, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeApplication(w, http.StatusOK, app)
}

func (rt *Router) deleteApplication(w http.ResponseWriter, r *http.Request) {
	session, _ := sessionFromContext(r.Context())

	if err := rt.deps.Reader.Delete(r.Context(), session, chi.URLParam(r, "id")); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "application deleted"})
}

func (rt *Router) uploadDocuments(w http.ResponseWriter, r *http.Request) {
	session, _ := sessionFromContext(r.Context())

	if rt.cfg.MaxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, rt.cfg.MaxUploadBytes)
	}
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		writeError(w, r, bodyError("multipart form", err))
		return
	}
	defer func() {
		_ = r.MultipartForm.RemoveAll()
	}()

	applicationID := strings.TrimSpace(r.FormValue("applicationId"))
	if applicationID == "" {
		writeError(w, r, domain.NewValidationError("applicationId", "this field is required"))
		return
	}
	headers := r.MultipartForm.File["files"]
	if len(headers) == 0 {
		writeError(w, r, domain.NewValidationError("files", "at least one file is required"))
		return
	}
	docTypes, err := documentTypesFor(r.MultipartForm.Value, len(headers))
	if err != nil {
		writeError(w, r, err)
		return
	}

	files := make([]ports.UploadFile, 0, len(headers))
	for i, header := range headers {
		f, err := header.Open()
		if err != nil {
			writeError(w, r, fmt.Errorf("open multipart file %q: %w", header.Filename, err))
			return
		}
		defer f.Close()
		files = append(files, ports.UploadFile{
			DocumentType: docTypes[i],
			FileName:     header.Filename,
			ContentType:  contentTypeOf(header),
			Body:         f,
		})
	}

	app, err := rt.deps.Documents.UploadDocuments(r.Context(), session, applicationID, files)
	if err != nil {
		writeError(w, r, err)
		return
	}
	rt.recordUploads(uploadKindApplicant, len(files))
	writeApplication(w, http.StatusOK, app)
}

// documentTypesFor pairs documentTypes[i] with files[i]. A single
// documentType value applies to every file.
func documentTypesFor(values map[string][]string, fileCount int) ([]string, error) {
	types := values["documentTypes"]
	if len(types) == 0 {
		types = values["documentTypes[]"]
	}
	if len(types) == 0 {
		if single := values["documentType"]; len(single) == 1 {
			types = make([]string, fileCount)
			for i := range types {
				types[i] = single[0]
			}
		}
	}
	if len(types) != fileCount {
		return nil, domain.NewValidationError("documentTypes", "one document type is required per file")
	}
	return types, nil
}

func contentTypeOf(header *multipart.FileHeader) string {
	if ct := header.Header.Get("Content-Type"); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

func (rt *Router) exportApplications(w http.ResponseWriter, r *http.Request) {
	session, _ := sessionFromContext(r.Context())

	filter := domain.ApplicationFilter{
		Status: domain.Status(strings.TrimSpace(r.URL.Query().Get("status"))),
	}
	var buf bytes.Buffer
	if err := rt.deps.Reader.Export(r.Context(), session, filter, &buf); err != nil {
		writeError(w, r, err)
		return
	}
	fileName := fmt.Sprintf("applications-%s.xlsx", time.Now().UTC().Format("20060102"))
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", fileName))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

func (rt *Router) recordUploads(kind string, count int) {
	if rt.deps.Metrics != nil {
		rt.deps.Metrics.RecordDocumentUpload(metricsService, kind, count)
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any, limit int64) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, limit))
	if err := dec.Decode(dst); err != nil {
		return bodyError("json body", err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return domain.WrapError(domain.ErrInvalidInput, "decode json body", errors.New("body must contain a single JSON object"))
	}
	return nil
}

func bodyError(what string, err error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return domain.WrapError(domain.ErrInvalidInput, "read "+what, fmt.Errorf("request body exceeds %d bytes", tooLarge.Limit))
	}
	return domain.WrapError(domain.ErrInvalidInput, "read "+what, err)
}
