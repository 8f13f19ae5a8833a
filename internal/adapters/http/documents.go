package httpadapter

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/go-chi/chi/v5"
)

// serveDocument streams one stored document to a caller who may view the
// application it belongs to. Keys have the form applications/{id}/{file}.
func (rt *Router) serveDocument(w http.ResponseWriter, r *http.Request) {
	session, _ := sessionFromContext(r.Context())

	key := strings.TrimPrefix(chi.URLParam(r, "*"), "/")
	applicationID, fileName, ok := splitDocumentKey(key)
	if !ok {
		writeMessage(w, http.StatusNotFound, "document not found")
		return
	}
	if _, err := rt.deps.Reader.Get(r.Context(), session, applicationID); err != nil {
		writeError(w, r, err)
		return
	}

	body, err := rt.deps.Files.Open(r.Context(), key)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			writeMessage(w, http.StatusNotFound, "document not found")
			return
		}
		writeError(w, r, fmt.Errorf("open document: %w", err))
		return
	}
	defer body.Close()

	contentType := mime.TypeByExtension(path.Ext(fileName))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", fileName))
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("Cache-Control", "private, no-store")
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, body); err != nil {
		slog.Warn("document_stream_failed",
			"request_id", requestIDFromContext(r.Context()),
			"application_id", applicationID,
			"error", err,
		)
	}
}

// splitDocumentKey accepts exactly applications/{id}/{file}. Directory paths
// and anything with dot segments are rejected.
func splitDocumentKey(key string) (applicationID, fileName string, ok bool) {
	parts := strings.Split(key, "/")
	if len(parts) != 3 || parts[0] != "applications" {
		return "", "", false
	}
	for _, part := range parts {
		if part == "" || part == "." || part == ".." {
			return "", "", false
		}
	}
	return parts[1], parts[2], true
}

// documentPrefix is the route prefix for a storage base URL, which may be a
// bare path or an absolute URL. The root path is never mounted.
func documentPrefix(baseURL string) string {
	u, err := url.Parse(baseURL)
	if err != nil {
		return ""
	}
	prefix := strings.TrimRight(u.Path, "/")
	if prefix == "" || !strings.HasPrefix(prefix, "/") {
		return ""
	}
	return prefix
}
