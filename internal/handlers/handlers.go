// Package handlers serves the published paging list pages and the run history over HTTP.
package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/alivesay/squire/internal/ledger"
)

type runHistory interface {
	Latest(ctx context.Context, limit int) ([]ledger.Entry, error)
}

type Handler struct {
	listsDir string
	runs     runHistory
}

// New serves pages from listsDir. runs may be nil, which disables /api/runs.
func New(listsDir string, runs runHistory) *Handler {
	return &Handler{listsDir: listsDir, runs: runs}
}

// Routes registers every handler on a new mux
func (h *Handler) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/runs", h.HandleRuns)
	mux.HandleFunc("/healthcheck", h.HandleHealthcheck)
	mux.HandleFunc("/", h.HandleLists)
	return mux
}

// Response helpers
func (h *Handler) writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("Unable to encode JSON response", "err", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, message string, code int) {
	slog.Error(message)
	http.Error(w, message, code)
}

func (h *Handler) HandleHealthcheck(w http.ResponseWriter, r *http.Request) {
	if _, err := w.Write([]byte("OK")); err != nil {
		slog.Error("Unable to write healthcheck", "err", err)
	}
}

// HandleRuns returns the newest ledger entries, ?limit=N
func (h *Handler) HandleRuns(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.runs == nil {
		h.writeError(w, "Run history is not configured", http.StatusNotFound)
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			h.writeError(w, "Invalid limit: "+raw, http.StatusBadRequest)
			return
		}
		limit = n
	}

	entries, err := h.runs.Latest(r.Context(), limit)
	if err != nil {
		slog.Error("Failed to read run history", "err", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []ledger.Entry{}
	}
	h.writeJSON(w, entries)
}

// HandleLists serves files under the lists directory; a branch directory
// resolves to its latest title page.
func (h *Handler) HandleLists(w http.ResponseWriter, r *http.Request) {
	rel := strings.TrimPrefix(r.URL.Path, "/")

	// Prevent directory traversal attacks
	if strings.Contains(rel, "..") {
		http.Error(w, "Invalid file path", http.StatusBadRequest)
		return
	}

	if rel == "" || strings.HasSuffix(rel, "/") || strings.HasSuffix(rel, "/index.html") {
		branch := strings.Trim(strings.TrimSuffix(rel, "index.html"), "/")
		if branch == "" {
			http.NotFound(w, r)
			return
		}
		rel = filepath.Join(branch, "latest_title.html")
	}

	serveFile(w, r, filepath.Join(h.listsDir, filepath.FromSlash(rel)))
}

// serveFile follows the latest_* symlinks and never redirects
func serveFile(w http.ResponseWriter, r *http.Request, path string) {
	f, err := os.Open(path)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil || info.IsDir() {
		http.NotFound(w, r)
		return
	}
	http.ServeContent(w, r, info.Name(), info.ModTime(), f)
}
