package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-notebook/pkg/models"
	"github.com/ekaya-inc/ekaya-notebook/pkg/services"
)

// CreateNotebookRequest is the body of POST /api/notebooks. A non-empty
// DBName connects an existing database instead of creating one.
type CreateNotebookRequest struct {
	Topic  string `json:"topic"`
	Icon   string `json:"icon"`
	DBName string `json:"dbName,omitempty"`
}

// NotebooksHandler exposes notebook lifecycle, table listing and metadata inference.
type NotebooksHandler struct {
	notebooks services.NotebookService
	metadata  services.MetadataService
	logger    *zap.Logger
}

// NewNotebooksHandler creates a notebooks handler.
func NewNotebooksHandler(notebooks services.NotebookService, metadata services.MetadataService, logger *zap.Logger) *NotebooksHandler {
	return &NotebooksHandler{notebooks: notebooks, metadata: metadata, logger: logger}
}

// RegisterRoutes registers the handler's routes on the given mux.
func (h *NotebooksHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/databases", h.ListDatabases)

	mux.HandleFunc("GET /api/notebooks", h.List)
	mux.HandleFunc("POST /api/notebooks", h.Create)
	mux.HandleFunc("GET /api/notebooks/{id}", h.Get)
	mux.HandleFunc("DELETE /api/notebooks/{id}", h.Delete)
	mux.HandleFunc("POST /api/notebooks/{id}/clone", h.Clone)
	mux.HandleFunc("GET /api/notebooks/{id}/tables", h.Tables)
	mux.HandleFunc("POST /api/notebooks/{id}/metadata", h.InferMetadata)
}

// ListDatabases handles GET /api/databases.
func (h *NotebooksHandler) ListDatabases(w http.ResponseWriter, r *http.Request) {
	names, err := h.notebooks.ListDatabases(r.Context())
	if err != nil {
		writeServiceError(w, h.logger, "list_databases_failed", err)
		return
	}
	h.write(w, http.StatusOK, names)
}

// List handles GET /api/notebooks.
func (h *NotebooksHandler) List(w http.ResponseWriter, r *http.Request) {
	notebooks, err := h.notebooks.List(r.Context())
	if err != nil {
		writeServiceError(w, h.logger, "list_failed", err)
		return
	}
	h.write(w, http.StatusOK, notebooks)
}

// Create handles POST /api/notebooks.
func (h *NotebooksHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateNotebookRequest
	if !decodeBody(w, r, h.logger, &req) {
		return
	}
	if req.Topic == "" {
		badRequest(w, h.logger, "missing_topic", "topic is required")
		return
	}

	var err error
	var nb *models.Notebook
	if req.DBName != "" {
		nb, err = h.notebooks.Connect(r.Context(), req.Topic, req.Icon, req.DBName)
	} else {
		nb, err = h.notebooks.Create(r.Context(), req.Topic, req.Icon)
	}
	if err != nil {
		writeServiceError(w, h.logger, "create_failed", err)
		return
	}
	h.write(w, http.StatusCreated, nb)
}

// Get handles GET /api/notebooks/{id}. Each call counts as a view.
func (h *NotebooksHandler) Get(w http.ResponseWriter, r *http.Request) {
	nb, err := h.notebooks.Open(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, h.logger, "get_failed", err)
		return
	}
	h.write(w, http.StatusOK, nb)
}

// Clone handles POST /api/notebooks/{id}/clone.
func (h *NotebooksHandler) Clone(w http.ResponseWriter, r *http.Request) {
	nb, err := h.notebooks.Clone(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, h.logger, "clone_failed", err)
		return
	}
	h.write(w, http.StatusCreated, nb)
}

// Delete handles DELETE /api/notebooks/{id}.
func (h *NotebooksHandler) Delete(w http.ResponseWriter, r *http.Request) {
	result, err := h.notebooks.Delete(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, h.logger, "delete_failed", err)
		return
	}
	h.write(w, http.StatusOK, result)
}

// Tables handles GET /api/notebooks/{id}/tables. ?refresh=true samples row counts.
func (h *NotebooksHandler) Tables(w http.ResponseWriter, r *http.Request) {
	refresh := r.URL.Query().Get("refresh") == "true"
	tables, err := h.notebooks.Tables(r.Context(), r.PathValue("id"), refresh)
	if err != nil {
		writeServiceError(w, h.logger, "tables_failed", err)
		return
	}
	h.write(w, http.StatusOK, tables)
}

// InferMetadata handles POST /api/notebooks/{id}/metadata.
func (h *NotebooksHandler) InferMetadata(w http.ResponseWriter, r *http.Request) {
	inference, err := h.metadata.Infer(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, h.logger, "metadata_failed", err)
		return
	}
	h.write(w, http.StatusOK, inference)
}

func (h *NotebooksHandler) write(w http.ResponseWriter, status int, data any) {
	if err := WriteJSON(w, status, data); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}
