package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-notebook/pkg/services"
)

// SQLRequest is the body of POST /api/sql.
type SQLRequest struct {
	SQL    string `json:"sql"`
	DBName string `json:"dbName"`
}

// SQLHandler runs user SQL.
type SQLHandler struct {
	queries services.QueryService
	logger  *zap.Logger
}

// NewSQLHandler creates a SQL handler.
func NewSQLHandler(queries services.QueryService, logger *zap.Logger) *SQLHandler {
	return &SQLHandler{queries: queries, logger: logger}
}

// RegisterRoutes registers the handler's routes on the given mux.
func (h *SQLHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/sql", h.Run)
}

// Run handles POST /api/sql. The response is the normalized result of the
// last statement; driver errors come back as a 500 with the driver message.
func (h *SQLHandler) Run(w http.ResponseWriter, r *http.Request) {
	var req SQLRequest
	if !decodeBody(w, r, h.logger, &req) {
		return
	}
	if req.SQL == "" {
		badRequest(w, h.logger, "missing_sql", "sql is required")
		return
	}
	if req.DBName == "" {
		badRequest(w, h.logger, "missing_db_name", "dbName is required")
		return
	}

	result, err := h.queries.Run(r.Context(), req.DBName, req.SQL, clientIP(r))
	if err != nil {
		writeServiceError(w, h.logger, "query_failed", err)
		return
	}

	if err := WriteJSON(w, http.StatusOK, result); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}
