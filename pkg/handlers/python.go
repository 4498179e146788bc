package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-notebook/pkg/python"
	"github.com/ekaya-inc/ekaya-notebook/pkg/services"
)

// PythonRequest is the body of POST /api/python.
type PythonRequest struct {
	Code          string         `json:"code"`
	DBName        string         `json:"dbName"`
	ExecutionMode string         `json:"executionMode,omitempty"`
	Params        map[string]any `json:"params,omitempty"`
}

// PythonHandler runs user Python.
type PythonHandler struct {
	python services.PythonService
	logger *zap.Logger
}

// NewPythonHandler creates a Python handler.
func NewPythonHandler(python services.PythonService, logger *zap.Logger) *PythonHandler {
	return &PythonHandler{python: python, logger: logger}
}

// RegisterRoutes registers the handler's routes on the given mux.
func (h *PythonHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/python", h.Execute)
}

// Execute handles POST /api/python. A failed run is a 500 whose body is the
// structured result with error set.
func (h *PythonHandler) Execute(w http.ResponseWriter, r *http.Request) {
	var req PythonRequest
	if !decodeBody(w, r, h.logger, &req) {
		return
	}
	if req.Code == "" {
		badRequest(w, h.logger, "missing_code", "code is required")
		return
	}
	if req.DBName == "" {
		badRequest(w, h.logger, "missing_db_name", "dbName is required")
		return
	}

	result, err := h.python.Execute(r.Context(), services.PythonRequest{
		Code:     req.Code,
		DBName:   req.DBName,
		Mode:     req.ExecutionMode,
		Params:   req.Params,
		ClientIP: clientIP(r),
	})
	if err != nil {
		h.logger.Error("Python execution failed", zap.Error(err))
		result = &python.Result{Logs: []string{err.Error()}, Error: true}
	}

	status := http.StatusOK
	if result.Error {
		status = http.StatusInternalServerError
	}
	if err := WriteJSON(w, status, result); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}
