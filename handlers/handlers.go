// Package handlers exposes the query proxy over HTTP. It is thin
// plumbing: parse, delegate to the core, map errors to statuses.
package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/queryproxy/queryproxy/databases"
	"github.com/queryproxy/queryproxy/dberrors"
	"github.com/queryproxy/queryproxy/types"
	"github.com/queryproxy/queryproxy/validator"
)

const (
	defaultPage     = 1
	defaultPageSize = 10
	maxPageSize     = 100
)

type Server struct {
	connector databases.Connector
	validator *validator.Validator
	logger    *slog.Logger
}

type queryRequest struct {
	Query string `json:"query"`
}

type tablesResponse struct {
	Tables     []types.TableMetadata `json:"tables"`
	Pagination types.PaginationInfo  `json:"pagination"`
}

type errorResponse struct {
	Detail string `json:"detail"`
}

// NewRouter builds the HTTP surface of the proxy.
func NewRouter(connector databases.Connector, v *validator.Validator, logger *slog.Logger) http.Handler {
	s := &Server{connector: connector, validator: v, logger: logger}

	r := chi.NewRouter()
	r.Get("/health", s.handleHealth)
	r.Route("/api", func(r chi.Router) {
		r.Get("/tables", s.handleListTables)
		r.Get("/tables/{tableName}/schema", s.handleGetTableSchema)
		r.Post("/query", s.handleExecuteQuery)
	})
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "sql-query-proxy",
	})
}

func (s *Server) handleListTables(w http.ResponseWriter, r *http.Request) {
	page, err := intQueryParam(r, "page", defaultPage)
	if err != nil || page < 1 {
		writeError(w, http.StatusBadRequest, "page must be an integer >= 1")
		return
	}
	pageSize, err := intQueryParam(r, "page_size", defaultPageSize)
	if err != nil || pageSize < 1 || pageSize > maxPageSize {
		writeError(w, http.StatusBadRequest, "page_size must be an integer between 1 and 100")
		return
	}

	tables, pagination, err := s.connector.ListTables(r.Context(), page, pageSize)
	if err != nil {
		s.writeDBError(w, r, err)
		return
	}
	if tables == nil {
		tables = []types.TableMetadata{}
	}

	writeJSON(w, http.StatusOK, tablesResponse{Tables: tables, Pagination: pagination})
}

func (s *Server) handleGetTableSchema(w http.ResponseWriter, r *http.Request) {
	tableName := chi.URLParam(r, "tableName")

	schema, err := s.connector.GetTableSchema(r.Context(), tableName)
	if err != nil {
		s.writeDBError(w, r, err)
		return
	}
	if schema.Columns == nil {
		schema.Columns = []types.ColumnMetadata{}
	}
	if schema.Indexes == nil {
		schema.Indexes = []types.IndexMetadata{}
	}

	writeJSON(w, http.StatusOK, schema)
}

func (s *Server) handleExecuteQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if verdict := s.validator.Validate(req.Query); !verdict.Allowed {
		writeError(w, http.StatusBadRequest, verdict.Reason)
		return
	}

	result, err := s.connector.Execute(r.Context(), req.Query)
	if err != nil {
		s.writeDBError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// writeDBError maps core errors to statuses: not-found is 404,
// exhaustion and timeouts are a generic 503 without internal detail,
// execution errors are 400 with the sanitized message only.
func (s *Server) writeDBError(w http.ResponseWriter, r *http.Request, err error) {
	var notFound *dberrors.TableNotFoundError
	if errors.As(err, &notFound) {
		writeError(w, http.StatusNotFound, notFound.Error())
		return
	}

	if errors.Is(err, dberrors.ErrPoolExhausted) || errors.Is(err, dberrors.ErrQueryTimeout) {
		s.logger.Warn("request shed", "path", r.URL.Path, "error", err)
		writeError(w, http.StatusServiceUnavailable, "service unavailable, retry later")
		return
	}

	var execErr *dberrors.ExecutionError
	if errors.As(err, &execErr) {
		writeError(w, http.StatusBadRequest, execErr.Error())
		return
	}

	s.logger.Error("request failed", "path", r.URL.Path, "error", err)
	writeError(w, http.StatusInternalServerError, "internal server error")
}

func intQueryParam(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, errorResponse{Detail: detail})
}
