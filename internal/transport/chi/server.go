// Package chi is the HTTP boundary: upload, job polling, query, document
// delete, health and metrics, hand-routed on the chi router.
package chi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/coursemind/coursemind/internal/domain"
	ingestuc "github.com/coursemind/coursemind/internal/usecase/ingest"
	retrievaluc "github.com/coursemind/coursemind/internal/usecase/retrieval"
)

const previewLen = 100

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// Server holds the HTTP handlers over the ingest and retrieval services.
type Server struct {
	ingest        *ingestuc.Service
	retrieval     *retrievaluc.Service
	health        HealthChecker
	maxUploadMB   int
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// HealthChecker reports backend readiness per dependency.
type HealthChecker interface {
	Check(r *http.Request) (status string, checks map[string]string, healthy bool)
}

// NewServer creates the HTTP API server.
func NewServer(
	ingest *ingestuc.Service,
	retrieval *retrievaluc.Service,
	health HealthChecker,
	maxUploadMB int,
	logger *zap.Logger,
) *Server {
	if maxUploadMB <= 0 {
		maxUploadMB = 32
	}
	s := &Server{
		ingest:      ingest,
		retrieval:   retrieval,
		health:      health,
		maxUploadMB: maxUploadMB,
		logger:      logger,
	}
	s.errorHandlers = []errorHandler{
		sentinelHandler(domain.ErrJobNotFound, http.StatusNotFound, "job_not_found"),
		sentinelHandler(domain.ErrDocumentNotFound, http.StatusNotFound, "document_not_found"),
		sentinelHandler(domain.ErrUnsupportedFormat, http.StatusBadRequest, "unsupported_format"),
		sentinelHandler(domain.ErrParseFailure, http.StatusUnprocessableEntity, "parse_failure"),
		sentinelHandler(domain.ErrRateLimited, http.StatusTooManyRequests, "rate_limited"),
		sentinelHandler(domain.ErrProviderUnavailable, http.StatusBadGateway, "provider_unavailable"),
		sentinelHandler(domain.ErrEmbeddingProvider, http.StatusBadGateway, "embedding_provider_error"),
		sentinelHandler(domain.ErrCompletionProvider, http.StatusBadGateway, "completion_provider_error"),
		sentinelHandler(domain.ErrRetrievalTimeout, http.StatusGatewayTimeout, "retrieval_timeout"),
		sentinelHandler(domain.ErrIndexCorruption, http.StatusInternalServerError, "index_corruption"),
		sentinelHandler(domain.ErrSynthesis, http.StatusBadGateway, "synthesis_failed"),
	}
	return s
}

// Routes mounts all handlers.
func (s *Server) Routes(r chi.Router) {
	r.Post("/courses/{courseID}/documents", s.UploadDocument)
	r.Get("/ingestions/{jobID}", s.GetIngestion)
	r.Post("/query", s.Query)
	r.Delete("/documents/{documentID}", s.DeleteDocument)
	r.Get("/healthz", s.HealthCheck)
	r.Get("/metrics", s.Metrics)
}

// UploadDocument handles POST /courses/{courseID}/documents. Accepts one
// multipart "file" field and returns 202 with the created job.
func (s *Server) UploadDocument(w http.ResponseWriter, r *http.Request) {
	courseID, err := strconv.ParseInt(chi.URLParam(r, "courseID"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid course id")
		return
	}

	maxBytes := int64(s.maxUploadMB) << 20
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	if err := r.ParseMultipartForm(maxBytes); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid multipart body: "+err.Error())
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "missing file field")
		return
	}
	defer func() { _ = file.Close() }()

	format, ok := domain.FormatFromFilename(header.Filename)
	if !ok {
		s.handleDomainError(w, fmt.Errorf("%q: %w", header.Filename, domain.ErrUnsupportedFormat))
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "failed to read upload: "+err.Error())
		return
	}

	doc := domain.DocumentRef{
		ID:       uuid.NewString(),
		CourseID: courseID,
		Name:     header.Filename,
		Format:   format,
		Size:     int64(len(data)),
	}

	job, err := s.ingest.Enqueue(r.Context(), doc, data)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	w.Header().Set("Location", fmt.Sprintf("/ingestions/%s", job.ID))
	writeJSON(w, http.StatusAccepted, map[string]any{
		"job_id":      job.ID,
		"document_id": doc.ID,
		"status":      job.Status,
	})
}

// GetIngestion handles GET /ingestions/{jobID}.
func (s *Server) GetIngestion(w http.ResponseWriter, r *http.Request) {
	job, err := s.ingest.Job(r.Context(), chi.URLParam(r, "jobID"))
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// DeleteDocument handles DELETE /documents/{documentID}. Cancels any
// in-flight ingestion and removes the document's index entries.
func (s *Server) DeleteDocument(w http.ResponseWriter, r *http.Request) {
	if err := s.ingest.DeleteDocument(r.Context(), chi.URLParam(r, "documentID")); err != nil {
		s.handleDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type queryRequest struct {
	Query         string `json:"query"`
	CourseFilter  *int64 `json:"course_filter,omitempty"`
	ChapterFilter string `json:"chapter_filter,omitempty"`
	TopK          int    `json:"top_k,omitempty"`
	UseHybrid     bool   `json:"use_hybrid,omitempty"`
	WithCitations bool   `json:"with_citations,omitempty"`
}

type querySource struct {
	Chapter        string  `json:"chapter,omitempty"`
	Relevance      float64 `json:"relevance"`
	ContentPreview string  `json:"content_preview,omitempty"`
}

type queryCitation struct {
	Chapter    string `json:"chapter"`
	DocumentID string `json:"document_id"`
	Page       int    `json:"page"`
}

type queryResponse struct {
	Query             string          `json:"query"`
	Answer            string          `json:"answer"`
	Sources           []querySource   `json:"sources"`
	SourceCount       int             `json:"source_count"`
	Citations         []queryCitation `json:"citations,omitempty"`
	FollowUpQuestions []string        `json:"follow_up_questions,omitempty"`
	Error             string          `json:"error,omitempty"`
}

// Query handles POST /query.
func (s *Server) Query(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid request body: "+err.Error())
		return
	}
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, "validation_failed", "query is required")
		return
	}

	answer, err := s.retrieval.Answer(r.Context(), retrievaluc.Params{
		Query:         req.Query,
		CourseID:      req.CourseFilter,
		Chapter:       req.ChapterFilter,
		TopK:          req.TopK,
		UseHybrid:     req.UseHybrid,
		WithCitations: req.WithCitations,
	})
	if err != nil {
		// Deadline before any candidates: the query shape still applies,
		// with an empty answer and the error field populated.
		if errors.Is(err, domain.ErrRetrievalTimeout) {
			writeJSON(w, http.StatusGatewayTimeout, queryResponse{
				Query:   req.Query,
				Sources: []querySource{},
				Error:   safeDomainMessage(err),
			})
			return
		}
		s.handleDomainError(w, err)
		return
	}

	resp := queryResponse{
		Query:             answer.Query,
		Answer:            answer.Text,
		Sources:           make([]querySource, len(answer.Sources)),
		SourceCount:       len(answer.Sources),
		FollowUpQuestions: answer.FollowUps,
	}
	for i, src := range answer.Sources {
		resp.Sources[i] = querySource{
			Chapter:        src.Chunk.ChapterTitle,
			Relevance:      src.Score,
			ContentPreview: preview(src.Chunk.Text),
		}
	}
	for _, c := range answer.Citations {
		resp.Citations = append(resp.Citations, queryCitation{
			Chapter:    c.Chapter,
			DocumentID: c.DocumentID,
			Page:       c.Page,
		})
	}
	if answer.Degraded {
		resp.Error = "answer synthesis unavailable, returning raw excerpts"
	}

	writeJSON(w, http.StatusOK, resp)
}

// HealthCheck handles GET /healthz.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	status, checks, healthy := s.health.Check(r)

	httpStatus := http.StatusOK
	if !healthy {
		httpStatus = http.StatusServiceUnavailable
	}
	writeJSON(w, httpStatus, map[string]any{
		"status": status,
		"checks": checks,
	})
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

// preview truncates on a rune boundary so multi-byte text never tears.
func preview(text string) string {
	if len(text) <= previewLen {
		return text
	}
	cut := previewLen
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut] + "..."
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{
		"code":    code,
		"message": message,
	})
}

// safeDomainMessage returns a sentinel error message for the client without
// exposing internals.
func safeDomainMessage(err error) string {
	sentinels := []error{
		domain.ErrJobNotFound,
		domain.ErrDocumentNotFound,
		domain.ErrUnsupportedFormat,
		domain.ErrParseFailure,
		domain.ErrRateLimited,
		domain.ErrProviderUnavailable,
		domain.ErrEmbeddingProvider,
		domain.ErrCompletionProvider,
		domain.ErrRetrievalTimeout,
		domain.ErrIndexCorruption,
		domain.ErrSynthesis,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code string) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

func (s *Server) handleDomainError(w http.ResponseWriter, err error) {
	s.logger.Warn("domain error", zap.Error(err))
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	s.logger.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal_error", "internal error")
}
