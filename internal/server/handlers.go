package server

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/jonathan/keyword-collector/internal/pipeline"
	"github.com/jonathan/keyword-collector/internal/schemas"
	"github.com/jonathan/keyword-collector/internal/server/middleware"
	"github.com/jonathan/keyword-collector/internal/types"
	schemafiles "github.com/jonathan/keyword-collector/schemas"
)

// maxRequestBytes bounds a collection request body.
const maxRequestBytes = 64 << 10

// Run list paging.
const (
	defaultRunLimit = 50
	maxRunLimit     = 500
)

// collectOptions are the request fields that tune a run rather than describe the product.
type collectOptions struct {
	MaxKeywords int `json:"max_keywords"`
}

// ArtifactListResponse represents the response for GET /v1/collections
type ArtifactListResponse struct {
	Artifacts any `json:"artifacts"`
	Count     int `json:"count"`
}

// decodeCollectRequest reads, schema-checks and validates a collection request body.
func decodeCollectRequest(w http.ResponseWriter, r *http.Request) (types.CollectionRequest, collectOptions, error) {
	var req types.CollectionRequest
	var opts collectOptions

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	if err != nil {
		return req, opts, &ErrValidation{Field: "body", Message: err.Error()}
	}
	if !json.Valid(body) {
		return req, opts, &ErrValidation{Field: "body", Message: "invalid JSON"}
	}
	if err := schemas.ValidateDocument(schemafiles.CollectionRequest, body); err != nil {
		return req, opts, err
	}
	if err := json.Unmarshal(body, &req); err != nil {
		return req, opts, &ErrValidation{Field: "body", Message: err.Error()}
	}
	if err := json.Unmarshal(body, &opts); err != nil {
		return req, opts, &ErrValidation{Field: "max_keywords", Message: err.Error()}
	}
	if err := req.Validate(); err != nil {
		return req, opts, err
	}
	if req.IsEmpty() {
		return req, opts, &ErrValidation{Field: "request", Message: "category, purposes or additional_params is required"}
	}
	return req, opts, nil
}

// handleCollect runs a collection synchronously and returns its result.
func (s *Server) handleCollect(w http.ResponseWriter, r *http.Request) {
	req, opts, err := decodeCollectRequest(w, r)
	if err != nil {
		s.errorFrom(w, err)
		return
	}

	release, err := s.acquire(r.Context())
	if err != nil {
		s.errorFrom(w, err)
		return
	}
	defer release()

	subject, _ := middleware.GetSubject(r)
	s.log.Info().Str("subject", subject).Str("category", req.Category).Msg("collection requested")

	result := s.collector.Collect(r.Context(), req, pipeline.WithMaxKeywords(opts.MaxKeywords))

	status := http.StatusOK
	if !result.Succeeded() {
		status = http.StatusUnprocessableEntity
	}
	s.jsonResponse(w, status, result)
}

// handleCollectStream runs a collection and streams stage progress via SSE.
func (s *Server) handleCollectStream(w http.ResponseWriter, r *http.Request) {
	req, opts, err := decodeCollectRequest(w, r)
	if err != nil {
		s.errorFrom(w, err)
		return
	}

	release, err := s.acquire(r.Context())
	if err != nil {
		s.errorFrom(w, err)
		return
	}
	defer release()

	sse, err := NewSSEWriter(w)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}

	result := s.collector.Collect(r.Context(), req,
		pipeline.WithMaxKeywords(opts.MaxKeywords),
		pipeline.WithProgress(func(event pipeline.ProgressEvent) {
			if err := sse.WriteEvent("step", event); err != nil {
				s.log.Debug().Err(err).Msg("error writing SSE event")
			}
		}))

	if err := sse.WriteEvent("result", result); err != nil {
		s.log.Debug().Err(err).Msg("error writing SSE result")
	}
	if !result.Succeeded() {
		sse.WriteError(result.Message)
	}
	sse.WriteComplete(result.RunID, result.Status)
}

// handleListArtifacts lists stored keyword artifacts.
func (s *Server) handleListArtifacts(w http.ResponseWriter, _ *http.Request) {
	infos, err := s.artifacts.List()
	if err != nil {
		s.errorFrom(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, ArtifactListResponse{Artifacts: infos, Count: len(infos)})
}

// handleGetArtifact returns one stored artifact by file name.
func (s *Server) handleGetArtifact(w http.ResponseWriter, r *http.Request) {
	artifact, err := s.artifacts.Load(r.PathValue("name"))
	if err != nil {
		s.errorFrom(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, artifact)
}

// handleListRuns returns recent runs, optionally filtered by ?status=.
func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	if s.runs == nil {
		s.errorFrom(w, ErrRunLogDisabled)
		return
	}

	limit := defaultRunLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			s.errorFrom(w, &ErrValidation{Field: "limit", Message: "must be a positive integer"})
			return
		}
		limit = min(n, maxRunLimit)
	}

	status := r.URL.Query().Get("status")
	if status != "" && status != types.StatusSuccess && status != types.StatusError {
		s.errorFrom(w, &ErrValidation{Field: "status", Message: "must be success or error"})
		return
	}

	runs, err := s.runs.ListRuns(r.Context(), status, limit)
	if err != nil {
		s.errorFrom(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{"runs": runs, "count": len(runs)})
}

// handleGetRun returns one run log entry.
func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	if s.runs == nil {
		s.errorFrom(w, ErrRunLogDisabled)
		return
	}

	runID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		s.errorFrom(w, &ErrValidation{Field: "id", Message: "invalid run ID format"})
		return
	}

	run, err := s.runs.GetRun(r.Context(), runID)
	if err != nil {
		s.errorFrom(w, err)
		return
	}
	if run == nil {
		s.errorResponse(w, http.StatusNotFound, "run not found")
		return
	}
	s.jsonResponse(w, http.StatusOK, run)
}
