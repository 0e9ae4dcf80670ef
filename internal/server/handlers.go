package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	log "github.com/sirupsen/logrus"

	"mhassist/internal/assistant"
	"mhassist/internal/domain"
	"mhassist/internal/llm"
	"mhassist/internal/prompts"
	"mhassist/internal/service"
)

type chatRequest struct {
	SessionID string `json:"session_id"`
	Category  string `json:"category"`
	Message   string `json:"message"`
}

type searchRequest struct {
	Query     string   `json:"query"`
	K         int      `json:"k"`
	Category  string   `json:"category"`
	Threshold *float32 `json:"threshold,omitempty"`
}

type searchResult struct {
	Content  string               `json:"content"`
	Source   string               `json:"source"`
	Distance float32              `json:"distance"`
	Metadata domain.ChunkMetadata `json:"metadata"`
}

type searchResponse struct {
	State   string         `json:"state"`
	Results []searchResult `json:"results"`
}

type documentRequest struct {
	Text     string            `json:"text"`
	Title    string            `json:"title"`
	Category string            `json:"category"`
	Extra    map[string]string `json:"extra"`
}

type category struct {
	Name      string             `json:"name"`
	Examples  []string           `json:"examples"`
	Resources []prompts.Resource `json:"resources"`
}

type errorResponse struct {
	Error string `json:"error"`
}

var errBadRequest = errors.New("bad request")

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleCategories(w http.ResponseWriter, _ *http.Request) {
	out := make([]category, 0, len(prompts.Categories))
	for _, c := range prompts.Categories {
		out = append(out, category{Name: c, Examples: prompts.ExamplePrompts(c), Resources: prompts.Resources(c)})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleModels(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, llm.Models)
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.assistant.Stats())
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if !decode(w, r, &req) {
		return
	}
	reply, err := s.assistant.Reply(r.Context(), req.SessionID, req.Category, req.Message)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, reply)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if !decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeError(w, errors.Join(errBadRequest, errors.New("query is empty")))
		return
	}
	var (
		results []domain.QueryResult
		err     error
	)
	if req.Threshold != nil {
		results, err = s.assistant.SearchWithin(req.Query, req.K, req.Category, *req.Threshold)
	} else {
		results, err = s.assistant.Search(req.Query, req.K, req.Category)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	resp := searchResponse{State: s.assistant.Stats().State, Results: make([]searchResult, 0, len(results))}
	for _, res := range results {
		resp.Results = append(resp.Results, searchResult{
			Content:  res.Content,
			Source:   res.Source(),
			Distance: res.Distance,
			Metadata: res.Metadata,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleAddDocument(w http.ResponseWriter, r *http.Request) {
	var req documentRequest
	if !decode(w, r, &req) {
		return
	}
	stats, err := s.assistant.AddText(req.Text, service.DocumentMeta{
		Title:    req.Title,
		Category: req.Category,
		Extra:    req.Extra,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, stats)
}

func (s *Server) handleReindex(w http.ResponseWriter, _ *http.Request) {
	stats, err := s.assistant.Reindex()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	msgs, err := s.assistant.History(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	if msgs == nil {
		msgs = []llm.Message{}
	}
	writeJSON(w, http.StatusOK, msgs)
}

func (s *Server) handleEndSession(w http.ResponseWriter, r *http.Request) {
	if err := s.assistant.EndSession(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, errors.Join(errBadRequest, err))
		return false
	}
	return true
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, errBadRequest), errors.Is(err, assistant.ErrEmptyMessage):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrCorpus):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrDimensionMismatch):
		return http.StatusConflict
	case errors.Is(err, domain.ErrConfiguration):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		log.WithError(err).Error("request failed")
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.WithError(err).Warn("writing response failed")
	}
}
