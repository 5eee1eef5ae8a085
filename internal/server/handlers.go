package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/hyperjump/mitsuke/internal/embedding"
	"github.com/hyperjump/mitsuke/internal/models"
	"github.com/hyperjump/mitsuke/internal/search"
	"github.com/hyperjump/mitsuke/internal/store"
)

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var query models.SearchQuery
	if err := json.NewDecoder(r.Body).Decode(&query); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.logger.Debug("search request", zap.String("query", query.Text), zap.Int("max_results", query.MaxResults))
	response, err := s.engine.Search(r.Context(), &query)
	if err != nil {
		s.respondSearchError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, response)
}

type tagSearchRequest struct {
	Tags     []string `json:"tags"`
	MatchAll bool     `json:"match_all,omitempty"`
	Limit    int      `json:"limit,omitempty"`
}

func (s *Server) handleSearchByTags(w http.ResponseWriter, r *http.Request) {
	var req tagSearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	response, err := s.engine.SearchByTags(r.Context(), req.Tags, req.MatchAll, req.Limit)
	if err != nil {
		s.respondSearchError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, response)
}

// handleSimilar takes the reference image id as a query parameter; ids
// are file paths and do not survive as URL path segments.
func (s *Server) handleSimilar(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	limit := queryInt(r, "limit", 0)
	response, err := s.engine.FindSimilarTo(r.Context(), id, limit)
	if err != nil {
		s.respondSearchError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, response)
}

func (s *Server) handleKeyword(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	limit := queryInt(r, "limit", 0)
	hits, err := s.engine.KeywordSearch(r.Context(), q, limit)
	if err != nil {
		s.respondSearchError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"hits": hits, "count": len(hits)})
}

func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	readiness := s.engine.ValidateReadiness(r.Context())
	status := http.StatusOK
	if !readiness.Ready {
		status = http.StatusServiceUnavailable
	}
	s.respondJSON(w, status, readiness)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, s.engine.Stats())
}

func (s *Server) handleStatsReset(w http.ResponseWriter, r *http.Request) {
	s.engine.ResetStats()
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

func (s *Server) handleCacheClear(w http.ResponseWriter, r *http.Request) {
	s.engine.ClearCache()
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

func (s *Server) handleIndexSync(w http.ResponseWriter, r *http.Request) {
	s.logger.Debug("index sync request")
	result, err := s.indexer.Sync(r.Context())
	if err != nil {
		s.logger.Error("sync failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	// The engine keeps serving its cached snapshot otherwise.
	s.engine.ClearCache()
	s.respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleCleanup(w http.ResponseWriter, r *http.Request) {
	removed, err := s.indexer.Cleanup(r.Context())
	if err != nil {
		s.logger.Error("cleanup failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if removed > 0 {
		s.engine.ClearCache()
	}
	s.respondJSON(w, http.StatusOK, map[string]int{"removed": removed})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		s.respondError(w, http.StatusNotImplemented, "query history not enabled")
		return
	}
	limit := queryInt(r, "limit", 50)
	entries, err := s.history.Recent(r.Context(), limit)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"entries": entries, "count": len(entries)})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	readiness := s.engine.ValidateReadiness(r.Context())
	resp := map[string]interface{}{
		"ready":      readiness.Ready,
		"images":     readiness.RecordCount,
		"dimensions": readiness.Dimensions,
		"stats":      s.engine.Stats(),
	}
	if len(readiness.Issues) > 0 {
		resp["issues"] = readiness.Issues
	}
	if s.history != nil {
		if summary, err := s.history.Aggregate(r.Context()); err == nil {
			resp["history"] = summary
		}
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// respondSearchError maps engine errors onto HTTP statuses.
func (s *Server) respondSearchError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, models.ErrInvalidInput):
		s.respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, search.ErrNotFound):
		s.respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, embedding.ErrUnavailable),
		errors.Is(err, store.ErrCorrupt),
		errors.Is(err, store.ErrSchemaVersion):
		s.logger.Error("search dependency failed", zap.Error(err))
		s.respondError(w, http.StatusServiceUnavailable, err.Error())
	default:
		s.logger.Error("search failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
	}
}

func queryInt(r *http.Request, key string, def int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
