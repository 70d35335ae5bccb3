package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/rxbridge/rxmatch/internal/match"
	"github.com/rxbridge/rxmatch/internal/models"
	"github.com/rxbridge/rxmatch/internal/normalize"
	"github.com/rxbridge/rxmatch/internal/resolve"
)

const (
	defaultMatchLimit = 10
	maxMatchLimit     = 100
)

type resolveRequest struct {
	Text       string                       `json:"text"`
	Attributes *models.StructuredAttributes `json:"attributes,omitempty"`
}

type matchRequest struct {
	Text  string `json:"text"`
	Route string `json:"route,omitempty"`
	Limit int    `json:"limit,omitempty"`
}

type matchCandidate struct {
	ConceptID string             `json:"concept_id"`
	Name      string             `json:"name"`
	Type      models.ConceptType `json:"type"`
	Score     float64            `json:"score"`
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	var req resolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.logger.Debug("resolve request", zap.String("text", req.Text))

	res, err := s.pipeline.Resolve(r.Context(), req.Text, req.Attributes)
	if err != nil {
		switch {
		case errors.Is(err, resolve.ErrEmptyQuery):
			s.respondError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, resolve.ErrNoCatalog):
			s.respondError(w, http.StatusServiceUnavailable, err.Error())
		default:
			s.logger.Error("resolve failed", zap.Error(err))
			s.respondError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	if s.store != nil {
		if err := s.store.SaveResolution(r.Context(), res); err != nil {
			// The audit trail is best effort; the resolution still stands.
			s.logger.Warn("failed to persist resolution", zap.String("id", res.ID), zap.Error(err))
		}
	}
	s.respondJSON(w, http.StatusOK, res)
}

func (s *Server) handleMatch(w http.ResponseWriter, r *http.Request) {
	var req matchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Text == "" {
		s.respondError(w, http.StatusBadRequest, "text is required")
		return
	}
	limit := req.Limit
	if limit <= 0 {
		limit = defaultMatchLimit
	}
	if limit > maxMatchLimit {
		limit = maxMatchLimit
	}

	idx := s.provider.Get()
	if idx == nil || idx.Len() == 0 {
		s.respondError(w, http.StatusServiceUnavailable, "catalog not loaded")
		return
	}

	q := normalize.Normalize(req.Text)
	drugWords := normalize.DrugWords(q.Tokens)
	routeHint := models.ParseRoute(req.Route)
	if routeHint == models.RouteUnknown {
		routeHint = normalize.DetectRoute(q.Tokens)
	}

	scorer := match.NewScorer(idx, s.matchCfg)
	results := scorer.ScoreCandidates(r.Context(), q, idx.Recall(q), routeHint, drugWords, 4)
	ranker := match.NewRanker(idx)
	ranker.Rank(results)
	if segs := normalize.BracketSegments(req.Text); len(segs) > 0 {
		ranker.BrandResort(results, segs[0])
	}
	if len(results) > limit {
		results = results[:limit]
	}

	candidates := make([]matchCandidate, 0, len(results))
	for _, res := range results {
		c := idx.Concept(res.ConceptID)
		if c == nil {
			continue
		}
		candidates = append(candidates, matchCandidate{
			ConceptID: c.ID,
			Name:      c.Name,
			Type:      c.Type,
			Score:     match.Round3(res.Score),
		})
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"query":      req.Text,
		"count":      len(candidates),
		"candidates": candidates,
	})
}

func (s *Server) handleGetConcept(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	idx := s.provider.Get()
	if idx == nil {
		s.respondError(w, http.StatusServiceUnavailable, "catalog not loaded")
		return
	}
	c := idx.Concept(id)
	if c == nil {
		s.respondError(w, http.StatusNotFound, "concept not found")
		return
	}
	s.respondJSON(w, http.StatusOK, c)
}

func (s *Server) handleGetResolution(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		s.respondError(w, http.StatusNotImplemented, "audit store not enabled")
		return
	}
	id := chi.URLParam(r, "id")
	res, err := s.store.GetResolution(r.Context(), id)
	if err != nil {
		s.respondError(w, http.StatusNotFound, "resolution not found")
		return
	}
	s.respondJSON(w, http.StatusOK, res)
}

func (s *Server) handleListResolutions(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		s.respondError(w, http.StatusNotImplemented, "audit store not enabled")
		return
	}
	offset := queryInt(r, "offset", 0)
	limit := queryInt(r, "limit", 20)
	if limit > maxMatchLimit {
		limit = maxMatchLimit
	}
	list, err := s.store.ListResolutions(r.Context(), offset, limit)
	if err != nil {
		s.logger.Error("list resolutions failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"count":       len(list),
		"resolutions": list,
	})
}

func (s *Server) handleCatalogReload(w http.ResponseWriter, r *http.Request) {
	if s.reload == nil {
		s.respondError(w, http.StatusNotImplemented, "reload not enabled")
		return
	}
	s.logger.Debug("catalog reload request")
	if err := s.reload(r.Context()); err != nil {
		s.logger.Error("catalog reload failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	idx := s.provider.Get()
	concepts := 0
	if idx != nil {
		concepts = idx.Len()
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":   "reloaded",
		"concepts": concepts,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	resp := map[string]interface{}{}

	concepts := 0
	if idx := s.provider.Get(); idx != nil {
		concepts = idx.Len()
	}
	resp["concepts"] = concepts

	if s.store != nil {
		count, err := s.store.CountResolutions(ctx)
		if err != nil {
			s.logger.Error("status: count resolutions failed", zap.Error(err))
			s.respondError(w, http.StatusInternalServerError, err.Error())
			return
		}
		resp["resolutions"] = count

		snap, err := s.store.LatestSnapshot(ctx)
		if err != nil {
			s.logger.Error("status: latest snapshot failed", zap.Error(err))
			s.respondError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if snap != nil {
			resp["last_feed_load"] = snap
		}
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func queryInt(r *http.Request, key string, def int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return def
	}
	return v
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
