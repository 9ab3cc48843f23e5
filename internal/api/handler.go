// Package api exposes the evolution engine, memory graph and sessions over HTTP.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/rcliao/pattern-memory/internal/achievement"
	"github.com/rcliao/pattern-memory/internal/evolve"
	"github.com/rcliao/pattern-memory/internal/graph"
	"github.com/rcliao/pattern-memory/internal/model"
	"github.com/rcliao/pattern-memory/internal/orchestrator"
	"github.com/rcliao/pattern-memory/internal/store"
)

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	orch        *orchestrator.Orchestrator
	engine      *evolve.Engine
	graph       *graph.Graph
	evaluator   *achievement.Evaluator
	store       store.AchievementStore
	corsOrigins []string
	logger      *zap.Logger
}

// NewHandler creates a new API handler.
func NewHandler(
	orch *orchestrator.Orchestrator,
	engine *evolve.Engine,
	g *graph.Graph,
	evaluator *achievement.Evaluator,
	st store.AchievementStore,
	corsOrigins []string,
	logger *zap.Logger,
) *Handler {
	if len(corsOrigins) == 0 {
		corsOrigins = []string{"*"}
	}
	return &Handler{
		orch:        orch,
		engine:      engine,
		graph:       g,
		evaluator:   evaluator,
		store:       st,
		corsOrigins: corsOrigins,
		logger:      logger,
	}
}

// Router builds the chi router with all routes.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: h.corsOrigins,
		AllowedMethods: []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/health", h.healthCheck)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Post("/evolve", h.evolvePattern)
		r.Post("/analyze", h.analyze)

		r.Post("/nodes", h.createNode)
		r.Post("/nodes/decay", h.decayNodes)
		r.Get("/graph", h.recall)

		r.Post("/sessions", h.startSession)
		r.Get("/sessions/{id}", h.getSession)
		r.Post("/sessions/{id}/cells/{index}", h.toggleCell)
		r.Post("/sessions/{id}/depth", h.advanceDepth)
		r.Post("/sessions/{id}/reset", h.resetSession)
		r.Post("/sessions/{id}/achievements/check", h.checkAchievements)
		r.Get("/sessions/{id}/achievements", h.listAchievements)

		r.Get("/achievements/rules", h.listRules)
		r.Patch("/achievements/{id}/reveal", h.revealAchievement)
	})

	return r
}

var validate = validator.New()

type evolveRequest struct {
	Pattern         []int    `json:"pattern" validate:"required,min=1,max=1024"`
	Depth           int      `json:"depth" validate:"gte=0,lte=10000"`
	RecentPatterns  []int    `json:"recentPatterns"`
	DecayFactor     *float64 `json:"decayFactor" validate:"omitempty,gte=0,lte=1"`
	EnableBranching bool     `json:"enableBranching"`
}

type evolveResponse struct {
	Pattern           model.Pattern         `json:"pattern"`
	Path              evolve.Path           `json:"path"`
	Strategy          evolve.Strategy       `json:"strategy,omitempty"`
	Branch            int                   `json:"branch"`
	Weights           model.MutationWeights `json:"weights"`
	Entropy           float64               `json:"entropy"`
	NormalizedEntropy float64               `json:"normalizedEntropy"`
	ClusterDensity    float64               `json:"clusterDensity"`
}

type patternRequest struct {
	Pattern []int `json:"pattern" validate:"required,min=1,max=1024"`
}

type nodeRequest struct {
	Pattern   []int  `json:"pattern" validate:"required,min=1,max=1024"`
	Depth     int    `json:"depth" validate:"gte=0,lte=10000"`
	SessionID string `json:"sessionId" validate:"required"`
}

func (h *Handler) healthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) evolvePattern(w http.ResponseWriter, r *http.Request) {
	var req evolveRequest
	if !h.decode(w, r, &req) {
		return
	}
	if !h.checkPattern(w, req.Pattern) {
		return
	}
	decay := 1.0
	if req.DecayFactor != nil {
		decay = *req.DecayFactor
	}

	res := h.engine.Evolve(evolve.Request{
		Pattern:         req.Pattern,
		Depth:           req.Depth,
		RecentPatterns:  req.RecentPatterns,
		DecayFactor:     decay,
		EnableBranching: req.EnableBranching,
	})
	writeJSON(w, http.StatusOK, evolveResponse{
		Pattern:           res.Pattern,
		Path:              res.Path,
		Strategy:          res.Strategy,
		Branch:            res.Branch,
		Weights:           res.Weights,
		Entropy:           res.Analysis.Entropy,
		NormalizedEntropy: res.Analysis.NormalizedEntropy,
		ClusterDensity:    res.Analysis.ClusterDensity,
	})
}

func (h *Handler) analyze(w http.ResponseWriter, r *http.Request) {
	var req patternRequest
	if !h.decode(w, r, &req) || !h.checkPattern(w, req.Pattern) {
		return
	}
	writeJSON(w, http.StatusOK, h.engine.Analyze(req.Pattern))
}

func (h *Handler) createNode(w http.ResponseWriter, r *http.Request) {
	var req nodeRequest
	if !h.decode(w, r, &req) || !h.checkPattern(w, req.Pattern) {
		return
	}
	out, err := h.graph.Record(r.Context(), req.Pattern, req.Depth, req.SessionID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	status := http.StatusCreated
	if out.Merged {
		status = http.StatusOK
	}
	writeJSON(w, status, out)
}

func (h *Handler) decayNodes(w http.ResponseWriter, r *http.Request) {
	updated, err := h.graph.DecayAllNodes(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"updated": updated})
}

func (h *Handler) recall(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid limit"})
			return
		}
		limit = n
	}
	res, err := h.graph.Recall(r.Context(), graph.RecallParams{
		SessionID: r.URL.Query().Get("sessionId"),
		Limit:     limit,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) startSession(w http.ResponseWriter, r *http.Request) {
	snap, err := h.orch.Start(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, snap)
}

func (h *Handler) getSession(w http.ResponseWriter, r *http.Request) {
	snap, err := h.orch.Snapshot(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (h *Handler) toggleCell(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid cell index"})
		return
	}
	snap, err := h.orch.ToggleCell(r.Context(), chi.URLParam(r, "id"), index)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (h *Handler) advanceDepth(w http.ResponseWriter, r *http.Request) {
	snap, err := h.orch.AdvanceDepth(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (h *Handler) resetSession(w http.ResponseWriter, r *http.Request) {
	snap, err := h.orch.Reset(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (h *Handler) checkAchievements(w http.ResponseWriter, r *http.Request) {
	codes, err := h.evaluator.Check(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"codes": codes})
}

func (h *Handler) listAchievements(w http.ResponseWriter, r *http.Request) {
	list, err := h.store.ListAchievements(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	if list == nil {
		list = []model.Achievement{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *Handler) listRules(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, achievement.Rules())
}

func (h *Handler) revealAchievement(w http.ResponseWriter, r *http.Request) {
	a, err := h.store.RevealAchievement(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// decode reads and validates a JSON body, writing 400 on failure.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": fmt.Sprintf("decode body: %v", err)})
		return false
	}
	if err := validate.Struct(v); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return false
	}
	return true
}

func (h *Handler) checkPattern(w http.ResponseWriter, p []int) bool {
	if err := model.ValidatePattern(p, 0, h.engine.Options().Symbols); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return false
	}
	return true
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, orchestrator.ErrSessionNotFound), errors.Is(err, store.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, orchestrator.ErrInvalidCell), errors.Is(err, graph.ErrEmptyPattern):
		status = http.StatusBadRequest
	case errors.Is(err, orchestrator.ErrSessionCompleted):
		status = http.StatusConflict
	default:
		h.logger.Error("request failed", zap.Error(err))
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
