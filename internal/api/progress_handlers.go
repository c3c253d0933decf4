package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/registry-crawler/internal/progress/sinks"
)

const (
	defaultCategoryLimit = 50
	maxCategoryLimit     = 500
)

// StatsProvider exposes per-category progress tallies.
type StatsProvider interface {
	Snapshot() []sinks.CategoryStats
	Category(id string) (sinks.CategoryStats, bool)
}

// ProgressHandler exposes read-only category progress endpoints.
type ProgressHandler struct {
	stats  StatsProvider
	logger *zap.Logger
}

// NewProgressHandler wires the stats provider and logger.
func NewProgressHandler(stats StatsProvider, logger *zap.Logger) *ProgressHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProgressHandler{stats: stats, logger: logger}
}

// ListCategories handles GET /v1/categories?running=&limit=&offset=. It
// returns {"categories": [...], "total": n} sorted by category, 400 for
// invalid filters, or 503 when no stats are wired.
func (h *ProgressHandler) ListCategories(w http.ResponseWriter, r *http.Request) {
	if h.stats == nil {
		writeError(w, http.StatusServiceUnavailable, "progress stats unavailable")
		return
	}
	limit, offset, err := parseLimitOffset(r, defaultCategoryLimit, maxCategoryLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	running, err := parseRunning(r.URL.Query().Get("running"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	all := h.stats.Snapshot()
	filtered := make([]sinks.CategoryStats, 0, len(all))
	for _, st := range all {
		if running != nil && st.Running != *running {
			continue
		}
		filtered = append(filtered, st)
	}
	total := len(filtered)
	page := filtered[min(offset, total):min(offset+limit, total)]
	writeJSON(w, http.StatusOK, map[string]any{
		"categories": page,
		"total":      total,
	})
}

// GetCategory handles GET /v1/categories/{category_id}. It returns
// {"category": {...}} or 404 when no event has been seen for the category.
func (h *ProgressHandler) GetCategory(w http.ResponseWriter, r *http.Request) {
	if h.stats == nil {
		writeError(w, http.StatusServiceUnavailable, "progress stats unavailable")
		return
	}
	id := strings.TrimSpace(chi.URLParam(r, "category_id"))
	if id == "" {
		writeError(w, http.StatusBadRequest, "category_id is required")
		return
	}
	st, ok := h.stats.Category(id)
	if !ok {
		h.logger.Debug("category not found", zap.String("category", id))
		writeError(w, http.StatusNotFound, "category not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"category": st})
}

func parseLimitOffset(r *http.Request, def, maxLimit int) (int, int, error) {
	q := r.URL.Query()
	limit := def
	if limStr := q.Get("limit"); limStr != "" {
		val, err := strconv.Atoi(limStr)
		if err != nil || val <= 0 {
			return 0, 0, errors.New("invalid limit")
		}
		if val > maxLimit {
			val = maxLimit
		}
		limit = val
	}
	offset := 0
	if offStr := q.Get("offset"); offStr != "" {
		val, err := strconv.Atoi(offStr)
		if err != nil || val < 0 {
			return 0, 0, errors.New("invalid offset")
		}
		offset = val
	}
	return limit, offset, nil
}

func parseRunning(input string) (*bool, error) {
	if input == "" {
		return nil, nil
	}
	val, err := strconv.ParseBool(input)
	if err != nil {
		return nil, errors.New("invalid running filter")
	}
	return &val, nil
}
