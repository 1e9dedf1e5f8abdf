package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/crawl-admission/internal/store"
)

const (
	defaultHostLimit = 100
	maxHostLimit     = 1000
	statsTimeout     = 3 * time.Second
)

// StatsHandler exposes read-only per-host admission counters.
type StatsHandler struct {
	repo    store.StatsRepository
	timeout time.Duration
	logger  *zap.Logger
}

// NewStatsHandler wires the repository and logger.
func NewStatsHandler(repo store.StatsRepository, logger *zap.Logger) *StatsHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StatsHandler{
		repo:    repo,
		timeout: statsTimeout,
		logger:  logger,
	}
}

// ListHosts handles GET /v1/hosts?limit=&offset=. It returns {"hosts": [...]}
// ordered by most recent update, 400 for invalid paging, 503 when no
// repository is configured, or 500 if the repository call fails.
func (h *StatsHandler) ListHosts(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil {
		writeError(w, http.StatusServiceUnavailable, "stats repository unavailable")
		return
	}
	limit, offset, err := parseLimitOffset(r, defaultHostLimit, maxHostLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	hosts, err := h.repo.ListHosts(ctx, limit, offset)
	if err != nil {
		h.logger.Error("list hosts failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list hosts")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"hosts": toHostDTOs(hosts)})
}

// GetHost handles GET /v1/hosts/{host}. It returns {"host": {...}}, 404 when
// the repository reports store.ErrNotFound, 503 without a repository, or 500.
func (h *StatsHandler) GetHost(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil {
		writeError(w, http.StatusServiceUnavailable, "stats repository unavailable")
		return
	}
	host := strings.ToLower(strings.TrimSpace(chi.URLParam(r, "host")))
	if host == "" {
		writeError(w, http.StatusBadRequest, "host is required")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	stats, err := h.repo.GetHost(ctx, host)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "host not found")
			return
		}
		h.logger.Error("get host failed", zap.String("host", host), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load host")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"host": toHostDTO(stats)})
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

func toHostDTOs(in []store.HostStats) []hostDTO {
	out := make([]hostDTO, 0, len(in))
	for _, s := range in {
		out = append(out, toHostDTO(s))
	}
	return out
}

func toHostDTO(s store.HostStats) hostDTO {
	return hostDTO{
		Host:       s.Host,
		LastUpdate: s.LastUpdate,
		Added:      s.Added,
		Duplicate:  s.Duplicate,
		Denied:     s.Denied,
		Errored:    s.Errored,
		Fetched:    s.Fetched,
	}
}

type hostDTO struct {
	Host       string    `json:"host"`
	LastUpdate time.Time `json:"last_update"`
	Added      int64     `json:"added"`
	Duplicate  int64     `json:"duplicate"`
	Denied     int64     `json:"denied"`
	Errored    int64     `json:"errored"`
	Fetched    int64     `json:"fetched"`
}
