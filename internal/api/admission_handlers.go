package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/crawl-admission/internal/crawler"
)

const (
	maxDiscoveryBatch = 1000
	enqueueTimeout    = 5 * time.Second
)

type admissionRequest struct {
	URL    string             `json:"url"`
	Origin *crawler.QueueItem `json:"origin,omitempty"`
	// OriginURL names an already queued item to resolve relative links against.
	OriginURL string `json:"origin_url,omitempty"`
}

type discoveryRequest struct {
	URLs      []string           `json:"urls"`
	Origin    *crawler.QueueItem `json:"origin,omitempty"`
	OriginURL string             `json:"origin_url,omitempty"`
}

type fetchRequest struct {
	URL       string     `json:"url"`
	FetchedAt *time.Time `json:"fetched_at,omitempty"`
}

type outcomeDTO struct {
	Outcome string             `json:"outcome"`
	Reason  string             `json:"reason,omitempty"`
	URL     string             `json:"url,omitempty"`
	Detail  string             `json:"detail,omitempty"`
	Item    *crawler.QueueItem `json:"item,omitempty"`
}

// admit handles POST /v1/admissions. Added answers 201, duplicates and
// denials 200, malformed input 422 and store failures 503.
func (s *Server) admit(w http.ResponseWriter, r *http.Request) {
	if s.deps.Admitter == nil {
		writeError(w, http.StatusServiceUnavailable, "admission engine unavailable")
		return
	}
	var req admissionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if strings.TrimSpace(req.URL) == "" {
		writeError(w, http.StatusBadRequest, "url required")
		return
	}
	origin, status, err := s.resolveOrigin(r.Context(), req.Origin, req.OriginURL)
	if err != nil {
		writeError(w, status, err.Error())
		return
	}
	o := s.deps.Admitter.TryAdmit(r.Context(), req.URL, origin)
	writeJSON(w, outcomeStatus(o), toOutcomeDTO(o))
}

// enqueueDiscoveries handles POST /v1/discoveries: links are queued for the
// worker pool and admitted asynchronously. It answers 202 with the count.
func (s *Server) enqueueDiscoveries(w http.ResponseWriter, r *http.Request) {
	if s.deps.Dispatcher == nil {
		writeError(w, http.StatusServiceUnavailable, "discovery queue unavailable")
		return
	}
	var req discoveryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if len(req.URLs) == 0 {
		writeError(w, http.StatusBadRequest, "urls required")
		return
	}
	if len(req.URLs) > maxDiscoveryBatch {
		writeError(w, http.StatusRequestEntityTooLarge, "too many urls")
		return
	}
	origin, status, err := s.resolveOrigin(r.Context(), req.Origin, req.OriginURL)
	if err != nil {
		writeError(w, status, err.Error())
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), s.enqueueTimeout)
	defer cancel()
	queued := 0
	for _, raw := range req.URLs {
		if err := s.deps.Dispatcher.Enqueue(ctx, crawler.Discovery{URL: raw, Origin: origin}); err != nil {
			s.logger.Warn("enqueue discovery failed", zap.String("url", raw), zap.Error(err))
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{"queued": queued, "error": "discovery queue full"})
			return
		}
		queued++
	}
	writeJSON(w, http.StatusAccepted, map[string]int{"queued": queued})
}

// recordFetch handles POST /v1/fetches, starting the refetch cooldown.
func (s *Server) recordFetch(w http.ResponseWriter, r *http.Request) {
	if s.deps.Admitter == nil {
		writeError(w, http.StatusServiceUnavailable, "admission engine unavailable")
		return
	}
	var req fetchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.URL) == "" {
		writeError(w, http.StatusBadRequest, "url required")
		return
	}
	var at time.Time
	if req.FetchedAt != nil {
		at = *req.FetchedAt
	}
	key, err := s.deps.Admitter.RecordFetch(r.Context(), req.URL, at)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]string{"url": key, "status": "recorded"})
	case errors.Is(err, crawler.ErrMalformedURL):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, crawler.ErrNotQueued):
		writeError(w, http.StatusNotFound, "queue item not found")
	default:
		s.logger.Error("record fetch failed", zap.String("url", req.URL), zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "eligibility store unavailable")
	}
}

// getQueueItem handles GET /v1/queue-items?url=.
func (s *Server) getQueueItem(w http.ResponseWriter, r *http.Request) {
	if s.deps.Queue == nil {
		writeError(w, http.StatusServiceUnavailable, "queue reader unavailable")
		return
	}
	key, err := crawler.NormalizeURL(r.URL.Query().Get("url"))
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	item, err := s.deps.Queue.Get(r.Context(), key)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]any{"item": item})
	case errors.Is(err, crawler.ErrNotQueued):
		writeError(w, http.StatusNotFound, "queue item not found")
	default:
		s.logger.Error("get queue item failed", zap.String("url", key), zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "eligibility store unavailable")
	}
}

// resolveOrigin prefers an inline origin and otherwise loads the queued item
// named by originURL.
func (s *Server) resolveOrigin(ctx context.Context, inline *crawler.QueueItem, originURL string) (*crawler.QueueItem, int, error) {
	if inline != nil {
		if inline.Protocol == "" || inline.Host == "" {
			return nil, http.StatusBadRequest, errors.New("origin requires protocol and host")
		}
		return inline, http.StatusOK, nil
	}
	if strings.TrimSpace(originURL) == "" {
		return nil, http.StatusOK, nil
	}
	if s.deps.Queue == nil {
		return nil, http.StatusServiceUnavailable, errors.New("queue reader unavailable")
	}
	key, err := crawler.NormalizeURL(originURL)
	if err != nil {
		return nil, http.StatusUnprocessableEntity, err
	}
	item, err := s.deps.Queue.Get(ctx, key)
	switch {
	case err == nil:
		return &item, http.StatusOK, nil
	case errors.Is(err, crawler.ErrNotQueued):
		return nil, http.StatusUnprocessableEntity, errors.New("origin is not queued")
	default:
		s.logger.Error("origin lookup failed", zap.String("origin", key), zap.Error(err))
		return nil, http.StatusServiceUnavailable, errors.New("eligibility store unavailable")
	}
}

func outcomeStatus(o crawler.Outcome) int {
	switch o.Kind {
	case crawler.OutcomeAdded:
		return http.StatusCreated
	case crawler.OutcomeDuplicate, crawler.OutcomeDenied:
		return http.StatusOK
	default:
		if o.Reason == crawler.ReasonMalformedURL {
			return http.StatusUnprocessableEntity
		}
		return http.StatusServiceUnavailable
	}
}

func toOutcomeDTO(o crawler.Outcome) outcomeDTO {
	dto := outcomeDTO{
		Outcome: string(o.Kind),
		Reason:  string(o.Reason),
		Item:    o.Item,
	}
	if o.Candidate.Host != "" {
		dto.URL = o.Candidate.Key()
	}
	if o.Err != nil {
		dto.Detail = o.Err.Error()
	}
	return dto
}
