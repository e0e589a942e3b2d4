package httpserver

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"reviewpulse/internal/app"
	"reviewpulse/internal/domain"
)

type Handlers struct {
	Sync     *app.SyncService
	Analysis *app.AnalysisService
	Q        *app.QueryService
}

// problem is an RFC 7807 body. Run is attached when a sync ended in a
// non-DONE state so clients still see counts and failures.
type problem struct {
	Type   string          `json:"type"`
	Title  string          `json:"title"`
	Status int             `json:"status"`
	Detail string          `json:"detail,omitempty"`
	Run    *domain.SyncRun `json:"run,omitempty"`
}

func (s *Server) MountHandlers(h *Handlers) {
	s.mux.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); _, _ = w.Write([]byte("ok")) })
	s.mux.Route("/v1/businesses/{id}", func(r chi.Router) {
		r.Post("/platforms/{platform}/sync", h.syncPlatform)
		r.Post("/sync", h.syncAll)
		r.Post("/analyze-missing", h.analyzeMissing)
		r.Get("/reviews", h.listReviews)
	})
}

func writeProblem(w http.ResponseWriter, status int, title, detail string) {
	writeProblemBody(w, problem{Type: "about:blank", Title: title, Status: status, Detail: detail})
}

func writeProblemBody(w http.ResponseWriter, p problem) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(p.Status)
	if err := json.NewEncoder(w).Encode(p); err != nil {
		log.Error().Err(err).Msg("write JSON problem response failed")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("write JSON response failed")
	}
}

// statusFor maps the typed pipeline errors onto HTTP statuses.
func statusFor(err error) (int, string) {
	var (
		rl *domain.RateLimitedError
		ce *domain.ConfigError
		pe *domain.ProviderError
		se *domain.StorageError
	)
	switch {
	case errors.As(err, &rl):
		return http.StatusTooManyRequests, "Rate Limited"
	case errors.As(err, &ce):
		return http.StatusUnprocessableEntity, "Configuration Missing"
	case errors.As(err, &pe):
		return http.StatusBadGateway, "Provider Failed"
	case errors.As(err, &se):
		return http.StatusInternalServerError, "Storage Failed"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "Timeout"
	}
	return http.StatusInternalServerError, "Internal Error"
}

func writeErr(w http.ResponseWriter, err error, run *domain.SyncRun) {
	status, title := statusFor(err)
	var rl *domain.RateLimitedError
	if errors.As(err, &rl) {
		secs := int(time.Until(rl.NextAvailableAt).Seconds()) + 1
		w.Header().Set("Retry-After", strconv.Itoa(max(secs, 1)))
	}
	writeProblemBody(w, problem{Type: "about:blank", Title: title, Status: status, Detail: err.Error(), Run: run})
}

// calcETagAndBody marshals once and hashes once, returning both ETag and body.
func calcETagAndBody(v any) (string, []byte) {
	body, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal object for ETag/body")
		return "", nil
	}
	sum := sha1.Sum(body)
	etag := `W/"` + hex.EncodeToString(sum[:]) + `"`
	return etag, body
}

func intQuery(r *http.Request, key string, def, lo, hi int) (int, bool) {
	s := r.URL.Query().Get(key)
	if s == "" {
		return def, true
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < lo || n > hi {
		return 0, false
	}
	return n, true
}

func (h *Handlers) syncPlatform(w http.ResponseWriter, r *http.Request) {
	p, ok := domain.ParsePlatform(chi.URLParam(r, "platform"))
	if !ok {
		writeProblem(w, http.StatusNotFound, "Unknown Platform", "platform must be one of google, yelp, reddit, tripadvisor")
		return
	}
	run, err := h.Sync.Sync(r.Context(), chi.URLParam(r, "id"), p)
	if err != nil {
		writeErr(w, err, &run)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

type syncAllRequest struct {
	Platforms []string `json:"platforms"`
}

type syncAllResult struct {
	Platform domain.Platform `json:"platform"`
	Status   int             `json:"status"`
	Run      domain.SyncRun  `json:"run"`
}

// syncAll answers 200 even when some platforms failed; each entry carries
// the status it would have had on its own.
func (h *Handlers) syncAll(w http.ResponseWriter, r *http.Request) {
	var req syncAllRequest
	if r.Body != nil {
		if err := json.NewDecoder(io.LimitReader(r.Body, 1<<16)).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			writeProblem(w, http.StatusBadRequest, "Invalid Body", err.Error())
			return
		}
	}
	var platforms []domain.Platform
	for _, s := range req.Platforms {
		p, ok := domain.ParsePlatform(s)
		if !ok {
			writeProblem(w, http.StatusBadRequest, "Unknown Platform", s)
			return
		}
		platforms = append(platforms, p)
	}

	id := chi.URLParam(r, "id")
	res, err := h.Sync.SyncAll(r.Context(), id, platforms)
	if err != nil {
		writeErr(w, err, nil)
		return
	}
	out := make([]syncAllResult, 0, len(res))
	for _, pr := range res {
		st := http.StatusOK
		if pr.Err != nil {
			st, _ = statusFor(pr.Err)
		}
		out = append(out, syncAllResult{Platform: pr.Platform, Status: st, Run: pr.Run})
	}
	writeJSON(w, http.StatusOK, map[string]any{"businessId": id, "results": out})
}

func (h *Handlers) analyzeMissing(w http.ResponseWriter, r *http.Request) {
	limit, ok := intQuery(r, "limit", app.DefaultAnalyzeLimit, 1, app.MaxAnalyzeLimit)
	if !ok {
		writeProblem(w, http.StatusBadRequest, "Invalid limit", "limit must be an integer between 1 and 500")
		return
	}
	n, err := h.Analysis.AnalyzeMissing(r.Context(), chi.URLParam(r, "id"), limit)
	if err != nil {
		writeErr(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"analyzed": n})
}

func (h *Handlers) listReviews(w http.ResponseWriter, r *http.Request) {
	limit, ok := intQuery(r, "limit", app.DefaultReviewLimit, 1, app.MaxReviewLimit)
	if !ok {
		writeProblem(w, http.StatusBadRequest, "Invalid limit", "limit must be an integer between 1 and 200")
		return
	}
	out, err := h.Q.ListReviews(r.Context(), chi.URLParam(r, "id"), limit)
	if err != nil {
		writeErr(w, err, nil)
		return
	}

	etag, body := calcETagAndBody(out)
	if inm := r.Header.Get("If-None-Match"); inm != "" && inm == etag {
		w.Header().Set("ETag", etag)
		w.WriteHeader(http.StatusNotModified)
		return
	}

	w.Header().Set("ETag", etag)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(body); err != nil {
		log.Error().Err(err).Msg("failed to write listReviews body")
	}
}
