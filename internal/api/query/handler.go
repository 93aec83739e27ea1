package query

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/dustin/go-humanize"

	"premiummeter/internal/domain/premium"
	"premiummeter/internal/services/premium_query"
	"premiummeter/pkg/errors"
	"premiummeter/pkg/logger"
)

const maxBodyBytes = 1 << 20

// Engine is the query surface served over HTTP
type Engine interface {
	QueryPremiums(ctx context.Context, req premium_query.QueryRequest) (*premium_query.QueryResponse, error)
	BuildChart(ctx context.Context, req premium_query.ChartRequest) (*premium_query.ChartResponse, error)
	QueriesOn(ctx context.Context, day time.Time) (int64, error)
}

// Handler serves the premium and chart query endpoints
type Handler struct {
	engine   Engine
	queryLog premium.QueryLogReader // optional
	log      *logger.Logger
	now      func() time.Time
}

// NewHandler creates a query handler. queryLog may be nil.
func NewHandler(engine Engine, queryLog premium.QueryLogReader, log *logger.Logger) *Handler {
	return &Handler{
		engine:   engine,
		queryLog: queryLog,
		log:      log.With("component", "query_api"),
		now:      time.Now,
	}
}

// Register mounts the handler's routes
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/query/premium", h.HandlePremium)
	mux.HandleFunc("POST /api/v1/query/chart", h.HandleChart)
	mux.HandleFunc("GET /api/v1/stats/queries", h.HandleStats)
}

// HandlePremium answers POST /api/v1/query/premium
func (h *Handler) HandlePremium(w http.ResponseWriter, r *http.Request) {
	var req premium_query.QueryRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	resp, err := h.engine.QueryPremiums(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// HandleChart answers POST /api/v1/query/chart
func (h *Handler) HandleChart(w http.ResponseWriter, r *http.Request) {
	var req premium_query.ChartRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	resp, err := h.engine.BuildChart(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// StatsResponse is the body of GET /api/v1/stats/queries
type StatsResponse struct {
	Date           string                `json:"date"`
	Queries        int64                 `json:"queries"`
	QueriesDisplay string                `json:"queries_display"`
	ByStatus       []premium.StatusCount `json:"by_status,omitempty"`
}

// HandleStats answers GET /api/v1/stats/queries?date=YYYY-MM-DD, defaulting to today (UTC)
func (h *Handler) HandleStats(w http.ResponseWriter, r *http.Request) {
	day := h.now().UTC()
	if raw := r.URL.Query().Get("date"); raw != "" {
		parsed, err := time.Parse(time.DateOnly, raw)
		if err != nil {
			var verrs errors.ValidationErrors
			verrs.Add("date", "must be YYYY-MM-DD", raw)
			h.writeError(w, r, verrs.ToError())
			return
		}
		day = parsed
	}

	count, err := h.engine.QueriesOn(r.Context(), day)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	resp := StatsResponse{
		Date:           day.Format(time.DateOnly),
		Queries:        count,
		QueriesDisplay: humanize.Comma(count),
	}

	if h.queryLog != nil {
		since := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
		byStatus, err := h.queryLog.CountByStatus(r.Context(), since)
		if err != nil {
			// the counter alone is still a useful answer
			h.log.Warnw("Query log summary unavailable", "error", err)
		} else {
			resp.ByStatus = byStatus
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		var verrs errors.ValidationErrors
		if err == io.EOF {
			verrs.Add("body", "request body is required", nil)
		} else {
			verrs.Add("body", "malformed JSON: "+err.Error(), nil)
		}
		return verrs.ToError()
	}
	return nil
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	apiErr := errors.ToAPIError(err)

	if apiErr.Status >= http.StatusInternalServerError {
		h.log.Warnw("Query failed",
			"path", r.URL.Path,
			"code", apiErr.Code,
			"error", err,
		)
	}
	if apiErr.Retryable {
		w.Header().Set("Retry-After", "1")
	}

	writeJSON(w, apiErr.Status, apiErr)
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
