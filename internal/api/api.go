// Package api exposes the mention pipeline over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"yashubustudio/orgtrends/mentions"
)

// Pipeline is the subset of the application the HTTP API drives.
type Pipeline interface {
	Config() mentions.Config
	RunWith(ctx context.Context, cfg mentions.Config) (*mentions.Result, error)
	AnalyzeWith(ctx context.Context, records []mentions.RawRecord, cfg mentions.Config) (*mentions.Result, error)
}

// Options configures the router.
type Options struct {
	Version    string
	Backend    string
	Source     string
	MaxRecords int
	// Metrics is served on /metrics when set.
	Metrics http.Handler
	Logger  *slog.Logger
}

type handler struct {
	pipeline Pipeline
	opts     Options
}

// NewRouter builds the gin engine serving the pipeline.
func NewRouter(p Pipeline, opts Options) *gin.Engine {
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	h := &handler{pipeline: p, opts: opts}

	r := gin.New()
	r.Use(gin.Recovery(), requestTracing(), requestLogger(opts.Logger))

	r.GET("/healthz", h.health)
	v1 := r.Group("/v1")
	{
		v1.GET("/trending", h.trending)
		v1.POST("/analyze", h.analyze)
	}
	if opts.Metrics != nil {
		r.GET("/metrics", gin.WrapH(opts.Metrics))
	}
	return r
}

type healthResponse struct {
	Status    string `json:"status"`
	Version   string `json:"version,omitempty"`
	Backend   string `json:"backend,omitempty"`
	Source    string `json:"source,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

func (h *handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, healthResponse{
		Status:    "ok",
		Version:   h.opts.Version,
		Backend:   h.opts.Backend,
		Source:    h.opts.Source,
		Timestamp: time.Now().Unix(),
	})
}

// TableResponse is returned by both pipeline routes.
type TableResponse struct {
	RunID      string                   `json:"runId"`
	Table      mentions.RankedTable     `json:"table"`
	Records    int                      `json:"records"`
	Mentions   int                      `json:"mentions"`
	DurationMS int64                    `json:"durationMs"`
	Matches    [][]mentions.EntityMatch `json:"matches,omitempty"`
}

func newTableResponse(res *mentions.Result, withMatches bool) TableResponse {
	table := res.Table
	if table == nil {
		table = mentions.RankedTable{}
	}
	out := TableResponse{
		RunID:      res.RunID,
		Table:      table,
		Records:    len(res.Records),
		Mentions:   res.MentionCount(),
		DurationMS: res.Duration.Milliseconds(),
	}
	if withMatches {
		out.Matches = res.Matches
	}
	return out
}

type errorResponse struct {
	Error string `json:"error"`
}

var errBadRequest = errors.New("invalid request")

func (h *handler) fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, errBadRequest), errors.Is(err, mentions.ErrInvalidTopN):
		status = http.StatusBadRequest
	case errors.Is(err, mentions.ErrSourceUnavailable):
		status = http.StatusBadGateway
	case errors.Is(err, mentions.ErrClassifierUnavailable):
		status = http.StatusServiceUnavailable
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	}
	_ = c.Error(err)
	c.AbortWithStatusJSON(status, errorResponse{Error: err.Error()})
}

// queryConfig overlays the request's query parameters on the current pipeline configuration.
// A top parameter that is present must be a positive integer.
func (h *handler) queryConfig(c *gin.Context) (mentions.Config, error) {
	cfg := h.pipeline.Config().Clone()
	if raw, ok := c.GetQuery("top"); ok {
		n, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil {
			return cfg, fmt.Errorf("%w: top must be an integer", errBadRequest)
		}
		if n <= 0 {
			return cfg, fmt.Errorf("%w: got %d", mentions.ErrInvalidTopN, n)
		}
		cfg.TopN = n
	}
	if raw, ok := c.GetQuery("limit"); ok {
		n, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil || n < 0 {
			return cfg, fmt.Errorf("%w: limit must be a non-negative integer", errBadRequest)
		}
		cfg.Fetch.Limit = n
	}
	if raw, ok := c.GetQuery("sort"); ok {
		order, err := mentions.ParseSortOrder(raw)
		if err != nil {
			return cfg, fmt.Errorf("%w: %w", errBadRequest, err)
		}
		cfg.Fetch.Sort = order
	}
	if raw := strings.TrimSpace(c.Query("category")); raw != "" {
		cfg.Category = raw
	}
	return cfg, nil
}

func (h *handler) trending(c *gin.Context) {
	cfg, err := h.queryConfig(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	res, err := h.pipeline.RunWith(c.Request.Context(), cfg)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, newTableResponse(res, false))
}

// AnalyzeRequest is the body of POST /v1/analyze.
type AnalyzeRequest struct {
	Records  []mentions.RawRecord `json:"records" binding:"required"`
	Top      *int                 `json:"top,omitempty"`
	Category string               `json:"category,omitempty"`
	Matches  bool                 `json:"matches,omitempty"`
}

func (h *handler) analyze(c *gin.Context) {
	var req AnalyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, fmt.Errorf("%w: %w", errBadRequest, err))
		return
	}
	if h.opts.MaxRecords > 0 && len(req.Records) > h.opts.MaxRecords {
		c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, errorResponse{
			Error: fmt.Sprintf("too many records: %d (max %d)", len(req.Records), h.opts.MaxRecords),
		})
		return
	}

	cfg, err := h.queryConfig(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	if req.Top != nil {
		if *req.Top <= 0 {
			h.fail(c, fmt.Errorf("%w: got %d", mentions.ErrInvalidTopN, *req.Top))
			return
		}
		cfg.TopN = *req.Top
	}
	if req.Category != "" {
		cfg.Category = req.Category
	}
	for i := range req.Records {
		if req.Records[i].ID == "" {
			req.Records[i].ID = strconv.Itoa(i + 1)
		}
	}

	res, err := h.pipeline.AnalyzeWith(c.Request.Context(), req.Records, cfg)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, newTableResponse(res, req.Matches))
}
