// Package trigger exposes reconciliation over HTTP.
package trigger

import (
	"context"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/recon/dbconn"
	"github.com/cockroachdb/recon/dialect"
	"github.com/cockroachdb/recon/reconcile"
	"github.com/cockroachdb/recon/reconcile/inconsistency"
	"github.com/cockroachdb/recon/reconcile/reconbase"
	"github.com/cockroachdb/recon/tableconfig"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Server starts reconciliations on request.
type Server struct {
	conns    dbconn.OrderedConns
	source   tableconfig.Source
	reporter inconsistency.Reporter
	logger   zerolog.Logger
	opts     []reconcile.Opt
	runs     *registry

	baseCtx    context.Context
	baseCancel context.CancelFunc
}

// NewServer reconciles tables of source between conns. Every difference found
// is reported to reporter as well as returned to synchronous callers. opts
// apply to every run.
func NewServer(
	conns dbconn.OrderedConns,
	source tableconfig.Source,
	reporter inconsistency.Reporter,
	logger zerolog.Logger,
	opts ...reconcile.Opt,
) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		conns:      conns,
		source:     source,
		reporter:   reporter,
		logger:     logger,
		opts:       append([]reconcile.Opt{reconcile.WithLogger(logger)}, opts...),
		runs:       newRegistry(DefaultRunRetention, DefaultMaxRuns),
		baseCtx:    ctx,
		baseCancel: cancel,
	}
}

// SetRunRetention sets how long finished asynchronous runs can be polled and
// how many runs are tracked at most. It must be called before serving.
func (s *Server) SetRunRetention(retention time.Duration, maxRuns int) {
	s.runs.retention = retention
	s.runs.maxRuns = maxRuns
}

// Close cancels every asynchronous run and waits for them to stop.
func (s *Server) Close() {
	s.baseCancel()
	s.runs.shutdown()
}

func (s *Server) Handler() http.Handler {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(s.requestLogger())

	router.GET("/healthz", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api/v1")
	api.GET("/tables", s.listTables)
	api.POST("/compare", s.compareTables)
	api.POST("/compare/:table", s.compareTable)
	api.GET("/runs/:id", s.getRun)
	api.DELETE("/runs/:id", s.cancelRun)
	return router
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Msg("handled request")
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) abortWithError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	var cfgErr *tableconfig.ConfigurationError
	var dialectErr *dialect.UnsupportedDialectError
	switch {
	case errors.As(err, &cfgErr):
		status = http.StatusNotFound
		if cfgErr.Table == "" {
			status = http.StatusBadRequest
		}
	case errors.As(err, &dialectErr):
		status = http.StatusUnprocessableEntity
	}
	c.AbortWithStatusJSON(status, errorResponse{Error: err.Error()})
}

type resultView struct {
	RunID         string         `json:"run_id"`
	Table         string         `json:"table"`
	State         string         `json:"state"`
	StartPage     int            `json:"start_page"`
	Pages         int            `json:"pages"`
	PrimaryRows   int            `json:"primary_rows"`
	SecondaryRows int            `json:"secondary_rows"`
	Counts        map[string]int `json:"counts"`
	FailedPage    *int           `json:"failed_page,omitempty"`
	Error         string         `json:"error,omitempty"`
	DurationMS    int64          `json:"duration_ms"`
}

func makeResultView(res reconcile.Result) resultView {
	v := resultView{
		RunID:         res.RunID.String(),
		Table:         res.Table,
		State:         res.State.String(),
		StartPage:     res.StartPage,
		Pages:         res.Pages,
		PrimaryRows:   res.RowsRead[reconbase.Primary],
		SecondaryRows: res.RowsRead[reconbase.Secondary],
		Counts:        make(map[string]int, len(inconsistency.Kinds)),
		DurationMS:    res.Duration.Milliseconds(),
	}
	for _, k := range inconsistency.Kinds {
		v.Counts[string(k)] = res.Counts[k]
	}
	if res.Err != nil {
		v.Error = res.Err.Error()
		failed := res.FailedPage
		v.FailedPage = &failed
	}
	return v
}

type compareResponse struct {
	Result      resultView             `json:"result"`
	Differences []inconsistency.Record `json:"differences"`
}

type runView struct {
	ID      string       `json:"id"`
	Tables  []string     `json:"tables"`
	State   runState     `json:"state"`
	Started time.Time    `json:"started"`
	Results []resultView `json:"results,omitempty"`
}

type compareQuery struct {
	Async    bool `form:"async"`
	PageSize int  `form:"page_size" binding:"omitempty,min=1"`
}

func (q compareQuery) opts() []reconcile.Opt {
	if q.PageSize > 0 {
		return []reconcile.Opt{reconcile.WithPageSize(q.PageSize)}
	}
	return nil
}

func (s *Server) listTables(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"tables": tableconfig.SortedTables(s.source)})
}

func (s *Server) compareTable(c *gin.Context) {
	var q compareQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	table := c.Param("table")
	spec, err := s.source.TableSpec(table)
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	opts := append(append([]reconcile.Opt(nil), s.opts...), q.opts()...)

	if q.Async {
		r := s.runs.start(s.baseCtx, []string{table}, func(ctx context.Context, id uuid.UUID) []reconcile.Result {
			res, _ := reconcile.CompareTable(ctx, s.conns, spec, s.reporter, append(opts, reconcile.WithRunID(id))...)
			return []reconcile.Result{res}
		})
		c.JSON(http.StatusAccepted, r.view())
		return
	}

	// Client disconnects stop the run at the next page.
	var buf inconsistency.BufferedReporter
	reporter := inconsistency.CombinedReporter{Reporters: []inconsistency.Reporter{s.reporter, &buf}}
	res, err := reconcile.CompareTable(c.Request.Context(), s.conns, spec, reporter, opts...)
	resp := compareResponse{Result: makeResultView(res), Differences: []inconsistency.Record{}}
	for _, d := range buf.Differences() {
		resp.Differences = append(resp.Differences, inconsistency.ToRecord(d))
	}
	status := http.StatusOK
	if err != nil {
		var dialectErr *dialect.UnsupportedDialectError
		status = http.StatusBadGateway
		if errors.As(err, &dialectErr) {
			status = http.StatusUnprocessableEntity
		}
	}
	c.JSON(status, resp)
}

type compareTablesRequest struct {
	Tables []string `json:"tables"`
}

// compareTables always runs asynchronously; runs over many tables outlive a
// request.
func (s *Server) compareTables(c *gin.Context) {
	var q compareQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	var req compareTablesRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
			return
		}
	}
	tables := req.Tables
	if len(tables) == 0 {
		tables = tableconfig.SortedTables(s.source)
	}
	for _, table := range tables {
		if _, err := s.source.TableSpec(table); err != nil {
			s.abortWithError(c, err)
			return
		}
	}
	opts := append(append([]reconcile.Opt(nil), s.opts...), q.opts()...)
	r := s.runs.start(s.baseCtx, tables, func(ctx context.Context, _ uuid.UUID) []reconcile.Result {
		return reconcile.CompareTables(ctx, s.conns, s.source, tables, s.reporter, opts...)
	})
	c.JSON(http.StatusAccepted, r.view())
}

func (s *Server) lookupRun(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, errorResponse{Error: "invalid run id"})
		return uuid.Nil, false
	}
	return id, true
}

func (s *Server) getRun(c *gin.Context) {
	id, ok := s.lookupRun(c)
	if !ok {
		return
	}
	r, ok := s.runs.get(id)
	if !ok {
		c.AbortWithStatusJSON(http.StatusNotFound, errorResponse{Error: "run " + id.String() + " not found"})
		return
	}
	c.JSON(http.StatusOK, r.view())
}

func (s *Server) cancelRun(c *gin.Context) {
	id, ok := s.lookupRun(c)
	if !ok {
		return
	}
	if !s.runs.cancel(id) {
		c.AbortWithStatusJSON(http.StatusNotFound, errorResponse{Error: "run " + id.String() + " not found"})
		return
	}
	r, _ := s.runs.get(id)
	<-r.done
	c.JSON(http.StatusOK, r.view())
}

// ListenAndServe serves until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.Handler()}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", addr).Msg("serving reconciliation triggers")
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		s.Close()
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	s.Close()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
