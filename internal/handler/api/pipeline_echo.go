package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"FinFeat/internal/domain/models"
	domrepo "FinFeat/internal/domain/repository"
	"FinFeat/internal/service/binance"
	"FinFeat/internal/service/metrics"
	"FinFeat/internal/service/ratelimit"
	"FinFeat/internal/services/features"
	"FinFeat/internal/usecase"
	xhttp "FinFeat/pkg/http"
	xlogger "FinFeat/pkg/logger"
)

// Build submissions per client: a burst of 2, then one every 10s.
const (
	buildBurst  = 2
	buildRefill = 0.1
)

// PipelineEchoHandler exposes schemes, feature previews, builds and model metadata.
type PipelineEchoHandler struct {
	logger   *xlogger.Logger
	candles  *usecase.CandlesUseCase
	runner   *usecase.BuildRunner
	registry *usecase.ModelRegistry
	rl       *ratelimit.Limiter
}

func NewPipelineEchoHandler(
	logger *xlogger.Logger,
	candles *usecase.CandlesUseCase,
	runner *usecase.BuildRunner,
	registry *usecase.ModelRegistry,
) *PipelineEchoHandler {
	metrics.Register()
	if logger == nil {
		logger = xlogger.Nop()
	}
	return &PipelineEchoHandler{
		logger:   logger.With("api"),
		candles:  candles,
		runner:   runner,
		registry: registry,
		rl:       ratelimit.New(),
	}
}

func (h *PipelineEchoHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")
	g.GET("/schemes", instrument("schemes", h.Schemes))
	g.GET("/schemes/:name", instrument("scheme", h.Scheme))
	g.POST("/features", instrument("features", h.Features))
	g.GET("/candles/:symbol", instrument("candles", h.Candles))
	g.GET("/families", instrument("families", h.Families))
	g.POST("/families/:family/build", instrument("build", h.Build))
	g.GET("/families/:family/build", instrument("build_status", h.BuildStatus))
	g.GET("/families/:family/metadata", instrument("metadata", h.Metadata))
	g.POST("/families/:family/finalize", instrument("finalize", h.Finalize))
}

// instrument records latency and error counts per endpoint.
func instrument(endpoint string, next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		err := next(c)
		metrics.APILatency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
		if err != nil || c.Response().Status >= http.StatusBadRequest {
			metrics.APIErrors.WithLabelValues(endpoint).Inc()
		}
		return err
	}
}

func (h *PipelineEchoHandler) Schemes(c echo.Context) error {
	list, err := h.candles.Schemes()
	if err != nil {
		return h.fail(c, "schemes", err)
	}
	return xhttp.ListResponse(c, list, int64(len(list)))
}

func (h *PipelineEchoHandler) Scheme(c echo.Context) error {
	info, err := h.candles.Scheme(c.Param("name"), true)
	if err != nil {
		return h.fail(c, "scheme", err)
	}
	return xhttp.SuccessResponse(c, info)
}

func (h *PipelineEchoHandler) Features(c echo.Context) error {
	req := &models.FeaturesRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	req.Symbol = strings.ToUpper(req.Symbol)

	res, err := h.candles.Features(c.Request().Context(), *req)
	if err != nil {
		return h.fail(c, "features", err)
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *PipelineEchoHandler) Candles(c echo.Context) error {
	req := &models.CandlesRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	tf := domrepo.NormalizeTimeframe(req.Timeframe)
	to := xhttp.ParseTimeDefault(req.To, time.Now().UTC())
	from := xhttp.ParseTimeDefault(req.From, to.Add(-time.Duration(req.Limit)*tf.Duration()))

	res, err := h.candles.GetCandles(c.Request().Context(), usecase.GetCandlesParams{
		Symbol:    strings.ToUpper(req.Symbol),
		From:      from,
		To:        to,
		Timeframe: tf,
		Limit:     req.Limit,
	})
	if err != nil {
		return h.fail(c, "candles", err)
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "private, max-age=15")
	return xhttp.SuccessResponse(c, res)
}

type familyView struct {
	Name   string             `json:"name"`
	Scheme string             `json:"scheme"`
	Label  string             `json:"label"`
	Last   *usecase.RunStatus `json:"last_run,omitempty"`
}

func (h *PipelineEchoHandler) Families(c echo.Context) error {
	names := h.runner.Families()
	out := make([]familyView, 0, len(names))
	for _, n := range names {
		cfg, _ := h.runner.Config(n)
		v := familyView{Name: n, Scheme: cfg.Scheme, Label: cfg.LabelKind}
		if st, ok := h.runner.Status(n); ok {
			v.Last = &st
		}
		out = append(out, v)
	}
	return xhttp.ListResponse(c, out, int64(len(out)))
}

func (h *PipelineEchoHandler) Build(c echo.Context) error {
	family := c.Param("family")
	if !h.rl.Allow(c.RealIP()+":build", buildBurst, buildRefill) {
		h.logger.Warn("build rate limited", xlogger.String("remote", c.RealIP()))
		return xhttp.AppErrorResponse(c, xhttp.TooManyRequestsErrorf("too many build requests"))
	}
	runID, err := h.runner.Submit(c.Request().Context(), family)
	if err != nil {
		return h.fail(c, "build", err)
	}
	h.logger.Info("build submitted", xlogger.String("family", family), xlogger.String("run_id", runID))
	return xhttp.AcceptedResponse(c, map[string]string{"family": family, "run_id": runID})
}

func (h *PipelineEchoHandler) BuildStatus(c echo.Context) error {
	family := c.Param("family")
	if _, ok := h.runner.Config(family); !ok {
		return h.fail(c, "build_status", usecase.ErrUnknownFamily)
	}
	st, ok := h.runner.Status(family)
	if !ok {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundErrorf("no build has run for %s", family))
	}
	return xhttp.SuccessResponse(c, st)
}

func (h *PipelineEchoHandler) Metadata(c echo.Context) error {
	md, err := h.registry.Metadata(c.Request().Context(), c.Param("family"))
	if err != nil {
		return h.fail(c, "metadata", err)
	}
	return xhttp.SuccessResponse(c, md)
}

func (h *PipelineEchoHandler) Finalize(c echo.Context) error {
	req := &models.FinalizeRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	md, err := h.registry.Finalize(c.Request().Context(), c.Param("family"), req.TestAccuracy, req.ModelPath)
	if err != nil {
		return h.fail(c, "finalize", err)
	}
	return xhttp.SuccessResponse(c, md)
}

func (h *PipelineEchoHandler) fail(c echo.Context, op string, err error) error {
	appErr := toAppError(err)
	if appErr.Status >= http.StatusInternalServerError {
		h.logger.Error(op+" usecase error", xlogger.Error(err))
	} else {
		h.logger.Debug(op+" rejected", xlogger.Error(err))
	}
	return xhttp.AppErrorResponse(c, appErr)
}

func toAppError(err error) *xhttp.AppError {
	var (
		appErr    *xhttp.AppError
		statusErr *xhttp.StatusError
	)
	switch {
	case errors.As(err, &appErr):
		return appErr
	case errors.Is(err, features.ErrUnknownScheme),
		errors.Is(err, usecase.ErrUnknownFamily),
		errors.Is(err, domrepo.ErrArtifactNotFound),
		errors.Is(err, usecase.ErrNoCandles):
		return xhttp.NotFoundErrorf("%s", err.Error()).WithError(err)
	case errors.Is(err, domrepo.ErrInvalidFamily),
		errors.Is(err, domrepo.ErrInvalidArtifactPath),
		errors.Is(err, usecase.ErrInvalidRange),
		errors.Is(err, binance.ErrUnknownSymbol):
		return xhttp.BadRequestErrorf("%s", err.Error()).WithError(err)
	case errors.Is(err, usecase.ErrBuildInProgress):
		return xhttp.ConflictErrorf("%s", err.Error()).WithError(err)
	case errors.As(err, &statusErr), errors.Is(err, binance.ErrMalformed):
		return xhttp.BadGatewayErrorf("upstream candle source failed").WithError(err)
	default:
		return xhttp.InternalErrorf("something went wrong").WithError(err)
	}
}
