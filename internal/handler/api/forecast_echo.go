package api

import (
	"fmt"
	"net/http"
	"time"

	"CoinCast/internal/domain/models"
	"CoinCast/internal/service/ratelimit"
	"CoinCast/internal/usecase"
	xhttp "CoinCast/pkg/http"
	xlogger "CoinCast/pkg/logger"

	"github.com/labstack/echo/v4"
)

// ForecastEchoHandler serves the forecasting, history and price endpoints.
type ForecastEchoHandler struct {
	logger   *xlogger.Logger
	forecast *usecase.ForecastUseCase
	ranges   *usecase.RangeUseCase
	history  *usecase.HistoryUseCase
	prices   *usecase.PriceUseCase
	cache    *usecase.CacheAside
	rl       *ratelimit.Limiter
	now      func() time.Time
}

// Deps groups the use cases behind the handler.
type Deps struct {
	Forecast *usecase.ForecastUseCase
	Ranges   *usecase.RangeUseCase
	History  *usecase.HistoryUseCase
	Prices   *usecase.PriceUseCase
	Cache    *usecase.CacheAside
	Limiter  *ratelimit.Limiter
}

func NewForecastEchoHandler(logger *xlogger.Logger, d Deps) *ForecastEchoHandler {
	if logger == nil {
		logger = xlogger.NewNop()
	}
	return &ForecastEchoHandler{
		logger:   logger,
		forecast: d.Forecast,
		ranges:   d.Ranges,
		history:  d.History,
		prices:   d.Prices,
		cache:    d.Cache,
		rl:       d.Limiter,
		now:      time.Now,
	}
}

func (h *ForecastEchoHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/health", h.Health)

	limited := rateLimit(h.rl, h.logger)
	g := e.Group("/api")
	g.POST("/predict", h.Predict, limited)
	g.GET("/predict/:coin_id", h.PredictCoin, limited)
	g.GET("/predict/:coin_id/:interval", h.PredictBucket, limited)
	g.GET("/historical/by-dates", h.HistoricalByDates)
	g.GET("/historical/predict/by-dates", h.PredictByDates, limited)
	g.GET("/historical/:coin_id/:period", h.HistoricalByPeriod)
	g.GET("/price/:coin_id", h.Price)
}

// Predict handles POST /api/predict.
func (h *ForecastEchoHandler) Predict(c echo.Context) error {
	req := &models.PredictRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	return h.runForecast(c, models.ForecastRequest{
		AssetID:  req.CoinID,
		Horizon:  req.Days,
		Model:    models.ModelKind(req.Model),
		Interval: models.Interval(req.Interval),
	})
}

// PredictCoin handles GET /api/predict/:coin_id, a 7 day forecast.
func (h *ForecastEchoHandler) PredictCoin(c echo.Context) error {
	req := &models.PredictQuery{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	return h.runForecast(c, models.ForecastRequest{
		AssetID:  c.Param("coin_id"),
		Horizon:  7,
		Model:    models.ModelKind(req.Model),
		Interval: models.Interval(req.Interval),
	})
}

// bucketHorizons maps the short interval buckets of GET /api/predict/:coin_id/:interval.
var bucketHorizons = map[string]struct {
	horizon  int
	interval models.Interval
}{
	"1d":  {1, models.IntervalHourly},
	"7d":  {7, models.IntervalDaily},
	"30d": {30, models.IntervalDaily},
}

func (h *ForecastEchoHandler) PredictBucket(c echo.Context) error {
	bucket := c.Param("interval")
	b, ok := bucketHorizons[bucket]
	if !ok {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestErrorf("unsupported interval %q: supported intervals are 1d, 7d, 30d", bucket).
			WithParam("options", []string{"1d", "7d", "30d"}))
	}
	req := &models.PredictQuery{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	return h.runForecast(c, models.ForecastRequest{
		AssetID:  c.Param("coin_id"),
		Horizon:  b.horizon,
		Model:    models.ModelKind(req.Model),
		Interval: b.interval,
	})
}

func (h *ForecastEchoHandler) runForecast(c echo.Context, req models.ForecastRequest) error {
	res, err := h.forecast.GetForecast(c.Request().Context(), req)
	if err != nil {
		return h.fail(c, "forecast", err)
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "private, max-age=60")
	return xhttp.SuccessResponse(c, res)
}

func (h *ForecastEchoHandler) HistoricalByDates(c echo.Context) error {
	req := &models.ByDatesRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	res, err := h.ranges.Historical(c.Request().Context(), req.CoinID, req.StartDate, req.EndDate)
	if err != nil {
		return h.fail(c, "historical by dates", err)
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *ForecastEchoHandler) PredictByDates(c echo.Context) error {
	req := &models.PredictByDatesRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	res, err := h.ranges.Predict(c.Request().Context(), req.CoinID, req.StartDate, req.EndDate, req.Model)
	if err != nil {
		return h.fail(c, "predict by dates", err)
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *ForecastEchoHandler) HistoricalByPeriod(c echo.Context) error {
	req := &models.PeriodChartRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if req.ChartType == usecase.ChartPrediction && h.rl != nil && !h.rl.Allow(c.RealIP()) {
		return xhttp.AppErrorResponse(c, xhttp.TooManyRequestsError("too many prediction requests, slow down"))
	}
	res, err := h.history.ByPeriod(c.Request().Context(), c.Param("coin_id"), c.Param("period"), req.ChartType, req.Model)
	if err != nil {
		return h.fail(c, "historical by period", err)
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *ForecastEchoHandler) Price(c echo.Context) error {
	req := &models.PriceRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	res, err := h.prices.Current(c.Request().Context(), c.Param("coin_id"), req.Currency)
	if err != nil {
		return h.fail(c, "current price", err)
	}
	return xhttp.SuccessResponse(c, res)
}

// HealthStatus is the body of GET /health.
type HealthStatus struct {
	Status string    `json:"status"`
	Cache  string    `json:"cache"`
	Time   time.Time `json:"time"`
}

func (h *ForecastEchoHandler) Health(c echo.Context) error {
	backend := "none"
	if h.cache != nil {
		backend = h.cache.Backend()
	}
	return c.JSON(http.StatusOK, HealthStatus{Status: "ok", Cache: backend, Time: h.now().UTC()})
}

func (h *ForecastEchoHandler) fail(c echo.Context, op string, err error) error {
	appErr := mapError(err)
	if appErr.Status >= http.StatusInternalServerError {
		h.logger.Error(fmt.Sprintf("%s usecase error", op), xlogger.Error(err))
	} else {
		h.logger.Debug(fmt.Sprintf("%s rejected", op), xlogger.Error(err))
	}
	return xhttp.AppErrorResponse(c, appErr)
}
