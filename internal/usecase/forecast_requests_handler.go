package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"CoinCast/internal/domain/models"
	domrepo "CoinCast/internal/domain/repository"
	pkgkafka "CoinCast/pkg/kafka"
	"CoinCast/pkg/logger"
)

// ForecastRequestsHandler warms the forecast cache from queued requests.
type ForecastRequestsHandler struct {
	topic    string
	forecast *ForecastUseCase
	metrics  domrepo.Metrics
	log      *logger.Logger
}

func NewForecastRequestsHandler(topic string, forecast *ForecastUseCase, metrics domrepo.Metrics, log *logger.Logger) *ForecastRequestsHandler {
	if log == nil {
		log = logger.NewNop()
	}
	return &ForecastRequestsHandler{topic: topic, forecast: forecast, metrics: metrics, log: log}
}

func (h *ForecastRequestsHandler) Topic() string { return h.topic }

// incoming message schema: {coin_id, days, model, interval}
func (h *ForecastRequestsHandler) Handle(ctx context.Context, b []byte) error {
	var req models.ForecastRequest
	if err := json.Unmarshal(b, &req); err != nil {
		h.recordError("consumer_unmarshal")
		return pkgkafka.Permanent(fmt.Errorf("decode forecast request: %w", err))
	}

	res, err := h.forecast.GetForecast(ctx, req)
	if err != nil {
		if errors.Is(err, models.ErrInvalidRange) || errors.Is(err, models.ErrInvalidDate) {
			h.log.Warn("dropping invalid forecast request",
				logger.String("coin_id", req.AssetID),
				logger.String("trace_id", pkgkafka.TraceID(ctx)),
				logger.Error(err))
			h.recordError("consumer_invalid")
			return nil
		}
		h.recordError("consumer_forecast")
		return err
	}

	h.log.Debug("forecast warmed",
		logger.String("coin_id", res.CoinID),
		logger.String("model", string(res.Model)),
		logger.Int("horizon", res.Horizon),
		logger.String("trace_id", pkgkafka.TraceID(ctx)))
	return nil
}

func (h *ForecastRequestsHandler) recordError(kind string) {
	if h.metrics != nil {
		h.metrics.RecordError(kind)
	}
}

var _ pkgkafka.MessageHandler = (*ForecastRequestsHandler)(nil)
