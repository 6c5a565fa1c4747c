package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"CoinCast/internal/domain/models"
	domrepo "CoinCast/internal/domain/repository"
	"CoinCast/pkg/logger"
)

type lastPriceRecorder interface {
	RecordLastPrice(coin string, price float64)
}

// PriceUseCase serves spot prices.
type PriceUseCase struct {
	provider domrepo.PriceProvider
	cache    *CacheAside
	ttl      time.Duration
	metrics  domrepo.Metrics
	log      *logger.Logger
}

func NewPriceUseCase(provider domrepo.PriceProvider, cache *CacheAside, ttl time.Duration, metrics domrepo.Metrics, log *logger.Logger) *PriceUseCase {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &PriceUseCase{provider: provider, cache: cache, ttl: ttl, metrics: metrics, log: log}
}

// Current returns the cached spot price of coin in currency.
func (uc *PriceUseCase) Current(ctx context.Context, coin, currency string) (*models.CurrentPrice, error) {
	if coin == "" {
		return nil, fmt.Errorf("%w: coin_id is required", models.ErrInvalidRange)
	}
	currency = strings.ToLower(currency)
	if currency == "" {
		currency = "usd"
	}

	key := fmt.Sprintf("current_price:%s:%s", coin, currency)
	return loadOrCompute(ctx, uc.cache, key, uc.ttl, func(ctx context.Context) (*models.CurrentPrice, error) {
		price, err := uc.provider.GetCurrentPrice(ctx, coin, currency)
		if err != nil {
			return nil, err
		}
		if r, ok := uc.metrics.(lastPriceRecorder); ok && currency == "usd" {
			r.RecordLastPrice(coin, price)
		}
		return &models.CurrentPrice{CoinID: coin, Currency: currency, Price: price}, nil
	})
}

// Snapshot returns {coin: {"usd": price}} for the given coins. Coins whose
// price cannot be fetched are skipped and logged.
func (uc *PriceUseCase) Snapshot(ctx context.Context, coins []string) map[string]map[string]float64 {
	out := make(map[string]map[string]float64, len(coins))
	for _, coin := range coins {
		p, err := uc.Current(ctx, coin, "usd")
		if err != nil {
			uc.log.Warn("snapshot price failed", logger.String("coin_id", coin), logger.Error(err))
			continue
		}
		out[coin] = map[string]float64{"usd": p.Price}
	}
	return out
}
