package models

import (
	"context"
	"errors"
	"fmt"
)

// Error kinds surfaced by the forecasting core. Callers match them with errors.Is.
var (
	ErrInvalidDate       = errors.New("invalid date")
	ErrInvalidRange      = errors.New("invalid range")
	ErrUnsupportedPeriod = errors.New("unsupported period")
	ErrInsufficientData  = errors.New("insufficient data")
	ErrUpstreamData      = errors.New("upstream data unavailable")
	ErrUpstreamTimeout   = errors.New("upstream timeout")
	ErrModelFit          = errors.New("model fit failed")
)

// ForecastError carries the request context of a failed forecast.
type ForecastError struct {
	Kind    error
	Op      string
	AssetID string
	Horizon int
	Model   ModelKind
	Err     error
}

func (e *ForecastError) Error() string {
	msg := fmt.Sprintf("%s %s (horizon=%d model=%s): %v", e.Op, e.AssetID, e.Horizon, e.Model, e.Kind)
	if e.Err != nil && !errors.Is(e.Err, e.Kind) {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes the kind so errors.Is matches the sentinel, never the raw cause.
func (e *ForecastError) Unwrap() error { return e.Kind }

// Classify maps an arbitrary error to one of the kind sentinels.
// Context deadlines become ErrUpstreamTimeout; unknown errors become ErrModelFit.
func Classify(err error) error {
	for _, kind := range []error{
		ErrInvalidDate, ErrInvalidRange, ErrUnsupportedPeriod, ErrInsufficientData,
		ErrUpstreamData, ErrUpstreamTimeout, ErrModelFit,
	} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrUpstreamTimeout
	}
	return ErrModelFit
}

// WrapForecastError classifies err and attaches the request fields.
func WrapForecastError(op string, req ForecastRequest, err error) error {
	if err == nil {
		return nil
	}
	var fe *ForecastError
	if errors.As(err, &fe) {
		return err
	}
	return &ForecastError{
		Kind:    Classify(err),
		Op:      op,
		AssetID: req.AssetID,
		Horizon: req.Horizon,
		Model:   req.Model,
		Err:     err,
	}
}
