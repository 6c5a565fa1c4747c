package models

// Requests for forecasting HTTP endpoints.

type PredictRequest struct {
	CoinID   string `json:"coin_id" validate:"required"`
	Days     int    `json:"days" default:"7" validate:"gte=1,lte=365"`
	Model    string `json:"model" default:"arima"`
	Interval string `json:"interval" default:"daily" validate:"oneof=daily hourly"`
}

type PredictQuery struct {
	Model    string `query:"model" default:"arima"`
	Interval string `query:"interval" default:"daily" validate:"oneof=daily hourly"`
}

type ByDatesRequest struct {
	CoinID    string `query:"coin_id" validate:"required"`
	StartDate string `query:"start_date" validate:"required"`
	EndDate   string `query:"end_date" validate:"required"`
}

type PredictByDatesRequest struct {
	CoinID    string `query:"coin_id" validate:"required"`
	StartDate string `query:"start_date" validate:"required"`
	EndDate   string `query:"end_date" validate:"required"`
	Model     string `query:"model" default:"arima"`
}

type PeriodChartRequest struct {
	ChartType string `query:"chart_type" default:"real" validate:"oneof=real prediction"`
	Model     string `query:"model" default:"arima"`
}

type PriceRequest struct {
	Currency string `query:"currency" default:"usd" validate:"required"`
}

// HistoricalRange is the response of a calendar-range history query.
type HistoricalRange struct {
	CoinID   string      `json:"coin_id"`
	Start    string      `json:"start"`
	End      string      `json:"end"`
	DayCount int         `json:"day_count"`
	Prices   PriceSeries `json:"prices"`
}

// PredictedRange is the response of a calendar-range prediction query.
type PredictedRange struct {
	CoinID       string      `json:"coin_id"`
	Start        string      `json:"start"`
	End          string      `json:"end"`
	DayCount     int         `json:"day_count"`
	Model        ModelKind   `json:"model"`
	Interval     Interval    `json:"interval"`
	Predictions  PriceSeries `json:"predictions"`
	IsPrediction bool        `json:"is_prediction"`
}

// PeriodHistory is the real-price chart of a bucket.
type PeriodHistory struct {
	CoinID string      `json:"coin_id"`
	Period Period      `json:"period"`
	Prices PriceSeries `json:"prices"`
}

// PeriodPrediction is the predicted chart of a bucket.
type PeriodPrediction struct {
	CoinID       string      `json:"coin_id"`
	Period       Period      `json:"period"`
	Model        ModelKind   `json:"model"`
	Interval     Interval    `json:"interval"`
	Predictions  PriceSeries `json:"predictions"`
	IsPrediction bool        `json:"is_prediction"`
}

// CurrentPrice is the latest quoted price of a coin.
type CurrentPrice struct {
	CoinID   string  `json:"coin_id"`
	Currency string  `json:"currency"`
	Price    float64 `json:"price"`
}
