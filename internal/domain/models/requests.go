package models

// Requests for the stock HTTP endpoints. Defined in domain for reuse by the
// Kafka job handler.

type DataRequest struct {
	Ticker string `query:"ticker" json:"ticker" validate:"required,ticker"`
	Period string `query:"period" json:"period" validate:"required,oneof=1d 5d 1mo 3mo 6mo 1y 2y 5y 10y ytd max"`
}

type AnalysisRequest struct {
	Ticker  string `query:"ticker" json:"ticker" validate:"required,ticker"`
	Period  string `query:"period" json:"period" validate:"required,oneof=1d 5d 1mo 3mo 6mo 1y 2y 5y 10y ytd max"`
	Horizon int    `query:"horizon" json:"horizon" default:"5" validate:"gte=1,lte=60"`
}

type ForecastsRequest struct {
	Ticker string `query:"ticker" json:"ticker" validate:"required,ticker"`
	Limit  int    `query:"limit" json:"limit" default:"20" validate:"gte=1,lte=200"`
}

// ForecastJob is the payload of a queued analysis request.
type ForecastJob struct {
	Ticker  string `json:"ticker"`
	Period  string `json:"period"`
	Horizon int    `json:"horizon,omitempty"`
}
