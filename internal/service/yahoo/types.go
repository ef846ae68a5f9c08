package yahoo

// Wire types of the Yahoo Finance chart and quote endpoints. Numeric series
// are pointers because the provider emits null for missing bars.

type chartResponse struct {
	Chart struct {
		Result []chartResult `json:"result"`
		Error  *apiError     `json:"error"`
	} `json:"chart"`
}

type apiError struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

type chartResult struct {
	Meta       chartMeta `json:"meta"`
	Timestamp  []int64   `json:"timestamp"`
	Indicators struct {
		Quote []quoteSeries `json:"quote"`
	} `json:"indicators"`
}

type chartMeta struct {
	Currency           string   `json:"currency"`
	Symbol             string   `json:"symbol"`
	LongName           string   `json:"longName"`
	ShortName          string   `json:"shortName"`
	RegularMarketPrice *float64 `json:"regularMarketPrice"`
	FiftyTwoWeekHigh   *float64 `json:"fiftyTwoWeekHigh"`
	FiftyTwoWeekLow    *float64 `json:"fiftyTwoWeekLow"`
	GMTOffset          int64    `json:"gmtoffset"`
}

type quoteSeries struct {
	Open   []*float64 `json:"open"`
	High   []*float64 `json:"high"`
	Low    []*float64 `json:"low"`
	Close  []*float64 `json:"close"`
	Volume []*float64 `json:"volume"`
}

type quoteResponse struct {
	QuoteResponse struct {
		Result []quoteResult `json:"result"`
		Error  *apiError     `json:"error"`
	} `json:"quoteResponse"`
}

type quoteResult struct {
	Symbol     string   `json:"symbol"`
	LongName   string   `json:"longName"`
	MarketCap  *float64 `json:"marketCap"`
	TrailingPE *float64 `json:"trailingPE"`
}
