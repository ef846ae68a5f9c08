package models

import (
	"time"

	"github.com/guregu/null/v6"
)

// Indicator window sizes.
const (
	SMAShortWindow = 5
	SMALongWindow  = 20
	ReturnLongLag  = 5
)

// IndicatorRow annotates one bar with trailing statistics. Values that need
// more history than is available are invalid (serialized as null).
type IndicatorRow struct {
	Date     time.Time
	Close    float64
	SMAShort null.Float
	SMALong  null.Float
	Return1D null.Float
	Return5D null.Float
}

// IndicatorSnapshot is the last-row view used in reports.
type IndicatorSnapshot struct {
	CurrentPrice float64    `json:"Current Price"`
	SMAShort     null.Float `json:"SMA_5"`
	SMALong      null.Float `json:"SMA_20"`
	Return1D     null.Float `json:"Price_Change_1d"`
	Return5D     null.Float `json:"Price_Change_5d"`
}
