package repository

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FinCast/internal/domain/models"
	pkgkafka "FinCast/pkg/kafka"
)

type recordingWriter struct{ msgs []kafka.Message }

func (w *recordingWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *recordingWriter) Close() error { return nil }

func TestKafkaEventPublisher(t *testing.T) {
	w := &recordingWriter{}
	p := NewKafkaEventPublisher(pkgkafka.NewProducerWithWriter(w, "gzip"), "fincast.forecasts")

	ev := models.ForecastEvent{
		RunID:     "run-1",
		Symbol:    "AAPL",
		Period:    "1mo",
		Strategy:  models.StrategyTrend,
		Points:    5,
		LastClose: 190.5,
		FirstPred: 191,
		CreatedAt: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, p.PublishForecast(t.Context(), ev))

	require.Len(t, w.msgs, 1)
	m := w.msgs[0]
	assert.Equal(t, "fincast.forecasts", m.Topic)
	assert.Equal(t, []byte("AAPL"), m.Key)
	assert.Equal(t, "run-1", pkgkafka.ExtractTraceID(m))

	var got models.ForecastEvent
	require.NoError(t, json.Unmarshal(m.Value, &got))
	assert.Equal(t, ev, got)
}
