package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"CoinCast/internal/domain/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type published struct {
	topic string
	key   []byte
	value interface{}
}

type fakeProducer struct {
	sent   []published
	err    error
	closed bool
}

func (p *fakeProducer) Publish(_ context.Context, topic string, key []byte, value interface{}) error {
	p.sent = append(p.sent, published{topic, key, value})
	return p.err
}

func (p *fakeProducer) Close() error {
	p.closed = true
	return nil
}

func TestKafkaForecastPublisher(t *testing.T) {
	prod := &fakeProducer{}
	pub := NewKafkaForecastPublisher(prod, "")

	ev := models.ForecastEvent{
		CoinID:      "bitcoin",
		Model:       models.ModelARIMA,
		Interval:    models.IntervalDaily,
		Horizon:     7,
		FirstTS:     1710115200000,
		LastTS:      1710633600000,
		Mean:        65000,
		GeneratedAt: time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC),
	}
	require.NoError(t, pub.PublishForecast(context.Background(), ev))
	require.Len(t, prod.sent, 1)
	assert.Equal(t, ForecastsTopic, prod.sent[0].topic)
	assert.Equal(t, "bitcoin", string(prod.sent[0].key))

	b, err := json.Marshal(prod.sent[0].value)
	require.NoError(t, err)
	var got map[string]interface{}
	require.NoError(t, json.Unmarshal(b, &got))
	for _, field := range []string{"coin_id", "model", "interval", "horizon", "first_ts", "last_ts", "mean", "generated_at"} {
		assert.Contains(t, got, field)
	}

	require.NoError(t, pub.Close())
	assert.False(t, prod.closed, "shared producer must stay open")
}

func TestKafkaForecastPublisher_Error(t *testing.T) {
	prod := &fakeProducer{err: errors.New("broker down")}
	pub := NewKafkaForecastPublisher(prod, "custom")
	assert.Error(t, pub.PublishForecast(context.Background(), models.ForecastEvent{CoinID: "bitcoin"}))
	assert.Equal(t, "custom", prod.sent[0].topic)
}

type execCall struct {
	query string
	args  []any
}

type fakeDB struct {
	execs   []execCall
	execErr error
	pingErr error
}

func (d *fakeDB) ExecContext(_ context.Context, query string, args ...any) (sql.Result, error) {
	d.execs = append(d.execs, execCall{query, args})
	return nil, d.execErr
}

func (d *fakeDB) PingContext(context.Context) error { return d.pingErr }

func TestClickHouseForecastArchive_Init(t *testing.T) {
	db := &fakeDB{}
	a := NewClickHouseForecastArchive(db, "", nil)
	require.NoError(t, a.Init(context.Background()))
	require.Len(t, db.execs, 1)
	assert.Contains(t, db.execs[0].query, "CREATE TABLE IF NOT EXISTS forecasts")
}

func TestClickHouseForecastArchive_SaveForecast(t *testing.T) {
	db := &fakeDB{}
	a := NewClickHouseForecastArchive(db, "coincast.forecasts", nil)
	at := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	a.now = func() time.Time { return at }

	res := &models.ForecastResult{
		CoinID:   "bitcoin",
		Model:    models.ModelLSTM,
		Interval: models.IntervalDaily,
		Horizon:  3,
		Predictions: models.PriceSeries{
			{Timestamp: 1710115200000, Price: 1},
			{Timestamp: 1710201600000, Price: 2},
			{Timestamp: 1710288000000, Price: 3},
		},
	}
	require.NoError(t, a.SaveForecast(context.Background(), res))
	require.Len(t, db.execs, 1)

	call := db.execs[0]
	assert.True(t, strings.HasPrefix(call.query, "INSERT INTO coincast.forecasts"))
	assert.Equal(t, 3, strings.Count(call.query, "(?, ?, ?, ?, ?, ?, ?)"))
	require.Len(t, call.args, 21)
	assert.Equal(t, "bitcoin", call.args[0])
	assert.Equal(t, "lstm", call.args[1])
	assert.Equal(t, uint32(3), call.args[3])
	assert.Equal(t, time.UnixMilli(1710115200000).UTC(), call.args[4])
	assert.Equal(t, at, call.args[6])
}

func TestClickHouseForecastArchive_Errors(t *testing.T) {
	db := &fakeDB{execErr: errors.New("table missing"), pingErr: errors.New("refused")}
	a := NewClickHouseForecastArchive(db, "", nil)

	assert.NoError(t, a.SaveForecast(context.Background(), &models.ForecastResult{}))
	assert.Empty(t, db.execs)

	err := a.SaveForecast(context.Background(), &models.ForecastResult{
		CoinID: "bitcoin", Predictions: models.PriceSeries{{Timestamp: 1, Price: 1}},
	})
	assert.ErrorContains(t, err, "table missing")
	assert.Error(t, a.Health(context.Background()))
}
