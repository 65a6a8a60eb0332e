// Package query turns stored samples into hourly downsampled time series for
// the dashboard JSON protocol.
package query

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/i474232898/climate-telemetry/internal/telemetry"
)

const (
	hourMs       = int64(time.Hour / time.Millisecond)
	defaultRange = 24 * time.Hour
	indoorPrefix = "indoor_"
)

// Range is an inclusive window in epoch milliseconds.
type Range struct {
	From int64
	To   int64
}

// ResolveRange fills in missing bounds: To defaults to now and From to 24
// hours before To.
func ResolveRange(now time.Time, from, to *time.Time) Range {
	end := now
	if to != nil {
		end = *to
	}
	start := end.Add(-defaultRange)
	if from != nil {
		start = *from
	}
	return Range{From: start.UnixMilli(), To: end.UnixMilli()}
}

// Point is one datapoint, encoded as [value, timestamp].
type Point struct {
	Value     float64
	Timestamp int64
}

func (p Point) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]any{p.Value, p.Timestamp})
}

func (p *Point) UnmarshalJSON(b []byte) error {
	var pair [2]float64
	if err := json.Unmarshal(b, &pair); err != nil {
		return err
	}
	p.Value, p.Timestamp = pair[0], int64(pair[1])
	return nil
}

type TimeSeries struct {
	Target     string  `json:"target"`
	Datapoints []Point `json:"datapoints"`
}

// Reader is the read side of the store used by the engine.
type Reader interface {
	WeatherRange(ctx context.Context, fromMs, toMs int64) ([]telemetry.WeatherSample, error)
	IndoorRange(ctx context.Context, fromMs, toMs int64) ([]telemetry.IndoorSample, error)
}

var weatherMetrics = map[string]func(telemetry.WeatherSample) float64{
	"temperature": func(w telemetry.WeatherSample) float64 { return w.Temperature },
	"humidity":    func(w telemetry.WeatherSample) float64 { return w.Humidity },
	"pressure":    func(w telemetry.WeatherSample) float64 { return w.Pressure },
	"wind_speed":  func(w telemetry.WeatherSample) float64 { return w.WindSpeed },
	"visibility":  func(w telemetry.WeatherSample) float64 { return w.Visibility },
	"cloudiness":  func(w telemetry.WeatherSample) float64 { return w.Cloudiness },
}

var indoorMetrics = map[string]func(telemetry.IndoorSample) float64{
	"indoor_temperature": func(r telemetry.IndoorSample) float64 { return r.Temperature },
	"indoor_humidity":    func(r telemetry.IndoorSample) float64 { return r.Humidity },
}

// Metrics lists the supported metric names in display order.
func Metrics() []string {
	return []string{
		"temperature",
		"humidity",
		"pressure",
		"wind_speed",
		"visibility",
		"cloudiness",
		"indoor_temperature",
		"indoor_humidity",
	}
}

// IsIndoor reports whether target is resolved against the indoor table.
func IsIndoor(target string) bool {
	return strings.HasPrefix(target, indoorPrefix)
}

// LatestPerHour keeps, for every UTC hour, the row with the largest
// timestamp and returns them in ascending time order. Ties keep the row seen
// first.
func LatestPerHour[T any](rows []T, ts func(T) int64) []T {
	latest := make(map[int64]int, len(rows))
	for i, row := range rows {
		t := ts(row)
		bucket := hourBucket(t)
		if j, ok := latest[bucket]; !ok || t > ts(rows[j]) {
			latest[bucket] = i
		}
	}

	out := make([]T, 0, len(latest))
	for _, i := range latest {
		out = append(out, rows[i])
	}
	sort.Slice(out, func(i, j int) bool { return ts(out[i]) < ts(out[j]) })
	return out
}

// hourBucket floors t to the start of its hour, also before 1970.
func hourBucket(t int64) int64 {
	return t - ((t%hourMs)+hourMs)%hourMs
}

func weatherTS(w telemetry.WeatherSample) int64 { return w.Timestamp }
func indoorTS(r telemetry.IndoorSample) int64   { return r.Timestamp }

// Engine answers dashboard queries.
type Engine struct {
	reader Reader
	logger *slog.Logger
}

func NewEngine(logger *slog.Logger, reader Reader) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{reader: reader, logger: logger}
}

// tables loads each table at most once per request.
type tables struct {
	ctx    context.Context
	reader Reader
	rng    Range

	weather       []telemetry.WeatherSample
	weatherErr    error
	weatherLoaded bool

	indoor       []telemetry.IndoorSample
	indoorErr    error
	indoorLoaded bool
}

func (t *tables) weatherRows() ([]telemetry.WeatherSample, error) {
	if !t.weatherLoaded {
		rows, err := t.reader.WeatherRange(t.ctx, t.rng.From, t.rng.To)
		t.weather, t.weatherErr, t.weatherLoaded = LatestPerHour(rows, weatherTS), err, true
	}
	return t.weather, t.weatherErr
}

func (t *tables) indoorRows() ([]telemetry.IndoorSample, error) {
	if !t.indoorLoaded {
		rows, err := t.reader.IndoorRange(t.ctx, t.rng.From, t.rng.To)
		t.indoor, t.indoorErr, t.indoorLoaded = LatestPerHour(rows, indoorTS), err, true
	}
	return t.indoor, t.indoorErr
}

// Query returns one series per target, in request order. A target whose
// table could not be read is left out; unknown metric names yield 0.
func (e *Engine) Query(ctx context.Context, rng Range, targets []string) []TimeSeries {
	tbl := &tables{ctx: ctx, reader: e.reader, rng: rng}
	out := make([]TimeSeries, 0, len(targets))

	for _, target := range targets {
		var (
			points []Point
			err    error
		)
		if IsIndoor(target) {
			rows, rowsErr := tbl.indoorRows()
			points, err = series(rows, rowsErr, indoorMetrics[target], indoorTS)
		} else {
			rows, rowsErr := tbl.weatherRows()
			points, err = series(rows, rowsErr, weatherMetrics[target], weatherTS)
		}
		if err != nil {
			e.logger.Error("Query error", "target", target, "err", err)
			continue
		}
		out = append(out, TimeSeries{Target: target, Datapoints: points})
	}
	return out
}

func series[T any](rows []T, err error, extract func(T) float64, ts func(T) int64) ([]Point, error) {
	if err != nil {
		return nil, err
	}
	points := make([]Point, 0, len(rows))
	for _, row := range rows {
		var v float64
		if extract != nil {
			v = extract(row)
		}
		points = append(points, Point{Value: v, Timestamp: ts(row)})
	}
	return points, nil
}
