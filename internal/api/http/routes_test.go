package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/i474232898/climate-telemetry/internal/query"
	"github.com/i474232898/climate-telemetry/internal/result"
	"github.com/i474232898/climate-telemetry/internal/store"
	"github.com/i474232898/climate-telemetry/internal/telemetry"
)

var fixedNow = time.UnixMilli(1700000000000).UTC()

type fakeCollector struct {
	err   error
	calls int
}

func (f *fakeCollector) Collect(ctx context.Context) result.Result[result.Unit] {
	f.calls++
	if f.err != nil {
		return result.Err[result.Unit](f.err)
	}
	return result.Done()
}

type recordingQuerier struct {
	rng     query.Range
	targets []string
}

func (q *recordingQuerier) Query(ctx context.Context, rng query.Range, targets []string) []query.TimeSeries {
	q.rng, q.targets = rng, targets
	out := make([]query.TimeSeries, 0, len(targets))
	for _, t := range targets {
		out = append(out, query.TimeSeries{Target: t, Datapoints: []query.Point{{Value: 1, Timestamp: rng.To}}})
	}
	return out
}

func newTestApp(t *testing.T, apiKey string) (*fiber.App, *store.MemoryStore, *fakeCollector) {
	t.Helper()
	st := store.NewMemoryStore(0)
	col := &fakeCollector{}
	app := NewApp(Deps{
		Engine:    query.NewEngine(nil, st),
		Collector: col,
		Latest:    st,
		APIKey:    apiKey,
		Now:       func() time.Time { return fixedNow },
	})
	return app, st, col
}

func do(t *testing.T, app *fiber.App, method, path, body string, header map[string]string) (*http.Response, string) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range header {
		req.Header.Set(k, v)
	}
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, _ := io.ReadAll(resp.Body)
	return resp, string(b)
}

func TestRootAndSearch(t *testing.T) {
	app, _, _ := newTestApp(t, "")

	resp, body := do(t, app, http.MethodGet, "/", "", nil)
	if resp.StatusCode != http.StatusOK || body != "OK" {
		t.Fatalf("expected OK, got %d %q", resp.StatusCode, body)
	}

	resp, body = do(t, app, http.MethodPost, "/search", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.StatusCode)
	}
	var metrics []string
	if err := json.Unmarshal([]byte(body), &metrics); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(metrics) != 8 || metrics[0] != "temperature" || metrics[7] != "indoor_humidity" {
		t.Fatalf("unexpected metrics %v", metrics)
	}
}

func TestQueryDownsamplesStoredData(t *testing.T) {
	app, st, _ := newTestApp(t, "")
	ctx := context.Background()
	_ = st.InsertWeatherBatch(ctx, []telemetry.WeatherSample{
		{Timestamp: 1699999200000 + 60000, LocationID: "home", Temperature: 10},
		{Timestamp: 1699999200000 + 1800000, LocationID: "home", Temperature: 11},
	})
	_ = st.InsertIndoor(ctx, telemetry.IndoorSample{Timestamp: 1699999300000, DeviceID: "A", Humidity: 44})

	resp, body := do(t, app, http.MethodPost, "/query",
		`{"range":{"from":"2023-11-14T00:00:00.000Z","to":"2023-11-15T00:00:00.000Z"},"targets":[{"target":"temperature"},{"target":"indoor_humidity"}]}`, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", resp.StatusCode, body)
	}

	var series []query.TimeSeries
	if err := json.Unmarshal([]byte(body), &series); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(series) != 2 {
		t.Fatalf("expected 2 series, got %d", len(series))
	}
	if len(series[0].Datapoints) != 1 || series[0].Datapoints[0] != (query.Point{Value: 11, Timestamp: 1699999200000 + 1800000}) {
		t.Fatalf("expected the later same-hour row, got %+v", series[0].Datapoints)
	}
	if series[1].Target != "indoor_humidity" || series[1].Datapoints[0].Value != 44 {
		t.Fatalf("unexpected indoor series %+v", series[1])
	}
}

func TestQueryDefaultRange(t *testing.T) {
	q := &recordingQuerier{}
	app := NewApp(Deps{Engine: q, Now: func() time.Time { return fixedNow }})

	resp, _ := do(t, app, http.MethodPost, "/query", `{"targets":[{"target":"pressure"}]}`, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.StatusCode)
	}
	if q.rng.To != fixedNow.UnixMilli() || q.rng.From != fixedNow.Add(-24*time.Hour).UnixMilli() {
		t.Fatalf("expected the last 24 hours, got %+v", q.rng)
	}
	if len(q.targets) != 1 || q.targets[0] != "pressure" {
		t.Fatalf("unexpected targets %v", q.targets)
	}
}

func TestQueryBadRequests(t *testing.T) {
	app, _, _ := newTestApp(t, "")
	tests := []struct {
		name string
		body string
	}{
		{"not json", `{targets`},
		{"bad time", `{"range":{"from":"yesterday","to":"now"},"targets":[{"target":"temperature"}]}`},
		{"empty target", `{"targets":[{"target":""}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := do(t, app, http.MethodPost, "/query", tt.body, nil)
			if resp.StatusCode != http.StatusBadRequest {
				t.Fatalf("expected status %d, got %d", http.StatusBadRequest, resp.StatusCode)
			}
			if !strings.Contains(body, `"error":true`) {
				t.Fatalf("expected error envelope, got %s", body)
			}
		})
	}
}

func TestCollectEndpoint(t *testing.T) {
	app, _, col := newTestApp(t, "")

	resp, body := do(t, app, http.MethodPost, "/collect", "", nil)
	if resp.StatusCode != http.StatusOK || !strings.Contains(body, `"success":true`) {
		t.Fatalf("expected success, got %d %s", resp.StatusCode, body)
	}
	if !strings.Contains(body, `"timestamp":1700000000000`) {
		t.Fatalf("expected millisecond timestamp, got %s", body)
	}

	col.err = errors.New("collection errors: weather: boom")
	resp, body = do(t, app, http.MethodPost, "/collect", "", nil)
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("expected status 500, got %d", resp.StatusCode)
	}
	if !strings.Contains(body, `"success":false`) || !strings.Contains(body, "weather: boom") {
		t.Fatalf("unexpected failure body %s", body)
	}
	if col.calls != 2 {
		t.Fatalf("expected 2 runs, got %d", col.calls)
	}
}

func TestLatestEndpoints(t *testing.T) {
	app, st, _ := newTestApp(t, "")

	resp, _ := do(t, app, http.MethodGet, "/api/v1/weather/latest", "", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected status 404 before any collection, got %d", resp.StatusCode)
	}

	_ = st.InsertIndoor(context.Background(), telemetry.IndoorSample{Timestamp: 1, DeviceID: "A", DeviceName: "Living", RawData: "secret"})
	resp, body := do(t, app, http.MethodGet, "/api/v1/indoor/latest", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.StatusCode)
	}
	if !strings.Contains(body, `"deviceName":"Living"`) || strings.Contains(body, "secret") {
		t.Fatalf("unexpected body %s", body)
	}
}

func TestBearerAuth(t *testing.T) {
	app, _, _ := newTestApp(t, "s3cret")

	resp, _ := do(t, app, http.MethodPost, "/search", "", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", resp.StatusCode)
	}
	if resp.Header.Get("WWW-Authenticate") != "Bearer" {
		t.Fatalf("expected WWW-Authenticate: Bearer, got %q", resp.Header.Get("WWW-Authenticate"))
	}

	resp, _ = do(t, app, http.MethodPost, "/search", "", map[string]string{"Authorization": "Bearer wrong"})
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected status 403, got %d", resp.StatusCode)
	}

	resp, _ = do(t, app, http.MethodPost, "/search", "", map[string]string{"Authorization": "Bearer s3cret"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.StatusCode)
	}

	resp, _ = do(t, app, http.MethodGet, "/health", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("health must stay public, got %d", resp.StatusCode)
	}
}

func TestCORSPreflight(t *testing.T) {
	app, _, _ := newTestApp(t, "s3cret")

	resp, _ := do(t, app, http.MethodOptions, "/query", "", map[string]string{
		"Origin":                        "http://grafana.local",
		"Access-Control-Request-Method": "POST",
	})
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("expected preflight status 204, got %d", resp.StatusCode)
	}
	if resp.Header.Get("Access-Control-Allow-Origin") != "*" {
		t.Fatalf("expected wildcard origin, got %q", resp.Header.Get("Access-Control-Allow-Origin"))
	}
}
