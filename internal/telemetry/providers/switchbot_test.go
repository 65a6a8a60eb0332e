package providers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestSign(t *testing.T) {
	got := Sign("token", "secret", 1700000000000, "nonce")
	if got != Sign("token", "secret", 1700000000000, "nonce") {
		t.Fatalf("signature must be deterministic")
	}
	if got == Sign("token", "secret", 1700000000001, "nonce") {
		t.Fatalf("signature must depend on t")
	}
	if got == Sign("token", "other", 1700000000000, "nonce") {
		t.Fatalf("signature must depend on the secret")
	}
	if len(got) != 44 {
		t.Fatalf("expected a base64 encoded sha256 digest, got %q", got)
	}
}

type fakeSwitchBot struct {
	mu       sync.Mutex
	failFor  map[string]bool
	statuses map[string]string
	devices  string
	headers  []http.Header
}

func (f *fakeSwitchBot) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.headers = append(f.headers, r.Header.Clone())
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if r.URL.Path == "/v1.1/devices" {
		w.Write([]byte(f.devices))
		return
	}
	id := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/v1.1/devices/"), "/status")
	if f.failFor[id] {
		w.Write([]byte(`{"statusCode":190,"message":"device internal error","body":{}}`))
		return
	}
	w.Write([]byte(f.statuses[id]))
}

func newTestSwitchBot(t *testing.T, fake *fakeSwitchBot) *SwitchBotClient {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	c := NewSwitchBotClient(nil, srv.Client(), "token", "secret", 0, testFetchConfig())
	c.baseURL = srv.URL
	c.now = func() time.Time { return time.UnixMilli(1700000000000) }
	c.nonce = func() string { return "fixed-nonce" }
	return c
}

func TestSwitchBotReadings(t *testing.T) {
	fake := &fakeSwitchBot{
		devices: `{"statusCode":100,"message":"success","body":{"deviceList":[
			{"deviceId":"A","deviceName":"Living","deviceType":"Meter"},
			{"deviceId":"B","deviceName":"Bedroom","deviceType":"WoIOSensor"},
			{"deviceId":"C","deviceName":"Curtain","deviceType":"Curtain"},
			{"deviceId":"D","deviceName":"Study","deviceType":"MeterPlus"}
		]}}`,
		statuses: map[string]string{
			"A": `{"statusCode":100,"message":"success","body":{"deviceId":"A","temperature":21.5,"humidity":40,"battery":90}}`,
			"B": `{"statusCode":100,"message":"success","body":{"deviceId":"B","temperature":19,"humidity":55}}`,
		},
		failFor: map[string]bool{"D": true},
	}
	c := newTestSwitchBot(t, fake)

	samples, err := c.Readings(context.Background()).Get()
	if err != nil {
		t.Fatalf("Readings: %v", err)
	}
	if len(samples) != 2 {
		t.Fatalf("expected 2 samples (curtain filtered, D dropped), got %d", len(samples))
	}
	if samples[0].DeviceID != "A" || samples[1].DeviceID != "B" {
		t.Fatalf("expected device order to be kept, got %+v", samples)
	}
	for _, s := range samples {
		if s.Timestamp != 1700000000000 {
			t.Fatalf("every sample of a run shares one timestamp, got %d", s.Timestamp)
		}
	}
	if samples[0].Battery == nil || *samples[0].Battery != 90 {
		t.Fatalf("expected battery 90, got %v", samples[0].Battery)
	}
	if samples[1].Battery != nil {
		t.Fatalf("battery must be absent when not reported")
	}
	if samples[0].DeviceName != "Living" || samples[0].Temperature != 21.5 {
		t.Fatalf("unexpected sample %+v", samples[0])
	}

	h := fake.headers[0]
	if h.Get("Authorization") != "token" || h.Get("nonce") != "fixed-nonce" || h.Get("t") != "1700000000000" {
		t.Fatalf("unexpected auth headers: %v", h)
	}
	if h.Get("sign") != Sign("token", "secret", 1700000000000, "fixed-nonce") {
		t.Fatalf("unexpected signature %q", h.Get("sign"))
	}
}

func TestSwitchBotNoMeters(t *testing.T) {
	c := newTestSwitchBot(t, &fakeSwitchBot{
		devices: `{"statusCode":100,"message":"success","body":{"deviceList":[{"deviceId":"C","deviceName":"Curtain","deviceType":"Curtain"}]}}`,
	})
	samples, err := c.Readings(context.Background()).Get()
	if err != nil {
		t.Fatalf("Readings: %v", err)
	}
	if len(samples) != 0 {
		t.Fatalf("expected no samples, got %d", len(samples))
	}
}

func TestSwitchBotListingError(t *testing.T) {
	c := newTestSwitchBot(t, &fakeSwitchBot{
		devices: `{"statusCode":401,"message":"Unauthorized","body":{}}`,
	})
	_, err := c.Readings(context.Background()).Get()
	if !errors.Is(err, ErrUpstream) {
		t.Fatalf("expected ErrUpstream, got %v", err)
	}
	if !strings.Contains(err.Error(), "Unauthorized") {
		t.Fatalf("expected upstream message in error, got %v", err)
	}
}

func TestDeviceIsMeter(t *testing.T) {
	for typ, want := range map[string]bool{
		"Meter": true, "MeterPlus": true, "WoIOSensor": true, "Hub Mini": false, "": false,
	} {
		if got := (Device{DeviceType: typ}).IsMeter(); got != want {
			t.Errorf("IsMeter(%q) = %v, want %v", typ, got, want)
		}
	}
}

func TestSwitchBotDropsIncompleteStatus(t *testing.T) {
	c := newTestSwitchBot(t, &fakeSwitchBot{
		devices: `{"statusCode":100,"message":"success","body":{"deviceList":[
			{"deviceId":"A","deviceName":"Living","deviceType":"Meter"},
			{"deviceId":"B","deviceName":"Bedroom","deviceType":"Meter"}
		]}}`,
		statuses: map[string]string{
			"A": `{"statusCode":100,"message":"success","body":{"deviceId":"A"}}`,
			"B": `{"statusCode":100,"message":"success","body":{"deviceId":"B","temperature":0,"humidity":0}}`,
		},
	})

	samples, err := c.Readings(context.Background()).Get()
	if err != nil {
		t.Fatalf("Readings: %v", err)
	}
	if len(samples) != 1 || samples[0].DeviceID != "B" {
		t.Fatalf("expected only device B (explicit zeros are valid), got %+v", samples)
	}
}

func TestSwitchBotMissingDeviceList(t *testing.T) {
	c := newTestSwitchBot(t, &fakeSwitchBot{
		devices: `{"statusCode":100,"message":"success","body":{}}`,
	})
	_, err := c.Readings(context.Background()).Get()
	if !errors.Is(err, ErrInvalidPayload) {
		t.Fatalf("expected ErrInvalidPayload, got %v", err)
	}
}

func TestSwitchBotEmptyDeviceList(t *testing.T) {
	c := newTestSwitchBot(t, &fakeSwitchBot{
		devices: `{"statusCode":100,"message":"success","body":{"deviceList":[]}}`,
	})
	samples, err := c.Readings(context.Background()).Get()
	if err != nil {
		t.Fatalf("an empty device list is valid, got %v", err)
	}
	if len(samples) != 0 {
		t.Fatalf("expected no samples, got %d", len(samples))
	}
}

func TestNormalizeIndoor(t *testing.T) {
	temp, hum := 21.5, 40.0
	device := Device{DeviceID: "A", DeviceName: "Living", DeviceType: "Meter"}

	tests := []struct {
		name    string
		device  Device
		status  DeviceStatus
		wantErr bool
	}{
		{"complete", device, DeviceStatus{Temperature: &temp, Humidity: &hum}, false},
		{"missing device id", Device{DeviceName: "Living"}, DeviceStatus{Temperature: &temp, Humidity: &hum}, true},
		{"missing temperature", device, DeviceStatus{Humidity: &hum}, true},
		{"missing humidity", device, DeviceStatus{Temperature: &temp}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := NormalizeIndoor(tt.device, tt.status, []byte(`{}`), 1700000000000)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidPayload) {
					t.Fatalf("expected ErrInvalidPayload, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("NormalizeIndoor: %v", err)
			}
			if s.Temperature != 21.5 || s.Humidity != 40 || s.Timestamp != 1700000000000 || s.RawData != `{}` {
				t.Fatalf("unexpected sample %+v", s)
			}
		})
	}
}
