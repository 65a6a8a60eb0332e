package providers

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/i474232898/climate-telemetry/internal/fetch"
	"github.com/i474232898/climate-telemetry/internal/result"
	"github.com/i474232898/climate-telemetry/internal/telemetry"
)

const (
	switchBotURL = "https://api.switch-bot.com"

	// switchBotOK is the application status code of a successful call.
	switchBotOK = 100

	statusConcurrency = 4
)

// meterTypes are the device types that report temperature and humidity.
var meterTypes = map[string]bool{
	"Meter":      true,
	"MeterPlus":  true,
	"WoIOSensor": true,
}

type Device struct {
	DeviceID    string `json:"deviceId"`
	DeviceName  string `json:"deviceName"`
	DeviceType  string `json:"deviceType"`
	HubDeviceID string `json:"hubDeviceId,omitempty"`
}

type DeviceStatus struct {
	DeviceID    string   `json:"deviceId"`
	DeviceType  string   `json:"deviceType"`
	HubDeviceID string   `json:"hubDeviceId,omitempty"`
	Temperature *float64 `json:"temperature"`
	Humidity    *float64 `json:"humidity"`
	Battery     *float64 `json:"battery,omitempty"`
}

type envelope[T any] struct {
	StatusCode int    `json:"statusCode"`
	Message    string `json:"message"`
	Body       T      `json:"body"`
}

type deviceList struct {
	DeviceList *[]Device `json:"deviceList"`
}

// IsMeter reports whether d is a thermo-hygrometer.
func (d Device) IsMeter() bool {
	return meterTypes[d.DeviceType]
}

// Sign computes the v1.1 request signature: base64(HMAC-SHA256(secret, token+t+nonce)).
func Sign(token, secret string, t int64, nonce string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(token + strconv.FormatInt(t, 10) + nonce))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// NormalizeIndoor joins a device with its status. Every device of one run
// shares ts.
func NormalizeIndoor(d Device, st DeviceStatus, raw []byte, ts int64) (telemetry.IndoorSample, error) {
	switch {
	case d.DeviceID == "":
		return telemetry.IndoorSample{}, fmt.Errorf("%w: missing device id", ErrInvalidPayload)
	case st.Temperature == nil:
		return telemetry.IndoorSample{}, fmt.Errorf("%w: device %s: missing temperature", ErrInvalidPayload, d.DeviceID)
	case st.Humidity == nil:
		return telemetry.IndoorSample{}, fmt.Errorf("%w: device %s: missing humidity", ErrInvalidPayload, d.DeviceID)
	}
	return telemetry.IndoorSample{
		Timestamp:   ts,
		DeviceID:    d.DeviceID,
		DeviceName:  d.DeviceName,
		Temperature: *st.Temperature,
		Humidity:    *st.Humidity,
		Battery:     st.Battery,
		RawData:     string(raw),
	}, nil
}

// SwitchBotClient implements telemetry.IndoorProvider for the SwitchBot cloud.
type SwitchBotClient struct {
	token   string
	secret  string
	baseURL string
	fetcher *fetch.Fetcher
	cfg     fetch.Config
	logger  *slog.Logger
	now     func() time.Time
	nonce   func() string
}

// NewSwitchBotClient creates a client that issues at most rps requests per
// second across all of its calls.
func NewSwitchBotClient(logger *slog.Logger, client *http.Client, token, secret string, rps float64, cfg fetch.Config) *SwitchBotClient {
	if logger == nil {
		logger = slog.Default()
	}
	opts := []fetch.Option{fetch.WithBreaker(fetch.NewBreaker("switchbot"))}
	if rps > 0 {
		opts = append(opts, fetch.WithLimiter(rate.NewLimiter(rate.Limit(rps), 1)))
	}
	return &SwitchBotClient{
		token:   token,
		secret:  secret,
		baseURL: switchBotURL,
		fetcher: fetch.New(client, opts...),
		cfg:     cfg,
		logger:  logger,
		now:     time.Now,
		nonce:   func() string { return uuid.NewString() },
	}
}

func (c *SwitchBotClient) Name() string {
	return "switchbot"
}

func (c *SwitchBotClient) authorize(req *http.Request) {
	t := c.now().UnixMilli()
	nonce := c.nonce()
	req.Header.Set("Authorization", c.token)
	req.Header.Set("sign", Sign(c.token, c.secret, t, nonce))
	req.Header.Set("t", strconv.FormatInt(t, 10))
	req.Header.Set("nonce", nonce)
	req.Header.Set("Content-Type", "application/json")
}

// get performs a signed GET and unwraps the response envelope into out. It
// returns the raw body.
func get[T any](ctx context.Context, c *SwitchBotClient, path string, out *T) ([]byte, error) {
	build := func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
		if err != nil {
			return nil, err
		}
		// signed per attempt so t stays fresh across retries
		c.authorize(req)
		return req, nil
	}

	resp, err := c.fetcher.Do(ctx, build, c.cfg).Get()
	if err != nil {
		return nil, err
	}
	if err := resp.StatusError(); err != nil {
		return nil, fmt.Errorf("switchbot api request failed: %w", err)
	}

	var env envelope[T]
	if err := json.Unmarshal(resp.Body, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if env.StatusCode != switchBotOK {
		return nil, fmt.Errorf("%w: switchbot: %s (statusCode %d)", ErrUpstream, env.Message, env.StatusCode)
	}
	*out = env.Body
	return resp.Body, nil
}

// Devices lists every device registered to the account.
func (c *SwitchBotClient) Devices(ctx context.Context) ([]Device, error) {
	var body deviceList
	if _, err := get(ctx, c, "/v1.1/devices", &body); err != nil {
		return nil, err
	}
	if body.DeviceList == nil {
		return nil, fmt.Errorf("%w: missing body.deviceList", ErrInvalidPayload)
	}
	return *body.DeviceList, nil
}

// Status fetches the current status of a single device.
func (c *SwitchBotClient) Status(ctx context.Context, deviceID string) (DeviceStatus, []byte, error) {
	var st DeviceStatus
	raw, err := get(ctx, c, "/v1.1/devices/"+url.PathEscape(deviceID)+"/status", &st)
	if err != nil {
		return DeviceStatus{}, nil, err
	}
	return st, raw, nil
}

// Readings returns one sample per meter device. A device whose status cannot
// be fetched or is incomplete is logged and left out; only a failed device listing fails the
// call.
func (c *SwitchBotClient) Readings(ctx context.Context) result.Result[[]telemetry.IndoorSample] {
	devices, err := c.Devices(ctx)
	if err != nil {
		return result.Err[[]telemetry.IndoorSample](err)
	}

	var meters []Device
	for _, d := range devices {
		if d.IsMeter() {
			meters = append(meters, d)
		}
	}
	if len(meters) == 0 {
		return result.Ok([]telemetry.IndoorSample{})
	}

	ts := c.now().UnixMilli()
	samples := make([]*telemetry.IndoorSample, len(meters))

	var g errgroup.Group
	g.SetLimit(statusConcurrency)
	for i, d := range meters {
		i, d := i, d
		g.Go(func() error {
			st, raw, err := c.Status(ctx, d.DeviceID)
			if err != nil {
				c.logger.Error("Failed to fetch device status", "device_id", d.DeviceID, "err", err)
				return nil
			}
			s, err := NormalizeIndoor(d, st, raw, ts)
			if err != nil {
				c.logger.Error("Dropping invalid device status", "device_id", d.DeviceID, "err", err)
				return nil
			}
			samples[i] = &s
			return nil
		})
	}
	_ = g.Wait()

	out := make([]telemetry.IndoorSample, 0, len(meters))
	for _, s := range samples {
		if s != nil {
			out = append(out, *s)
		}
	}
	return result.Ok(out)
}

var _ telemetry.IndoorProvider = (*SwitchBotClient)(nil)
