package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/i474232898/climate-telemetry/internal/fetch"
	"github.com/i474232898/climate-telemetry/internal/result"
	"github.com/i474232898/climate-telemetry/internal/telemetry"
)

const openWeatherURL = "https://api.openweathermap.org/data/2.5/weather"

// OpenWeatherPayload is the subset of the current-weather response we keep.
// Mandatory blocks are pointers so a missing block can be told apart from a
// zero value.
type OpenWeatherPayload struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Coord *struct {
		Lat float64 `json:"lat"`
		Lon float64 `json:"lon"`
	} `json:"coord"`
	Weather []struct {
		Main        string `json:"main"`
		Description string `json:"description"`
	} `json:"weather"`
	Main *struct {
		Temp      float64 `json:"temp"`
		FeelsLike float64 `json:"feels_like"`
		TempMin   float64 `json:"temp_min"`
		TempMax   float64 `json:"temp_max"`
		Pressure  float64 `json:"pressure"`
		Humidity  float64 `json:"humidity"`
	} `json:"main"`
	Visibility float64 `json:"visibility"`
	Wind       *struct {
		Speed float64 `json:"speed"`
		Deg   float64 `json:"deg"`
	} `json:"wind"`
	Clouds *struct {
		All float64 `json:"all"`
	} `json:"clouds"`
	Dt  *int64 `json:"dt"`
	Sys struct {
		Sunrise int64 `json:"sunrise"`
		Sunset  int64 `json:"sunset"`
	} `json:"sys"`
}

func (p OpenWeatherPayload) missing() string {
	switch {
	case p.Coord == nil:
		return "coord"
	case p.Main == nil:
		return "main"
	case p.Dt == nil:
		return "dt"
	case p.Weather == nil:
		return "weather"
	case p.Wind == nil:
		return "wind"
	case p.Clouds == nil:
		return "clouds"
	}
	return ""
}

// ParseOpenWeather decodes body and checks the mandatory blocks.
func ParseOpenWeather(body []byte) (OpenWeatherPayload, error) {
	var p OpenWeatherPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return OpenWeatherPayload{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if field := p.missing(); field != "" {
		return OpenWeatherPayload{}, fmt.Errorf("%w: missing %q", ErrInvalidPayload, field)
	}
	return p, nil
}

// NormalizeWeather converts a validated payload into a sample. Seconds become
// milliseconds, zero sunrise/sunset become absent and an empty weather list
// yields the Unknown condition.
func NormalizeWeather(p OpenWeatherPayload, locationID string, raw []byte) (telemetry.WeatherSample, error) {
	if field := p.missing(); field != "" {
		return telemetry.WeatherSample{}, fmt.Errorf("%w: missing %q", ErrInvalidPayload, field)
	}

	if locationID == "" {
		if p.ID != 0 {
			locationID = strconv.FormatInt(p.ID, 10)
		} else {
			locationID = fmt.Sprintf("%g,%g", p.Coord.Lat, p.Coord.Lon)
		}
	}

	s := telemetry.WeatherSample{
		Timestamp:   *p.Dt * 1000,
		LocationID:  locationID,
		Latitude:    p.Coord.Lat,
		Longitude:   p.Coord.Lon,
		Temperature: p.Main.Temp,
		FeelsLike:   p.Main.FeelsLike,
		TempMin:     p.Main.TempMin,
		TempMax:     p.Main.TempMax,
		Humidity:    p.Main.Humidity,
		Pressure:    p.Main.Pressure,
		WindSpeed:   p.Wind.Speed,
		WindDeg:     p.Wind.Deg,
		WeatherMain: telemetry.UnknownCondition,
		Visibility:  p.Visibility,
		Cloudiness:  p.Clouds.All,
		Sunrise:     secondsToMillis(p.Sys.Sunrise),
		Sunset:      secondsToMillis(p.Sys.Sunset),
		RawData:     string(raw),
	}
	if len(p.Weather) > 0 {
		if p.Weather[0].Main != "" {
			s.WeatherMain = p.Weather[0].Main
		}
		s.WeatherDescription = p.Weather[0].Description
	}
	return s, nil
}

func secondsToMillis(sec int64) *int64 {
	if sec == 0 {
		return nil
	}
	ms := sec * 1000
	return &ms
}

// OpenWeatherClient implements telemetry.WeatherProvider for OpenWeatherMap.
type OpenWeatherClient struct {
	apiKey  string
	baseURL string
	fetcher *fetch.Fetcher
	cfg     fetch.Config
}

func NewOpenWeatherClient(client *http.Client, apiKey string, cfg fetch.Config) *OpenWeatherClient {
	return &OpenWeatherClient{
		apiKey:  apiKey,
		baseURL: openWeatherURL,
		fetcher: fetch.New(client, fetch.WithBreaker(fetch.NewBreaker("openweather"))),
		cfg:     cfg,
	}
}

func (c *OpenWeatherClient) Name() string {
	return "openweathermap"
}

// URL builds the metric, Japanese-language current weather query.
func (c *OpenWeatherClient) URL(loc telemetry.Location) string {
	values := url.Values{}
	values.Set("lat", strconv.FormatFloat(loc.Latitude, 'f', -1, 64))
	values.Set("lon", strconv.FormatFloat(loc.Longitude, 'f', -1, 64))
	values.Set("appid", c.apiKey)
	values.Set("units", "metric")
	values.Set("lang", "ja")
	return c.baseURL + "?" + values.Encode()
}

func (c *OpenWeatherClient) Current(ctx context.Context, loc telemetry.Location) result.Result[telemetry.WeatherSample] {
	if c.apiKey == "" {
		return result.Err[telemetry.WeatherSample](fmt.Errorf("openweather api key is not configured"))
	}

	resp, err := c.fetcher.Get(ctx, c.URL(loc), c.cfg).Get()
	if err != nil {
		return result.Err[telemetry.WeatherSample](err)
	}
	if err := resp.StatusError(); err != nil {
		return result.Err[telemetry.WeatherSample](fmt.Errorf("weather api error: %w", err))
	}

	payload, err := ParseOpenWeather(resp.Body)
	if err != nil {
		return result.Err[telemetry.WeatherSample](err)
	}
	return result.Of(NormalizeWeather(payload, loc.ID, resp.Body))
}

var _ telemetry.WeatherProvider = (*OpenWeatherClient)(nil)
