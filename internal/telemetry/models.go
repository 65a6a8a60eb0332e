package telemetry

// UnknownCondition is stored when the provider reports no weather condition.
const UnknownCondition = "Unknown"

// WeatherSample is the normalized outdoor observation. Timestamps are
// milliseconds since the Unix epoch, UTC.
type WeatherSample struct {
	Timestamp          int64   `json:"timestamp"`
	LocationID         string  `json:"locationId"`
	Latitude           float64 `json:"latitude"`
	Longitude          float64 `json:"longitude"`
	Temperature        float64 `json:"temperature"`
	FeelsLike          float64 `json:"feelsLike"`
	TempMin            float64 `json:"tempMin"`
	TempMax            float64 `json:"tempMax"`
	Humidity           float64 `json:"humidity"`
	Pressure           float64 `json:"pressure"`
	WindSpeed          float64 `json:"windSpeed"`
	WindDeg            float64 `json:"windDeg"`
	WeatherMain        string  `json:"weatherMain"`
	WeatherDescription string  `json:"weatherDescription"`
	Visibility         float64 `json:"visibility"`
	Cloudiness         float64 `json:"cloudiness"`
	Sunrise            *int64  `json:"sunrise,omitempty"`
	Sunset             *int64  `json:"sunset,omitempty"`

	// RawData is the provider payload kept for audit.
	RawData string `json:"-"`
}

// IndoorSample is one device reading. All samples of a collection run share
// the same Timestamp.
type IndoorSample struct {
	Timestamp   int64    `json:"timestamp"`
	DeviceID    string   `json:"deviceId"`
	DeviceName  string   `json:"deviceName"`
	Temperature float64  `json:"temperature"`
	Humidity    float64  `json:"humidity"`
	Battery     *float64 `json:"battery,omitempty"`

	RawData string `json:"-"`
}

// Location is a validated outdoor collection point.
type Location struct {
	ID        string
	Name      string
	Latitude  float64
	Longitude float64
}
