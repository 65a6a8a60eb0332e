package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/i474232898/climate-telemetry/internal/telemetry"
)

// MemoryStore is a concurrency-safe in-process implementation of
// telemetry.Store. Data does not survive a restart.
type MemoryStore struct {
	mu sync.RWMutex

	weather []telemetry.WeatherSample
	indoor  []telemetry.IndoorSample

	// max number of rows kept per table (0 = unlimited)
	maxHistory int
	now        func() time.Time
}

// NewMemoryStore creates a MemoryStore. If maxHistory is <= 0, it is treated
// as unlimited.
func NewMemoryStore(maxHistory int) *MemoryStore {
	return &MemoryStore{
		maxHistory: maxHistory,
		now:        time.Now,
	}
}

func (s *MemoryStore) InsertWeather(ctx context.Context, sample telemetry.WeatherSample) error {
	return s.InsertWeatherBatch(ctx, []telemetry.WeatherSample{sample})
}

func (s *MemoryStore) InsertWeatherBatch(ctx context.Context, samples []telemetry.WeatherSample) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.weather = trim(append(s.weather, samples...), s.maxHistory)
	return nil
}

func (s *MemoryStore) WeatherRange(ctx context.Context, fromMs, toMs int64) ([]telemetry.WeatherSample, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []telemetry.WeatherSample
	for _, w := range s.weather {
		if w.Timestamp >= fromMs && w.Timestamp <= toMs {
			out = append(out, w)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp > out[j].Timestamp })
	return out, nil
}

func (s *MemoryStore) LatestWeather(ctx context.Context) ([]telemetry.WeatherSample, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	latest := make(map[string]telemetry.WeatherSample)
	for _, w := range s.weather {
		if cur, ok := latest[w.LocationID]; !ok || w.Timestamp >= cur.Timestamp {
			latest[w.LocationID] = w
		}
	}
	out := make([]telemetry.WeatherSample, 0, len(latest))
	for _, w := range latest {
		out = append(out, w)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LocationID < out[j].LocationID })
	return out, nil
}

func (s *MemoryStore) DeleteWeatherOlderThan(ctx context.Context, days int) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	cutoff := cutoffMs(s.now(), days)

	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.weather[:0]
	var deleted int64
	for _, w := range s.weather {
		if w.Timestamp < cutoff {
			deleted++
			continue
		}
		kept = append(kept, w)
	}
	s.weather = kept
	return deleted, nil
}

func (s *MemoryStore) InsertIndoor(ctx context.Context, sample telemetry.IndoorSample) error {
	return s.InsertIndoorBatch(ctx, []telemetry.IndoorSample{sample})
}

func (s *MemoryStore) InsertIndoorBatch(ctx context.Context, samples []telemetry.IndoorSample) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.indoor = trim(append(s.indoor, samples...), s.maxHistory)
	return nil
}

func (s *MemoryStore) IndoorRange(ctx context.Context, fromMs, toMs int64) ([]telemetry.IndoorSample, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []telemetry.IndoorSample
	for _, r := range s.indoor {
		if r.Timestamp >= fromMs && r.Timestamp <= toMs {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp > out[j].Timestamp })
	return out, nil
}

func (s *MemoryStore) LatestIndoor(ctx context.Context) ([]telemetry.IndoorSample, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	latest := make(map[string]telemetry.IndoorSample)
	for _, r := range s.indoor {
		if cur, ok := latest[r.DeviceID]; !ok || r.Timestamp >= cur.Timestamp {
			latest[r.DeviceID] = r
		}
	}
	out := make([]telemetry.IndoorSample, 0, len(latest))
	for _, r := range latest {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DeviceName == out[j].DeviceName {
			return out[i].DeviceID < out[j].DeviceID
		}
		return out[i].DeviceName < out[j].DeviceName
	})
	return out, nil
}

func (s *MemoryStore) DeleteIndoorOlderThan(ctx context.Context, days int) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	cutoff := cutoffMs(s.now(), days)

	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.indoor[:0]
	var deleted int64
	for _, r := range s.indoor {
		if r.Timestamp < cutoff {
			deleted++
			continue
		}
		kept = append(kept, r)
	}
	s.indoor = kept
	return deleted, nil
}

// trim enforces retention by count, dropping the oldest inserted rows.
func trim[T any](rows []T, max int) []T {
	if max > 0 && len(rows) > max {
		over := len(rows) - max
		return append(rows[:0:0], rows[over:]...)
	}
	return rows
}

func cutoffMs(now time.Time, days int) int64 {
	return now.Add(-time.Duration(days) * 24 * time.Hour).UnixMilli()
}

var _ telemetry.Store = (*MemoryStore)(nil)
