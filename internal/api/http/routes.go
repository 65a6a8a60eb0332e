package httpapi

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/i474232898/climate-telemetry/internal/common"
	"github.com/i474232898/climate-telemetry/internal/query"
)

var validate = validator.New()

// RegisterRoutes wires the HTTP handlers into the Fiber app.
func RegisterRoutes(app *fiber.App, deps Deps) {
	h := &handlers{deps: deps}

	// dashboard JSON datasource
	app.Get("/", h.root)
	app.Post("/search", h.search)
	app.Post("/query", h.query)

	app.Get("/health", h.health)
	app.Post("/collect", h.collect)

	v1 := app.Group("/api/v1")
	v1.Get("/weather/latest", h.latestWeather)
	v1.Get("/indoor/latest", h.latestIndoor)
}

type handlers struct {
	deps Deps
}

func (h *handlers) root(c *fiber.Ctx) error {
	return c.SendString("OK")
}

func (h *handlers) health(c *fiber.Ctx) error {
	status, code := "ok", fiber.StatusOK
	if h.deps.Pinger != nil {
		if err := h.deps.Pinger.Ping(c.UserContext()); err != nil {
			h.deps.Logger.Error("Store ping failed", "err", err)
			status, code = "degraded", fiber.StatusServiceUnavailable
		}
	}
	return c.Status(code).JSON(fiber.Map{
		"status":  status,
		"service": serviceName,
		"time":    common.FormatMillis(h.deps.Now().UnixMilli()),
	})
}

func (h *handlers) search(c *fiber.Ctx) error {
	return c.JSON(query.Metrics())
}

type queryTarget struct {
	Target string `json:"target" validate:"required"`
}

type queryRequest struct {
	Range *struct {
		From string `json:"from"`
		To   string `json:"to"`
	} `json:"range"`
	Targets []queryTarget `json:"targets" validate:"dive"`
}

// bind decodes and validates the body and resolves the time range.
func (r *queryRequest) bind(c *fiber.Ctx, now time.Time) (query.Range, error) {
	if err := json.Unmarshal(c.Body(), r); err != nil {
		return query.Range{}, fiber.NewError(fiber.StatusBadRequest, "invalid request body: "+err.Error())
	}
	if err := validate.Struct(r); err != nil {
		return query.Range{}, fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	var from, to *time.Time
	if r.Range != nil {
		var err error
		if from, err = optionalTime(r.Range.From); err != nil {
			return query.Range{}, err
		}
		if to, err = optionalTime(r.Range.To); err != nil {
			return query.Range{}, err
		}
	}
	return query.ResolveRange(now, from, to), nil
}

func optionalTime(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	t, err := common.ParseTime(raw)
	if err != nil {
		return nil, fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	return &t, nil
}

func (h *handlers) query(c *fiber.Ctx) error {
	var req queryRequest
	rng, err := req.bind(c, h.deps.Now())
	if err != nil {
		return err
	}

	targets := make([]string, 0, len(req.Targets))
	for _, t := range req.Targets {
		targets = append(targets, t.Target)
	}
	return c.JSON(h.deps.Engine.Query(c.UserContext(), rng, targets))
}

func (h *handlers) collect(c *fiber.Ctx) error {
	ctx := c.UserContext()
	if h.deps.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.deps.RunTimeout)
		defer cancel()
	}

	if err := h.deps.Collector.Collect(ctx).Err(); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success":   false,
			"error":     err.Error(),
			"timestamp": h.deps.Now().UnixMilli(),
		})
	}
	return c.JSON(fiber.Map{
		"success":   true,
		"message":   "Data collected successfully",
		"timestamp": h.deps.Now().UnixMilli(),
	})
}

func (h *handlers) latestWeather(c *fiber.Ctx) error {
	rows, err := h.deps.Latest.LatestWeather(c.UserContext())
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "failed to fetch weather data")
	}
	if len(rows) == 0 {
		return fiber.NewError(fiber.StatusNotFound, "no weather data collected yet")
	}
	return c.JSON(rows)
}

func (h *handlers) latestIndoor(c *fiber.Ctx) error {
	rows, err := h.deps.Latest.LatestIndoor(c.UserContext())
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "failed to fetch indoor sensor data")
	}
	if len(rows) == 0 {
		return fiber.NewError(fiber.StatusNotFound, "no indoor sensor data collected yet")
	}
	return c.JSON(rows)
}
