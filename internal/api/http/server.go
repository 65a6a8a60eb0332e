package httpapi

import (
	"context"
	"crypto/subtle"
	"errors"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/keyauth"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/i474232898/climate-telemetry/internal/query"
	"github.com/i474232898/climate-telemetry/internal/result"
	"github.com/i474232898/climate-telemetry/internal/telemetry"
)

const serviceName = "climate-telemetry"

var errInvalidToken = errors.New("invalid token")

// Querier answers dashboard time-series queries.
type Querier interface {
	Query(ctx context.Context, rng query.Range, targets []string) []query.TimeSeries
}

// Collector triggers a collection run.
type Collector interface {
	Collect(ctx context.Context) result.Result[result.Unit]
}

// LatestReader returns the newest sample per location and per device.
type LatestReader interface {
	LatestWeather(ctx context.Context) ([]telemetry.WeatherSample, error)
	LatestIndoor(ctx context.Context) ([]telemetry.IndoorSample, error)
}

// Pinger is implemented by stores that can report their health.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Deps struct {
	Engine     Querier
	Collector  Collector
	Latest     LatestReader
	Pinger     Pinger // optional
	APIKey     string // empty disables authentication
	RunTimeout time.Duration
	Logger     *slog.Logger
	Now        func() time.Time
}

// NewApp builds the Fiber app with middleware and routes.
func NewApp(deps Deps) *fiber.App {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}

	app := fiber.New(fiber.Config{
		AppName:               serviceName,
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          60 * time.Second,
		ErrorHandler:          errorHandler(deps.Logger),
	})

	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Content-Type, Authorization",
	}))
	if deps.APIKey != "" {
		app.Use(bearerAuth(deps.APIKey))
	}

	RegisterRoutes(app, deps)
	return app
}

func errorHandler(log *slog.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		var e *fiber.Error
		if errors.As(err, &e) {
			code = e.Code
		}
		if code >= fiber.StatusInternalServerError {
			log.Error("Request failed", "method", c.Method(), "path", c.Path(), "err", err)
		}
		return c.Status(code).JSON(fiber.Map{
			"error":   true,
			"message": err.Error(),
		})
	}
}

// bearerAuth requires "Authorization: Bearer <apiKey>". A missing or
// malformed header yields 401, a wrong token 403.
func bearerAuth(apiKey string) fiber.Handler {
	return keyauth.New(keyauth.Config{
		Next: func(c *fiber.Ctx) bool {
			return c.Path() == "/health" || c.Method() == fiber.MethodOptions
		},
		KeyLookup:  "header:" + fiber.HeaderAuthorization,
		AuthScheme: "Bearer",
		Validator: func(c *fiber.Ctx, key string) (bool, error) {
			if subtle.ConstantTimeCompare([]byte(key), []byte(apiKey)) == 1 {
				return true, nil
			}
			return false, errInvalidToken
		},
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			if errors.Is(err, errInvalidToken) {
				return c.Status(fiber.StatusForbidden).SendString("Invalid token")
			}
			c.Set(fiber.HeaderWWWAuthenticate, "Bearer")
			return c.Status(fiber.StatusUnauthorized).SendString("Unauthorized")
		},
	})
}
