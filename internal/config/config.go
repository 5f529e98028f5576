package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config captures the tunables of the API process. Values come from the
// environment with defaults that work in local docker-compose.
type Config struct {
	Port     string
	RedisURL string

	// OfferWindow bounds how long one candidate driver may sit on an offer.
	OfferWindow time.Duration
	// NearbyRadiusKm limits the rider-facing nearby-drivers query.
	NearbyRadiusKm float64
}

func Load() (Config, error) {
	cfg := Config{
		Port:           "8080",
		RedisURL:       "redis://redis:6379",
		OfferWindow:    5 * time.Minute,
		NearbyRadiusKm: 10,
	}

	if v := os.Getenv("PORT"); v != "" {
		cfg.Port = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.RedisURL = v
	}
	if v := os.Getenv("OFFER_WINDOW"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return cfg, fmt.Errorf("invalid OFFER_WINDOW: %w", err)
		}
		cfg.OfferWindow = d
	}
	if v := os.Getenv("NEARBY_RADIUS_KM"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return cfg, fmt.Errorf("invalid NEARBY_RADIUS_KM: %w", err)
		}
		cfg.NearbyRadiusKm = f
	}

	if cfg.OfferWindow <= 0 {
		return cfg, fmt.Errorf("OFFER_WINDOW must be positive")
	}
	return cfg, nil
}
