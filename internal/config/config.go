package config

import (
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Port         int    `envconfig:"PORT" default:"7878"`
	ServerURL    string `envconfig:"SERVER_URL" default:"http://localhost:8080"`
	SessionToken string `envconfig:"SESSION_TOKEN" default:""`
	JWTSecret    string `envconfig:"JWT_SECRET" default:"dev-secret-change-in-production"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
