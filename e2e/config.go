package e2e

import (
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// SERVER_URL is the HTTP base of a running server, the suites skip without it
	ServerURL string `envconfig:"SERVER_URL"`
	AdminAddr string `envconfig:"ADMIN_ADDR" default:"localhost:9090"`
	Group     string `envconfig:"E2E_GROUP" default:"lobby"`
	// E2E_DEBUG_JSON allows dumping full gRPC request/response bodies as JSON
	DebugJSON bool `envconfig:"E2E_DEBUG_JSON" default:"false"`
	// E2E_COLOURS enables colorized output for better log readability
	Colours bool `envconfig:"E2E_COLOURS" default:"true"`
}

func LoadConfig() (Config, error) {
	var cfg Config
	err := envconfig.Process("", &cfg)
	return cfg, err
}
