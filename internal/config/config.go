package config

import (
	"log"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Settings struct {
	ListenAddr   string `envconfig:"LISTEN_ADDR" default:":9999"`
	DatabasePath string `envconfig:"DATABASE_PATH" default:"/app/data/termfleet.db"`
	LogPath      string `envconfig:"LOG_PATH" default:""`
	Environment  string `envconfig:"ENVIRONMENT" default:"development"`

	// Terminal settings
	DefaultShell string `envconfig:"DEFAULT_SHELL" default:""`
	PTYCols      uint16 `envconfig:"PTY_COLS" default:"120"`
	PTYRows      uint16 `envconfig:"PTY_ROWS" default:"30"`

	// Cleanup settings
	SessionMaxAge   time.Duration `envconfig:"SESSION_MAX_AGE" default:"24h"`
	CommandMaxAge   time.Duration `envconfig:"COMMAND_MAX_AGE" default:"168h"`
	CleanupSchedule string        `envconfig:"CLEANUP_SCHEDULE" default:"@hourly"`
}

var Cfg Settings

func Load() {
	if err := envconfig.Process("TERMFLEET", &Cfg); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
}

// IsProduction reports whether the server runs with production error
// reporting (generic messages for operational failures).
func IsProduction() bool {
	return Cfg.Environment == "production"
}
