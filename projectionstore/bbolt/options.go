package bbolt

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Options configures a bbolt-backed projection store.
type Options struct {
	// Path is the location of the database file.
	Path string `env:"LEDGERSTREAM_PROJECTION_PATH"`
	// OpenTimeout bounds the wait for the file lock.
	OpenTimeout time.Duration `env:"LEDGERSTREAM_PROJECTION_OPEN_TIMEOUT" envDefault:"1s"`
}

// OptionsFromEnv loads projection store options from environment variables.
func OptionsFromEnv() (Options, error) {
	var opts Options
	if err := env.Parse(&opts); err != nil {
		return Options{}, fmt.Errorf("parse env: %w", err)
	}
	return opts, nil
}
