package bbolt

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Durability selects how aggressively commits are synced to disk.
type Durability int

const (
	// MaxDurability fsyncs data and metadata on every commit. Slowest, safest.
	MaxDurability Durability = iota
	// Balanced fsyncs data but skips the freelist metadata sync.
	Balanced
	// MaxPerformance skips both data and metadata syncing. Fastest; a crash
	// can lose the most recent commits, but never corrupts older data because
	// the log format is append-only.
	MaxPerformance
)

// UnmarshalText implements encoding.TextUnmarshaler so Durability can be set
// from environment variables.
func (d *Durability) UnmarshalText(text []byte) error {
	switch string(text) {
	case "max_durability":
		*d = MaxDurability
	case "balanced":
		*d = Balanced
	case "max_performance":
		*d = MaxPerformance
	default:
		return fmt.Errorf("unknown durability mode %q", text)
	}
	return nil
}

func (d Durability) String() string {
	switch d {
	case MaxDurability:
		return "max_durability"
	case Balanced:
		return "balanced"
	case MaxPerformance:
		return "max_performance"
	default:
		return fmt.Sprintf("durability(%d)", int(d))
	}
}

// Options configures a bbolt-backed event log.
type Options struct {
	// Path is the location of the database file.
	Path string `env:"LEDGERSTREAM_EVENTLOG_PATH"`
	// Durability selects the commit sync policy.
	Durability Durability `env:"LEDGERSTREAM_EVENTLOG_DURABILITY" envDefault:"max_durability"`
	// InitialMapSize pre-sizes the memory map in bytes. The effective size is
	// max(InitialMapSize, existing file size * 1.5), capped at MaxMapSize.
	InitialMapSize int64 `env:"LEDGERSTREAM_EVENTLOG_INITIAL_MAP_SIZE" envDefault:"33554432"`
	// OpenTimeout bounds the wait for the file lock.
	OpenTimeout time.Duration `env:"LEDGERSTREAM_EVENTLOG_OPEN_TIMEOUT" envDefault:"1s"`
}

// OptionsFromEnv loads event log options from environment variables.
func OptionsFromEnv() (Options, error) {
	var opts Options
	if err := env.Parse(&opts); err != nil {
		return Options{}, fmt.Errorf("parse env: %w", err)
	}
	return opts, nil
}
