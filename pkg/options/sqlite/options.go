// Package sqlite provides options for the file-backed vector store.
package sqlite

import (
	"fmt"
	"time"

	"github.com/kart-io/qgpt/pkg/options"
	"github.com/spf13/pflag"
)

var _ options.IOptions = (*Options)(nil)

// Options contains SQLite connection configuration.
type Options struct {
	// BusyTimeout is how long a connection waits on a locked database.
	BusyTimeout time.Duration `json:"busy-timeout" mapstructure:"busy-timeout"`

	// JournalMode is the SQLite journal mode (WAL, DELETE, ...).
	JournalMode string `json:"journal-mode" mapstructure:"journal-mode"`

	// MaxOpenConns caps open connections per database file.
	MaxOpenConns int `json:"max-open-conns" mapstructure:"max-open-conns"`

	// LogLevel is the GORM log level (1=silent, 2=error, 3=warn, 4=info).
	LogLevel int `json:"log-level" mapstructure:"log-level"`
}

// NewOptions creates new Options with defaults.
func NewOptions() *Options {
	return &Options{
		BusyTimeout:  5 * time.Second,
		JournalMode:  "WAL",
		MaxOpenConns: 1,
		LogLevel:     1,
	}
}

// AddFlags adds flags to the flagset.
func (o *Options) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	p := options.Join(prefixes...) + "sqlite."
	fs.DurationVar(&o.BusyTimeout, p+"busy-timeout", o.BusyTimeout, "Wait time on a locked database file.")
	fs.StringVar(&o.JournalMode, p+"journal-mode", o.JournalMode, "SQLite journal mode.")
	fs.IntVar(&o.MaxOpenConns, p+"max-open-conns", o.MaxOpenConns, "Maximum open connections per database file.")
	fs.IntVar(&o.LogLevel, p+"log-level", o.LogLevel, "GORM log level (1=silent, 2=error, 3=warn, 4=info).")
}

// Validate validates the options.
func (o *Options) Validate() []error {
	if o == nil {
		return nil
	}

	var errs []error
	if o.BusyTimeout < 0 {
		errs = append(errs, fmt.Errorf("sqlite busy-timeout must not be negative"))
	}
	if o.MaxOpenConns <= 0 {
		errs = append(errs, fmt.Errorf("sqlite max-open-conns must be positive"))
	}
	if o.LogLevel < 1 || o.LogLevel > 4 {
		errs = append(errs, fmt.Errorf("sqlite log-level must be between 1 and 4"))
	}
	return errs
}
