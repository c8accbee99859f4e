// Package config loads the tunables that shape the storage engine's
// behavior: frame sizing, buffer pool capacity, log buffer sizing and flush
// cadence, and the strict-2PL switch. Values are read through viper so they
// can come from built-in defaults, a config file, or environment variables,
// in that order of increasing precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

// Options holds every configurable knob named in the external-interfaces
// section of the specification.
type Options struct {
	// PageSize is the size, in bytes, of every page frame and every page
	// on disk.
	PageSize int

	// BufferPoolSize is the number of frames the buffer pool manager
	// holds resident at once.
	BufferPoolSize int

	// LogBufferSize is the size, in bytes, of each of the log manager's
	// two ping-pong buffers.
	LogBufferSize int

	// LogTimeout is how long the background flush goroutine sleeps
	// between periodic flushes when nothing wakes it early.
	LogTimeout time.Duration

	// Strict2PL, when true, requires that a lock only be released from
	// commit or abort — an explicit early Unlock always aborts the
	// transaction. When false, a transaction's first early Unlock instead
	// transitions it from GROWING to SHRINKING, after which any further
	// lock acquisition aborts it.
	Strict2PL bool

	// DataFile and LogFile are the on-disk paths the disk manager reads
	// and writes through.
	DataFile string
	LogFile  string
}

// Defaults returns the option set the engine ships with absent any
// configuration source; every field here matches spec.md §6.
func Defaults() Options {
	return Options{
		PageSize:       4096,
		BufferPoolSize: 64,
		LogBufferSize:  4096 * 4,
		LogTimeout:     500 * time.Millisecond,
		Strict2PL:      true,
		DataFile:       "ledgerdb.db",
		LogFile:        "ledgerdb.log",
	}
}

// Load builds an Options value from defaults, an optional config file at
// path (skipped if empty or missing), and environment variables prefixed
// LEDGERDB_ (e.g. LEDGERDB_BUFFER_POOL_SIZE). Environment variables take
// precedence over the file, which takes precedence over defaults.
func Load(path string) (Options, error) {
	v := viper.New()
	d := Defaults()

	v.SetDefault("page_size", d.PageSize)
	v.SetDefault("buffer_pool_size", d.BufferPoolSize)
	v.SetDefault("log_buffer_size", d.LogBufferSize)
	v.SetDefault("log_timeout", d.LogTimeout)
	v.SetDefault("strict_2pl", d.Strict2PL)
	v.SetDefault("data_file", d.DataFile)
	v.SetDefault("log_file", d.LogFile)

	v.SetEnvPrefix("LEDGERDB")
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !errors.Is(err, os.ErrNotExist) {
				return Options{}, fmt.Errorf("loading config %q: %w", path, err)
			}
		}
	}

	opts := Options{
		PageSize:       v.GetInt("page_size"),
		BufferPoolSize: v.GetInt("buffer_pool_size"),
		LogBufferSize:  v.GetInt("log_buffer_size"),
		LogTimeout:     v.GetDuration("log_timeout"),
		Strict2PL:      v.GetBool("strict_2pl"),
		DataFile:       v.GetString("data_file"),
		LogFile:        v.GetString("log_file"),
	}

	if err := opts.validate(); err != nil {
		return Options{}, err
	}
	return opts, nil
}

func (o Options) validate() error {
	if o.PageSize <= 0 {
		return fmt.Errorf("page_size must be positive, got %d", o.PageSize)
	}
	if o.BufferPoolSize <= 0 {
		return fmt.Errorf("buffer_pool_size must be positive, got %d", o.BufferPoolSize)
	}
	if o.LogBufferSize <= 0 {
		return fmt.Errorf("log_buffer_size must be positive, got %d", o.LogBufferSize)
	}
	return nil
}
