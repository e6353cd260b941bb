package okapi

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"
)

// Options is the per-operation flag set.
type Options uint32

const (
	// WriteFlush makes the commit or write durable before returning.
	WriteFlush Options = 1 << iota
	// ReadTransparent reads the backend's current state, bypassing the
	// transaction's snapshot.
	ReadTransparent
	// TxnDontWatch keeps this operation's reads out of the watch set, so
	// they are not validated at commit.
	TxnDontWatch
)

// Config is the engine configuration. Open receives it as one opaque YAML
// string; the empty string opens an in-memory database.
type Config struct {
	// Backend selects the storage backend: "memory" (default) or "pebble".
	Backend string `yaml:"backend"`
	// Path is the data directory for persistent backends.
	Path string `yaml:"path"`
	// CacheMB sizes the backend block cache.
	CacheMB int64 `yaml:"cache_mb"`
	// MemTableMB sizes the backend write buffer.
	MemTableMB int64 `yaml:"memtable_mb"`
	// SyncWrites makes every non-transactional write and every transaction
	// commit durable, as if WriteFlush were always set.
	SyncWrites bool `yaml:"sync_writes"`
	// LogLevel overrides the engine's log level when non-empty.
	LogLevel string `yaml:"log_level"`
}

func parseConfig(raw string) (Config, error) {
	var cfg Config
	if raw == "" {
		return cfg, nil
	}
	dec := yaml.NewDecoder(strings.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, errArgs("parse config: %v", err)
	}
	switch cfg.Backend {
	case "", "memory", "pebble":
	default:
		return Config{}, errArgs("unknown backend %q", cfg.Backend)
	}
	if cfg.Backend == "pebble" && cfg.Path == "" {
		return Config{}, errArgs("pebble backend needs a path")
	}
	return cfg, nil
}

func (c Config) String() string {
	backend := c.Backend
	if backend == "" {
		backend = "memory"
	}
	return fmt.Sprintf("backend=%s path=%s", backend, c.Path)
}
