package config

import "sync"

// Holder shares the config between a running watch and the SIGHUP handler
// that reloads it. The config file path never changes.
type Holder struct {
	mu   sync.RWMutex
	cfg  *Config
	path string
}

// NewHolder creates a Holder with the initial config and config file path.
func NewHolder(cfg *Config, path string) *Holder {
	return &Holder{cfg: cfg, path: path}
}

// Config returns the current config snapshot.
func (h *Holder) Config() *Config {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return h.cfg
}

// Path returns the config file path.
func (h *Holder) Path() string {
	return h.path
}

// Reload lists the keys an Update changed. Applied keys are read per
// document and take effect at once; Pending keys are bound when the store
// and engine open and need a restart.
type Reload struct {
	Applied []string
	Pending []string
}

// Update replaces the config and reports what changed.
func (h *Holder) Update(cfg *Config) Reload {
	h.mu.Lock()
	prev := h.cfg
	h.cfg = cfg
	h.mu.Unlock()

	return diffConfig(prev, cfg)
}

func diffConfig(prev, next *Config) Reload {
	var r Reload

	collect := func(dst *[]string, key string, changed bool) {
		if changed {
			*dst = append(*dst, key)
		}
	}

	collect(&r.Applied, "watch_settle", prev.WatchSettle != next.WatchSettle)
	collect(&r.Applied, "max_document_size", prev.MaxDocumentSize != next.MaxDocumentSize)

	collect(&r.Pending, "db_path", prev.DBPath != next.DBPath)
	collect(&r.Pending, "version_source", prev.VersionSource != next.VersionSource)
	collect(&r.Pending, "postgres_dsn", prev.PostgresDSN != next.PostgresDSN)
	collect(&r.Pending, "merge_workers", prev.MergeWorkers != next.MergeWorkers)
	collect(&r.Pending, "log_level", prev.LogLevel != next.LogLevel)
	collect(&r.Pending, "log_format", prev.LogFormat != next.LogFormat)

	return r
}
