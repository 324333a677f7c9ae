package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

type keyType int

const (
	kString keyType = iota
	kInt
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

// specs is the set of persisted keys. The env names mirror the struct tags
// on Config and are only used for display; env parsing goes through env.Parse.
var specs = []keySpec{
	{
		key: "server.base_url", typ: kString, env: "SIGNCHAT_SERVER_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Server.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Server.BaseURL },
	},
	{
		key: "upload.timeout", typ: kString, env: "SIGNCHAT_UPLOAD_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.Upload.Timeout = v.(string) },
		extract: func(cfg Config) any { return cfg.Upload.Timeout },
	},
	{
		key: "storage.data_dir", typ: kString, env: "SIGNCHAT_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "storage.cache_dir", typ: kString, env: "SIGNCHAT_STORAGE_CACHE_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.CacheDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.CacheDir },
	},
	{
		key: "capture.command", typ: kString, env: "SIGNCHAT_CAPTURE_COMMAND",
		apply:   func(cfg *Config, v any) { cfg.Capture.Command = v.(string) },
		extract: func(cfg Config) any { return cfg.Capture.Command },
	},
	{
		key: "capture.dir", typ: kString, env: "SIGNCHAT_CAPTURE_DIR",
		apply:   func(cfg *Config, v any) { cfg.Capture.Dir = v.(string) },
		extract: func(cfg Config) any { return cfg.Capture.Dir },
	},
	{
		key: "view.port", typ: kInt, env: "SIGNCHAT_VIEW_PORT",
		apply:   func(cfg *Config, v any) { cfg.View.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.View.Port },
	},
	{
		key: "view.token", typ: kString, env: "SIGNCHAT_VIEW_TOKEN",
		apply:   func(cfg *Config, v any) { cfg.View.Token = v.(string) },
		extract: func(cfg Config) any { return cfg.View.Token },
	},
	{
		key: "log.level", typ: kString, env: "SIGNCHAT_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
}

func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
		switch s.typ {
		case kString:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kInt:
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		}
	}
	return nil
}

// applyEnvOverrides overwrites fields whose SIGNCHAT_* variable is set.
// Unset variables leave the backend value in place.
func applyEnvOverrides(cfg *Config) error {
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: envPrefix}); err != nil {
		return fmt.Errorf("parsing environment: %w", err)
	}
	return nil
}
