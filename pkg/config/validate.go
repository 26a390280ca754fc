package config

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/marmos91/dittoserve/internal/telemetry"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func structValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// Validate checks struct tags and cross-field constraints.
func Validate(cfg *Config) error {
	if err := structValidator().Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s: failed '%s' (value %v)", fe.Namespace(), fe.Tag(), fe.Value()))
			}
			return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
		}
		return err
	}

	if cfg.Cache.Enabled {
		if cfg.Cache.SliceSize == 0 {
			return errors.New("cache.slice_size must be positive")
		}
		if cfg.Cache.MaxSize < cfg.Cache.SliceSize {
			return fmt.Errorf("cache.max_size (%s) must hold at least one slice of %s", cfg.Cache.MaxSize, cfg.Cache.SliceSize)
		}
		if cfg.Cache.MaxFileSize > cfg.Cache.MaxSize {
			return fmt.Errorf("cache.max_file_size (%s) exceeds cache.max_size (%s)", cfg.Cache.MaxFileSize, cfg.Cache.MaxSize)
		}
	}

	if cfg.Telemetry.Profiling.Enabled {
		known := telemetry.ProfileTypeNames()
		for _, pt := range cfg.Telemetry.Profiling.ProfileTypes {
			if !contains(known, pt) {
				return fmt.Errorf("telemetry.profiling.profile_types: unknown type %q (valid: %s)", pt, strings.Join(known, ", "))
			}
		}
	}

	if cfg.Metrics.Enabled && cfg.Metrics.Port == cfg.Server.Port {
		return fmt.Errorf("metrics.port %d collides with server.port", cfg.Metrics.Port)
	}
	if cfg.API.Enabled && cfg.API.Port == cfg.Server.Port {
		return fmt.Errorf("api.port %d collides with server.port", cfg.API.Port)
	}
	return nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
