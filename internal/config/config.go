// Package config loads fit and runtime settings from YAML.
package config

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/knirvcorp/drr/internal/cv"
	"github.com/knirvcorp/drr/internal/drr"
	"github.com/knirvcorp/drr/internal/storage"
)

var ErrInvalidConfig = errors.New("config: invalid configuration")

type Config struct {
	NDim            int              `yaml:"ndim"`
	Lambda          []float64        `yaml:"lambda"`
	Kernel          string           `yaml:"kernel"`
	KernelPars      []cv.KernelParam `yaml:"kernel_pars"`
	PCA             bool             `yaml:"pca"`
	PCACenter       bool             `yaml:"pca_center"`
	PCAScale        bool             `yaml:"pca_scale"`
	FastCV          bool             `yaml:"fastcv"`
	CVFolds         Count            `yaml:"cv_folds"`
	Blocks          Count            `yaml:"fastkrr_nblocks"`
	HoldoutFraction float64          `yaml:"holdout_fraction"`
	Seed            int64            `yaml:"seed"`
	Workers         int              `yaml:"workers"`
	Verbose         bool             `yaml:"verbose"`

	Log     LogConfig     `yaml:"log"`
	Store   StoreConfig   `yaml:"store"`
	Tracing TracingConfig `yaml:"tracing"`
}

// Count is an integer setting that must be written as a YAML integer.
// Fractional values are rejected instead of truncated.
type Count int

func (c *Count) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode || node.ShortTag() != "!!int" {
		return fmt.Errorf("%w: line %d: %q is not an integer", ErrInvalidConfig, node.Line, node.Value)
	}
	var v int
	if err := node.Decode(&v); err != nil {
		return err
	}
	*c = Count(v)
	return nil
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type StoreConfig struct {
	// Kind is one of "file", "memory" or "redis".
	Kind  string      `yaml:"kind"`
	Dir   string      `yaml:"dir"`
	Redis RedisConfig `yaml:"redis"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
	// TTL is a duration string such as "24h"; empty means no expiry.
	TTL string `yaml:"ttl"`
}

type TracingConfig struct {
	Endpoint    string `yaml:"jaeger_endpoint"`
	ServiceName string `yaml:"service_name"`
}

// Default returns the configuration used for keys missing from a file.
func Default() Config {
	o := drr.DefaultOptions()
	return Config{
		NDim:       o.NDim,
		Lambda:     o.Lambda,
		Kernel:     o.Kernel,
		KernelPars: o.KernelParams,
		PCA:        o.PCA,
		PCACenter:  o.PCACenter,
		PCAScale:   o.PCAScale,
		FastCV:     o.FastCV,
		CVFolds:    Count(o.CVFolds),
		Blocks:     Count(o.Blocks),
		Seed:       o.Seed,
		Workers:    o.Workers,
		Verbose:    o.Verbose,
		Log:        LogConfig{Level: "info", Format: "console"},
		Store: StoreConfig{
			Kind: "file",
			Dir:  "drr-models",
			Redis: RedisConfig{
				Addr:   "localhost:6379",
				Prefix: "drr:",
			},
		},
		Tracing: TracingConfig{ServiceName: "drr"},
	}
}

// Load reads a YAML file on top of Default. An empty path returns Default.
func Load(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML on top of Default. Unknown keys are rejected.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	// The default sigma grid only fits the default kernel family.
	var given struct {
		Kernel     *string           `yaml:"kernel"`
		KernelPars *[]cv.KernelParam `yaml:"kernel_pars"`
	}
	if err := yaml.Unmarshal(data, &given); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if given.Kernel != nil && *given.Kernel != Default().Kernel && given.KernelPars == nil {
		cfg.KernelPars = nil
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// validate checks the runtime blocks. Fit settings are checked by drr.Fit.
func (c Config) validate() error {
	switch c.Store.Kind {
	case "file":
		if c.Store.Dir == "" {
			return fmt.Errorf("%w: store.dir is required for file stores", ErrInvalidConfig)
		}
	case "memory":
	case "redis":
		if c.Store.Redis.Addr == "" {
			return fmt.Errorf("%w: store.redis.addr is required for redis stores", ErrInvalidConfig)
		}
		if _, err := c.Store.Redis.ttl(); err != nil {
			return err
		}
	default:
		return fmt.Errorf("%w: unknown store kind %q", ErrInvalidConfig, c.Store.Kind)
	}
	return nil
}

func (r RedisConfig) ttl() (time.Duration, error) {
	if r.TTL == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(r.TTL)
	if err != nil || d < 0 {
		return 0, fmt.Errorf("%w: store.redis.ttl %q", ErrInvalidConfig, r.TTL)
	}
	return d, nil
}

// Options converts the fit settings into drr options. Logger, metrics and
// a fast cv test set are attached by the caller.
func (c Config) Options() drr.Options {
	o := drr.DefaultOptions()
	o.NDim = c.NDim
	o.Lambda = append([]float64(nil), c.Lambda...)
	o.Kernel = c.Kernel
	o.KernelParams = append([]cv.KernelParam(nil), c.KernelPars...)
	o.PCA = c.PCA
	o.PCACenter = c.PCACenter
	o.PCAScale = c.PCAScale
	o.FastCV = c.FastCV
	o.CVFolds = int(c.CVFolds)
	o.Blocks = int(c.Blocks)
	o.HoldoutFraction = c.HoldoutFraction
	o.Seed = c.Seed
	o.Workers = c.Workers
	o.Verbose = c.Verbose
	return o
}

// OpenStore builds the configured store. dir, when not empty, overrides
// store.dir and forces a file store.
func (c Config) OpenStore(ctx context.Context, dir string) (storage.Store, error) {
	kind := c.Store.Kind
	if dir != "" {
		kind = "file"
	} else {
		dir = c.Store.Dir
	}
	switch kind {
	case "file":
		return storage.NewFileStore(dir)
	case "memory":
		return storage.NewMemoryStore(), nil
	case "redis":
		r := c.Store.Redis
		ttl, err := r.ttl()
		if err != nil {
			return nil, err
		}
		store, err := storage.NewRedisStore(ctx, r.Addr, r.Password, r.DB, r.Prefix)
		if err != nil {
			return nil, err
		}
		return store.WithTTL(ttl), nil
	}
	return nil, fmt.Errorf("%w: unknown store kind %q", ErrInvalidConfig, kind)
}
