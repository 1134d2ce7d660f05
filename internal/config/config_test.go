package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/knirvcorp/drr/internal/cv"
	"github.com/knirvcorp/drr/internal/drr"
	"github.com/knirvcorp/drr/internal/storage"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	opts := cfg.Options()
	def := drr.DefaultOptions()
	assert.Equal(t, def.Lambda, opts.Lambda)
	assert.Equal(t, def.Kernel, opts.Kernel)
	assert.Equal(t, def.KernelParams, opts.KernelParams)
	assert.Equal(t, 5, opts.CVFolds)
	assert.Equal(t, 4, opts.Blocks)
	assert.True(t, opts.PCA)
	assert.True(t, opts.PCACenter)
	assert.False(t, opts.PCAScale)
	assert.True(t, opts.Verbose)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "file", cfg.Store.Kind)
}

func TestParse(t *testing.T) {
	data := []byte(`
ndim: 2
lambda: [0.01, 1]
kernel_pars:
  - name: sigma
    values: [0.5, 5]
pca_scale: true
fastcv: true
holdout_fraction: 0.25
fastkrr_nblocks: 2
seed: 7
workers: 3
verbose: false
log:
  level: debug
  format: json
store:
  kind: redis
  redis:
    addr: cache:6379
    ttl: 24h
tracing:
  jaeger_endpoint: http://localhost:14268/api/traces
`)

	cfg, err := Parse(data)
	require.NoError(t, err)

	opts := cfg.Options()
	assert.Equal(t, 2, opts.NDim)
	assert.Equal(t, []float64{0.01, 1}, opts.Lambda)
	assert.Equal(t, "rbfdot", opts.Kernel)
	assert.Equal(t, []cv.KernelParam{{Name: "sigma", Values: []float64{0.5, 5}}}, opts.KernelParams)
	assert.True(t, opts.PCA)
	assert.True(t, opts.PCAScale)
	assert.True(t, opts.FastCV)
	assert.Equal(t, 0.25, opts.HoldoutFraction)
	assert.Equal(t, 2, opts.Blocks)
	assert.Equal(t, 5, opts.CVFolds)
	assert.Equal(t, int64(7), opts.Seed)
	assert.Equal(t, 3, opts.Workers)
	assert.False(t, opts.Verbose)

	assert.Equal(t, LogConfig{Level: "debug", Format: "json"}, cfg.Log)
	assert.Equal(t, "cache:6379", cfg.Store.Redis.Addr)
	assert.Equal(t, "drr:", cfg.Store.Redis.Prefix)
	assert.Equal(t, "http://localhost:14268/api/traces", cfg.Tracing.Endpoint)
	assert.Equal(t, "drr", cfg.Tracing.ServiceName)
}

func TestParse_OtherKernelDropsDefaultGrid(t *testing.T) {
	cfg, err := Parse([]byte("kernel: vanilladot\n"))
	require.NoError(t, err)
	assert.Empty(t, cfg.KernelPars)

	cfg, err = Parse([]byte("kernel: polydot\nkernel_pars:\n  - name: degree\n    values: [2, 3]\n"))
	require.NoError(t, err)
	assert.Equal(t, []cv.KernelParam{{Name: "degree", Values: []float64{2, 3}}}, cfg.KernelPars)
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{name: "fractional folds", yaml: "cv_folds: 2.5"},
		{name: "fractional blocks", yaml: "fastkrr_nblocks: 1.5"},
		{name: "unknown key", yaml: "folds: 3"},
		{name: "unknown store", yaml: "store:\n  kind: s3"},
		{name: "file store without dir", yaml: "store:\n  kind: file\n  dir: \"\""},
		{name: "bad ttl", yaml: "store:\n  kind: redis\n  redis:\n    ttl: soon"},
		{name: "not a mapping", yaml: "- 1\n- 2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestParse_CountsMustBeIntegers(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr bool
		folds   int
		blocks  int
	}{
		{name: "integers", yaml: "cv_folds: 3\nfastkrr_nblocks: 2", folds: 3, blocks: 2},
		{name: "fractional folds", yaml: "cv_folds: 2.5", wantErr: true},
		{name: "fractional blocks", yaml: "fastkrr_nblocks: 0.5", wantErr: true},
		{name: "integral float", yaml: "cv_folds: 3.0", wantErr: true},
		{name: "quoted", yaml: "cv_folds: \"3\"", wantErr: true},
		{name: "list", yaml: "fastkrr_nblocks: [1]", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Parse([]byte(tt.yaml))
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidConfig)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.folds, cfg.Options().CVFolds)
			assert.Equal(t, tt.blocks, cfg.Options().Blocks)
		})
	}
}

func TestParse_Empty(t *testing.T) {
	cfg, err := Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "drr.yaml")
	require.NoError(t, os.WriteFile(path, []byte("ndim: 1\ncv_folds: 3\n"), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 1, cfg.NDim)
	assert.Equal(t, Count(3), cfg.CVFolds)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestOpenStore(t *testing.T) {
	ctx := context.Background()

	cfg := Default()
	cfg.Store.Kind = "memory"
	store, err := cfg.OpenStore(ctx, "")
	require.NoError(t, err)
	assert.IsType(t, &storage.MemoryStore{}, store)

	dir := t.TempDir()
	store, err = cfg.OpenStore(ctx, dir)
	require.NoError(t, err)
	assert.IsType(t, &storage.FileStore{}, store)
}
