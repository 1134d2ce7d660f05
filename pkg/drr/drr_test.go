package drr

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func helix(n int) *mat.Dense {
	x := mat.NewDense(n, 3, nil)
	for i := 0; i < n; i++ {
		t := float64(i) / float64(n-1)
		x.Set(i, 0, t)
		x.Set(i, 1, t*t)
		x.Set(i, 2, t*t*t)
	}
	return x
}

func quickFit(t *testing.T, x *mat.Dense, opts ...Option) *Model {
	t.Helper()
	opts = append([]Option{
		WithLambda(1e-3, 1e-1),
		WithKernel("rbfdot", KernelParam{Name: "sigma", Values: []float64{0.1, 1}}),
		WithCVFolds(3),
		WithBlocks(2),
		WithVerbose(false),
	}, opts...)
	m, err := Fit(context.Background(), x, opts...)
	require.NoError(t, err)
	return m
}

func TestFit(t *testing.T) {
	x := helix(30)
	m := quickFit(t, x)

	assert.Equal(t, 3, m.NDim())
	y, err := m.Apply(x)
	require.NoError(t, err)
	back, err := m.Inverse(y)
	require.NoError(t, err)
	assert.True(t, mat.EqualApprox(back, x, 1e-8))
}

func TestFit_ConfigError(t *testing.T) {
	_, err := Fit(context.Background(), helix(10), WithNDim(5))
	assert.ErrorIs(t, err, ErrInvalidDimension)
	assert.True(t, IsConfigError(err))
}

func TestFitOptions(t *testing.T) {
	opts := DefaultOptions()
	opts.Lambda = []float64{0.1}
	opts.KernelParams = []KernelParam{{Name: "sigma", Values: []float64{1}}}
	opts.CVFolds = 2
	opts.NDim = 2
	opts.Verbose = false

	m, err := FitOptions(context.Background(), helix(12), opts)
	require.NoError(t, err)
	assert.Equal(t, 2, m.NDim())
}

func TestSaveLoad(t *testing.T) {
	ctx := context.Background()
	x := helix(30)
	m := quickFit(t, x)

	fileStore, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	sealed, err := NewSealer(NewMemoryStore(), "s3cret")
	require.NoError(t, err)

	stores := map[string]Store{
		"memory": NewMemoryStore(),
		"file":   fileStore,
		"sealed": sealed,
	}

	for name, store := range stores {
		t.Run(name, func(t *testing.T) {
			key, err := Save(ctx, store, m)
			require.NoError(t, err)
			assert.Equal(t, ModelKey(m.ID()), key)

			loaded, err := Load(ctx, store, m.ID())
			require.NoError(t, err)
			assert.Equal(t, m.ID(), loaded.ID())
			assert.Equal(t, m.Selected(), loaded.Selected())

			want, err := m.Apply(x)
			require.NoError(t, err)
			got, err := loaded.Apply(x)
			require.NoError(t, err)
			assert.True(t, mat.EqualApprox(want, got, 1e-12))

			require.NoError(t, Delete(ctx, store, m.ID()))
			_, err = Load(ctx, store, m.ID())
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestLoad_Missing(t *testing.T) {
	_, err := Load(context.Background(), NewMemoryStore(), uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLoad_Corrupt(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	id := uuid.New()
	require.NoError(t, store.Put(ctx, ModelKey(id), []byte(`{"version":99}`)))

	_, err := Load(ctx, store, id)
	assert.Error(t, err)
}

func TestModelKey(t *testing.T) {
	id := uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")
	assert.Equal(t, "drr/model/6ba7b810-9dad-11d1-80b4-00c04fd430c8", ModelKey(id))
}
