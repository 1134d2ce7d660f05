package krr

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/knirvcorp/drr/internal/kernel"
)

func sineData(n int) (*mat.Dense, *mat.VecDense) {
	x := mat.NewDense(n, 1, nil)
	y := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		v := -3 + 6*float64(i)/float64(n-1)
		x.Set(i, 0, v)
		y.SetVec(i, math.Sin(v))
	}
	return x, y
}

func rbf(sigma, lambda float64, blocks int) Params {
	return Params{
		Kernel:       kernel.RBF,
		KernelParams: map[string]float64{"sigma": sigma},
		Lambda:       lambda,
		Blocks:       blocks,
	}
}

func TestLearn_FitsSmoothFunction(t *testing.T) {
	x, y := sineData(60)

	model, err := FastLearner{Seed: 1}.Learn(x, y, rbf(1, 1e-6, 1))
	require.NoError(t, err)

	pred, err := model.Predict(x)
	require.NoError(t, err)
	for i := 0; i < y.Len(); i++ {
		assert.InDelta(t, y.AtVec(i), pred.AtVec(i), 1e-3)
	}

	// Interpolation between training points.
	probe := mat.NewDense(1, 1, []float64{0.5})
	out, err := model.Predict(probe)
	require.NoError(t, err)
	assert.InDelta(t, math.Sin(0.5), out.AtVec(0), 1e-2)
}

func TestLearn_BlocksAverage(t *testing.T) {
	x, y := sineData(80)

	model, err := FastLearner{Seed: 7}.Learn(x, y, rbf(1, 1e-4, 4))
	require.NoError(t, err)
	assert.Equal(t, 4, model.(*Model).Blocks())

	pred, err := model.Predict(x)
	require.NoError(t, err)
	var sse float64
	for i := 0; i < y.Len(); i++ {
		d := y.AtVec(i) - pred.AtVec(i)
		sse += d * d
	}
	assert.Less(t, sse/float64(y.Len()), 1e-2)
}

func TestLearn_BlocksClampedToRows(t *testing.T) {
	x, y := sineData(3)

	model, err := FastLearner{}.Learn(x, y, rbf(1, 0.1, 10))
	require.NoError(t, err)
	assert.Equal(t, 3, model.(*Model).Blocks())
}

func TestLearn_Deterministic(t *testing.T) {
	x, y := sineData(50)
	p := rbf(0.5, 1e-3, 3)

	a, err := FastLearner{Seed: 42}.Learn(x, y, p)
	require.NoError(t, err)
	b, err := FastLearner{Seed: 42}.Learn(x, y, p)
	require.NoError(t, err)

	pa, _ := a.Predict(x)
	pb, _ := b.Predict(x)
	assert.True(t, mat.Equal(pa, pb))
}

func TestLearn_SingularSystem(t *testing.T) {
	// Duplicate rows with zero ridge make the Gram matrix singular.
	x := mat.NewDense(4, 1, []float64{1, 1, 2, 2})
	y := mat.NewVecDense(4, []float64{3, 3, 5, 5})

	model, err := FastLearner{}.Learn(x, y, rbf(1, 0, 1))
	require.NoError(t, err)

	pred, err := model.Predict(x)
	require.NoError(t, err)
	for i := 0; i < 4; i++ {
		assert.False(t, math.IsNaN(pred.AtVec(i)))
		assert.InDelta(t, y.AtVec(i), pred.AtVec(i), 1e-6)
	}
}

func TestLearn_Validation(t *testing.T) {
	x, y := sineData(10)

	tests := []struct {
		name    string
		x       mat.Matrix
		y       mat.Vector
		params  Params
		wantErr error
	}{
		{name: "zero blocks", x: x, y: y, params: rbf(1, 0.1, 0), wantErr: ErrInvalidBlocks},
		{name: "negative lambda", x: x, y: y, params: rbf(1, -1, 1), wantErr: ErrInvalidLambda},
		{name: "target length", x: x, y: mat.NewVecDense(3, nil), params: rbf(1, 0.1, 1), wantErr: ErrDimensionMismatch},
		{name: "unknown kernel", x: x, y: y, params: Params{Kernel: "nope", Blocks: 1}, wantErr: kernel.ErrUnknownKernel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			model, err := FastLearner{}.Learn(tt.x, tt.y, tt.params)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Nil(t, model)
		})
	}
}

func TestPredict_DimensionMismatch(t *testing.T) {
	x, y := sineData(10)
	model, err := FastLearner{}.Learn(x, y, rbf(1, 0.1, 1))
	require.NoError(t, err)

	_, err = model.Predict(mat.NewDense(2, 2, nil))
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestModelJSONPreservesPredictions(t *testing.T) {
	x, y := sineData(30)
	fitted, err := FastLearner{Seed: 3}.Learn(x, y, rbf(0.8, 1e-3, 2))
	require.NoError(t, err)

	data, err := json.Marshal(fitted)
	require.NoError(t, err)

	var restored Model
	require.NoError(t, json.Unmarshal(data, &restored))
	assert.Equal(t, fitted.(*Model).Params(), restored.Params())

	want, _ := fitted.Predict(x)
	got, err := restored.Predict(x)
	require.NoError(t, err)
	assert.True(t, mat.EqualApprox(want, got, 1e-12))
}

func TestModelUnmarshalRejectsMalformed(t *testing.T) {
	var m Model
	err := json.Unmarshal([]byte(`{"params":{"kernel":"rbfdot","lambda":0,"blocks":1},"blocks":[{"rows":2,"cols":1,"x":[1],"alpha":[1,2]}]}`), &m)
	assert.ErrorIs(t, err, ErrDimensionMismatch)

	err = json.Unmarshal([]byte(`{"params":{"kernel":"rbfdot"},"blocks":[]}`), &m)
	assert.ErrorIs(t, err, ErrEmptyData)
}

func TestParamsString(t *testing.T) {
	p := rbf(0.1, 0.01, 4)
	assert.Equal(t, "kernel=rbfdot sigma=0.1 lambda=0.01 blocks=4", p.String())
}
