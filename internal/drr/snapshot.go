package drr

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/mat"

	"github.com/knirvcorp/drr/internal/krr"
	"github.com/knirvcorp/drr/internal/monitoring"
	"github.com/knirvcorp/drr/internal/pca"
)

const snapshotVersion = 1

type denseJSON struct {
	Rows int       `json:"rows"`
	Cols int       `json:"cols"`
	Data []float64 `json:"data"`
}

func encodeDense(m *mat.Dense) denseJSON {
	r, c := m.Dims()
	return denseJSON{Rows: r, Cols: c, Data: mat.DenseCopyOf(m).RawMatrix().Data}
}

func (d denseJSON) decode(name string) (*mat.Dense, error) {
	if d.Rows < 1 || d.Cols < 1 || d.Rows*d.Cols != len(d.Data) {
		return nil, fmt.Errorf("%w: malformed %s matrix", ErrDimensionMismatch, name)
	}
	return mat.NewDense(d.Rows, d.Cols, d.Data), nil
}

type axisJSON struct {
	Index   int             `json:"index"`
	Params  *krr.Params     `json:"params,omitempty"`
	CVError float64         `json:"cv_error,omitempty"`
	Model   json.RawMessage `json:"model,omitempty"`
}

type modelJSON struct {
	Version        int        `json:"version"`
	ID             uuid.UUID  `json:"id"`
	Center         []float64  `json:"center"`
	Scale          []float64  `json:"scale"`
	Rotation       denseJSON  `json:"rotation"`
	SingularValues []float64  `json:"singular_values,omitempty"`
	Fitted         denseJSON  `json:"fitted"`
	Axes           []axisJSON `json:"axes"`
}

// MarshalJSON encodes the model. Only models whose axis regressors are the
// built-in fast KRR models can be encoded.
func (m *Model) MarshalJSON() ([]byte, error) {
	out := modelJSON{
		Version:        snapshotVersion,
		ID:             m.id,
		Center:         m.pre.Center,
		Scale:          m.pre.Scale,
		Rotation:       encodeDense(m.pre.Rotation),
		SingularValues: m.pre.SingularValues,
		Fitted:         encodeDense(m.fitted),
		Axes:           make([]axisJSON, len(m.axes)),
	}
	for i, a := range m.axes {
		out.Axes[i] = axisJSON{Index: a.Index}
		if a.Placeholder() {
			continue
		}
		km, ok := a.Regressor.(*krr.Model)
		if !ok {
			return nil, fmt.Errorf("%w: axis %d uses %T", ErrNotPersistable, a.Index, a.Regressor)
		}
		raw, err := json.Marshal(km)
		if err != nil {
			return nil, fmt.Errorf("failed to encode axis %d: %w", a.Index, err)
		}
		params := a.Params
		out.Axes[i].Params = &params
		out.Axes[i].CVError = a.CVError
		out.Axes[i].Model = raw
	}
	return json.Marshal(out)
}

func (m *Model) UnmarshalJSON(data []byte) error {
	var in modelJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	if in.Version != snapshotVersion {
		return fmt.Errorf("unsupported model version %d", in.Version)
	}
	rotation, err := in.Rotation.decode("rotation")
	if err != nil {
		return err
	}
	fitted, err := in.Fitted.decode("fitted")
	if err != nil {
		return err
	}
	p, _ := rotation.Dims()
	_, d := fitted.Dims()
	if len(in.Center) != p || len(in.Scale) != p || len(in.Axes) != d {
		return fmt.Errorf("%w: inconsistent model dimensions", ErrDimensionMismatch)
	}

	axes := make([]Axis, d)
	for i, a := range in.Axes {
		if a.Index != i+1 {
			return fmt.Errorf("%w: axis %d stored at position %d", ErrDimensionMismatch, a.Index, i+1)
		}
		axes[i] = Axis{Index: a.Index}
		if i == 0 {
			continue
		}
		if a.Params == nil || len(a.Model) == 0 {
			return fmt.Errorf("%w: axis %d has no regression", ErrDimensionMismatch, a.Index)
		}
		var km krr.Model
		if err := json.Unmarshal(a.Model, &km); err != nil {
			return fmt.Errorf("failed to decode axis %d: %w", a.Index, err)
		}
		if km.Dim() != i {
			return fmt.Errorf("%w: axis %d regression expects %d features", ErrDimensionMismatch, a.Index, km.Dim())
		}
		axes[i].Regressor = &km
		axes[i].Params = *a.Params
		axes[i].CVError = a.CVError
	}

	m.id = in.ID
	m.pre = &pca.Result{
		Center:         in.Center,
		Scale:          in.Scale,
		Rotation:       rotation,
		SingularValues: in.SingularValues,
	}
	m.axes = axes
	m.fitted = fitted
	return nil
}

// WithMetrics returns a copy of m that records apply and inverse calls on
// metrics. Decoded models start without metrics.
func (m *Model) WithMetrics(metrics *monitoring.Metrics) *Model {
	cp := *m
	cp.metrics = metrics
	return &cp
}
