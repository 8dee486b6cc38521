package pipeline

import (
	"math"

	"github.com/cihanayindi/touchswipe-identifier-AIoT/internal/errors"
)

// Scaler standardises each feature as (x - mean) / scale.
type Scaler struct {
	Mean  []float64 `yaml:"mean"`
	Scale []float64 `yaml:"scale"`
}

func (s Scaler) validate(dim int) error {
	errFactory := errors.New()

	if len(s.Mean) != dim || len(s.Scale) != dim {
		return errFactory.WithData(ErrArtifactInvalid, struct {
			Artifact string
			Want     int
			Mean     int
			Scale    int
		}{"scaler", dim, len(s.Mean), len(s.Scale)})
	}

	for i := 0; i < dim; i++ {
		if math.IsNaN(s.Mean[i]) || math.IsInf(s.Mean[i], 0) ||
			s.Scale[i] == 0 || math.IsNaN(s.Scale[i]) || math.IsInf(s.Scale[i], 0) {
			return errFactory.WithData(ErrArtifactInvalid, struct {
				Artifact string
				Feature  int
			}{"scaler", i})
		}
	}

	return nil
}

// Transform returns a new, scaled copy of x. len(x) must equal the scaler's
// dimension.
func (s Scaler) Transform(x []float64) []float64 {
	out := make([]float64, len(x))
	for i, v := range x {
		out[i] = (v - s.Mean[i]) / s.Scale[i]
	}
	return out
}
