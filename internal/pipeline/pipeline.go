// Package pipeline turns a swipe feature vector into an identity label:
// validate, standardise, classify, map the class id back to a label.
package pipeline

import (
	"os"

	"github.com/cihanayindi/touchswipe-identifier-AIoT/internal/errors"
	"gopkg.in/yaml.v3"
)

// Dimension is the feature vector length fixed by the sensor firmware: nine
// channel readings followed by the nine matching durations.
const Dimension = 18

// Pipeline is an immutable bundle of the startup artifacts. A nil *Pipeline
// is valid and fails every prediction with ErrModelUnavailable.
type Pipeline struct {
	scaler Scaler
	model  Model
	labels LabelMap
}

// New checks that the artifacts agree with each other and with Dimension.
func New(scaler Scaler, model Model, labels LabelMap) (*Pipeline, error) {
	errFactory := errors.New()

	if model == nil {
		return nil, errFactory.WithData(ErrArtifactInvalid, "model: missing")
	}
	if err := scaler.validate(Dimension); err != nil {
		return nil, err
	}
	if err := labels.validate(); err != nil {
		return nil, err
	}
	if model.NumFeatures() != Dimension {
		return nil, errFactory.WithData(ErrArtifactInvalid, struct {
			Artifact string
			Features int
			Want     int
		}{"model", model.NumFeatures(), Dimension})
	}
	if model.NumClasses() != len(labels.Classes) {
		return nil, errFactory.WithData(ErrArtifactInvalid, struct {
			Artifact string
			Classes  int
			Labels   int
		}{"model", model.NumClasses(), len(labels.Classes)})
	}

	return &Pipeline{
		scaler: Scaler{
			Mean:  append([]float64(nil), scaler.Mean...),
			Scale: append([]float64(nil), scaler.Scale...),
		},
		model:  model,
		labels: LabelMap{Classes: append([]string(nil), labels.Classes...)},
	}, nil
}

// Artifacts names the three startup files.
type Artifacts struct {
	Scaler string
	Forest string
	Labels string
}

// Load reads the artifacts and builds a Pipeline. Files may be JSON or YAML.
func Load(paths Artifacts) (*Pipeline, error) {
	var (
		scaler Scaler
		forest Forest
		labels LabelMap
	)

	if err := decodeFile(paths.Scaler, &scaler); err != nil {
		return nil, err
	}
	if err := decodeFile(paths.Forest, &forest); err != nil {
		return nil, err
	}
	if err := forest.validate(); err != nil {
		return nil, err
	}
	if err := decodeFile(paths.Labels, &labels); err != nil {
		return nil, err
	}

	return New(scaler, &forest, labels)
}

func decodeFile(path string, out any) error {
	errFactory := errors.New()

	data, err := os.ReadFile(path)
	if err != nil {
		return errFactory.Wrap(ErrArtifactUnreadable, err).WithData(path)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return errFactory.Wrap(ErrArtifactInvalid, err).WithData(path)
	}

	return nil
}

// Classes returns the number of identities the pipeline can assign.
func (p *Pipeline) Classes() int {
	if p == nil {
		return 0
	}
	return len(p.labels.Classes)
}

// Predict classifies one feature vector. The steps run in a fixed order and
// stop at the first failure; each failure is returned exactly once.
func (p *Pipeline) Predict(features []float64) (string, error) {
	errFactory := errors.New()

	if p == nil || p.model == nil {
		return "", errFactory.New(ErrModelUnavailable)
	}

	if len(features) != Dimension {
		return "", errFactory.WithData(ErrDimensionMismatch, struct {
			Want int
			Got  int
		}{Dimension, len(features)})
	}

	id := p.model.Predict(p.scaler.Transform(features))

	label, ok := p.labels.Label(id)
	if !ok {
		return "", errFactory.WithData(ErrClassOutOfRange, struct {
			ClassID int
			Classes int
		}{id, len(p.labels.Classes)})
	}

	return label, nil
}
