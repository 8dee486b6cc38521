package pipeline

import (
	"github.com/cihanayindi/touchswipe-identifier-AIoT/internal/errors"
)

const leaf = -1

// Model maps a scaled feature vector to a class id. Implementations must be
// pure: the same input always yields the same id.
type Model interface {
	Predict(x []float64) int
	NumFeatures() int
	NumClasses() int
}

// Tree holds one fitted decision tree in scikit-learn's flat array layout.
// Node i is a leaf when ChildrenLeft[i] == -1; otherwise samples with
// x[Feature[i]] <= Threshold[i] go left. Value[i] holds per-class weights.
type Tree struct {
	ChildrenLeft  []int       `yaml:"children_left"`
	ChildrenRight []int       `yaml:"children_right"`
	Feature       []int       `yaml:"feature"`
	Threshold     []float64   `yaml:"threshold"`
	Value         [][]float64 `yaml:"value"`
}

// Forest is a random forest classifier. Prediction averages the trees' leaf
// class probabilities and picks the most probable class, lowest id on ties.
type Forest struct {
	Features int    `yaml:"n_features"`
	Classes  int    `yaml:"n_classes"`
	Trees    []Tree `yaml:"trees"`
}

func (f *Forest) NumFeatures() int { return f.Features }
func (f *Forest) NumClasses() int  { return f.Classes }

func (f *Forest) Predict(x []float64) int {
	votes := make([]float64, f.Classes)
	for i := range f.Trees {
		f.Trees[i].accumulate(x, votes)
	}

	best := 0
	for c := 1; c < len(votes); c++ {
		if votes[c] > votes[best] {
			best = c
		}
	}
	return best
}

// accumulate adds the normalised class distribution of x's leaf to votes.
// Inputs are compared at float32 precision because that is what the trees
// were fitted on.
func (t *Tree) accumulate(x []float64, votes []float64) {
	node := 0
	for t.ChildrenLeft[node] != leaf {
		if float64(float32(x[t.Feature[node]])) <= t.Threshold[node] {
			node = t.ChildrenLeft[node]
		} else {
			node = t.ChildrenRight[node]
		}
	}

	value := t.Value[node]
	var total float64
	for _, w := range value {
		total += w
	}
	if total == 0 {
		return
	}
	for c, w := range value {
		votes[c] += w / total
	}
}

func (f *Forest) validate() error {
	errFactory := errors.New()

	if f.Features <= 0 || f.Classes <= 0 || len(f.Trees) == 0 {
		return errFactory.WithData(ErrArtifactInvalid, struct {
			Artifact string
			Features int
			Classes  int
			Trees    int
		}{"forest", f.Features, f.Classes, len(f.Trees)})
	}

	for i := range f.Trees {
		if reason := f.Trees[i].check(f.Features, f.Classes); reason != "" {
			return errFactory.WithData(ErrArtifactInvalid, struct {
				Artifact string
				Tree     int
				Reason   string
			}{"forest", i, reason})
		}
	}

	return nil
}

// check verifies the node arrays are consistent. Children must point forward,
// which rules out cycles, so traversal always terminates at a leaf.
func (t *Tree) check(features, classes int) string {
	n := len(t.ChildrenLeft)
	if n == 0 {
		return "no nodes"
	}
	if len(t.ChildrenRight) != n || len(t.Feature) != n || len(t.Threshold) != n || len(t.Value) != n {
		return "node arrays differ in length"
	}

	for i := 0; i < n; i++ {
		if len(t.Value[i]) != classes {
			return "value row does not match class count"
		}
		left, right := t.ChildrenLeft[i], t.ChildrenRight[i]
		if left == leaf {
			if right != leaf {
				return "half-leaf node"
			}
			continue
		}
		if left <= i || right <= i || left >= n || right >= n {
			return "child reference out of order"
		}
		if t.Feature[i] < 0 || t.Feature[i] >= features {
			return "feature index out of range"
		}
	}

	return ""
}
