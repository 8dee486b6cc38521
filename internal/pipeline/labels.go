package pipeline

import "github.com/cihanayindi/touchswipe-identifier-AIoT/internal/errors"

// LabelMap maps class ids to identity labels. Class id i is Classes[i], the
// order a label encoder assigned at training time.
type LabelMap struct {
	Classes []string `yaml:"classes"`
}

func (l LabelMap) validate() error {
	errFactory := errors.New()

	if len(l.Classes) == 0 {
		return errFactory.WithData(ErrArtifactInvalid, "labels: no classes")
	}

	seen := make(map[string]bool, len(l.Classes))
	for _, c := range l.Classes {
		if c == "" || seen[c] {
			return errFactory.WithData(ErrArtifactInvalid, struct {
				Artifact string
				Label    string
			}{"labels", c})
		}
		seen[c] = true
	}

	return nil
}

// Label returns the label for class id, or false when id is outside the map.
func (l LabelMap) Label(id int) (string, bool) {
	if id < 0 || id >= len(l.Classes) {
		return "", false
	}
	return l.Classes[id], true
}
