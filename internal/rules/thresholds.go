package rules

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/leadnexus/subiq/internal/model"
)

// RateThresholds holds the premium/standard rate floors for one metric in
// one vertical. A rate at or above Premium classifies Premium, at or above
// Standard classifies Standard, below Standard classifies Pause.
type RateThresholds struct {
	Premium  float64 `yaml:"premium"`
	Standard float64 `yaml:"standard"`
}

// valid reports whether the pair is usable. Malformed pairs resolve to the
// Unknown tier at classification time rather than failing the load: the
// engine must always return a result, and a broken config for one vertical
// must not take down decisions for the others.
func (t *RateThresholds) valid() bool {
	return t != nil && t.Premium > t.Standard && t.Standard > 0
}

// VerticalThresholds holds the per-metric thresholds for one vertical.
type VerticalThresholds struct {
	Call *RateThresholds `yaml:"call"`
	Lead *RateThresholds `yaml:"lead"`
}

// ThresholdSet maps verticals to their configured thresholds. It is owned
// by an external configuration store and passed into the engine explicitly;
// the engine never reads ambient global state.
type ThresholdSet map[model.Vertical]VerticalThresholds

// LoadThresholds reads a threshold YAML file. The file has a top-level
// "verticals" key:
//
//	verticals:
//	  medicare:
//	    call: {premium: 0.40, standard: 0.25}
//	    lead: {premium: 0.30, standard: 0.15}
//
// Unknown vertical names are an error; missing metrics are not (they
// resolve to Unknown tier downstream).
func LoadThresholds(path string) (ThresholdSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "rules: read thresholds %s", path)
	}

	var wrapper struct {
		Verticals map[string]VerticalThresholds `yaml:"verticals"`
	}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return nil, eris.Wrap(err, "rules: parse thresholds")
	}

	set := make(ThresholdSet, len(wrapper.Verticals))
	for name, vt := range wrapper.Verticals {
		vertical, err := model.ParseVertical(name)
		if err != nil {
			return nil, eris.Wrapf(err, "rules: thresholds for unknown vertical %q", name)
		}
		set[vertical] = vt
	}
	return set, nil
}
