package scoring

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Policy is the optional per-classification scoring policy.
type Policy struct {
	Defaults        PolicyDefaults                  `yaml:"defaults"`
	Classifications map[string]ClassificationPolicy `yaml:"classifications"`
}

// PolicyDefaults holds global policy defaults.
type PolicyDefaults struct {
	DepthDecayFactor float64 `yaml:"depth_decay_factor"`
}

// ClassificationPolicy overrides scoring behavior for one classification tag.
type ClassificationPolicy struct {
	DepthDecayFactor *float64 `yaml:"depth_decay_factor,omitempty"`
}

// LoadPolicy reads a scoring policy from a YAML file.
func LoadPolicy(path string) (*Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "scoring: read policy %s", path)
	}

	// The YAML has a top-level "scoring_policy" key
	var wrapper struct {
		ScoringPolicy Policy `yaml:"scoring_policy"`
	}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return nil, eris.Wrap(err, "scoring: parse policy")
	}

	p := &wrapper.ScoringPolicy
	if p.Defaults.DepthDecayFactor < 0 || p.Defaults.DepthDecayFactor > 1 {
		return nil, eris.Errorf("scoring: default depth_decay_factor %v out of [0,1]", p.Defaults.DepthDecayFactor)
	}
	for name, cp := range p.Classifications {
		if cp.DepthDecayFactor != nil && (*cp.DepthDecayFactor < 0 || *cp.DepthDecayFactor > 1) {
			return nil, eris.Errorf("scoring: classification %s depth_decay_factor %v out of [0,1]", name, *cp.DepthDecayFactor)
		}
	}
	return p, nil
}

// DecayFactor resolves the credit decay factor for a classification,
// falling back through policy defaults to the supplied fallback.
func (p *Policy) DecayFactor(classification string, fallback float64) float64 {
	if p == nil {
		return fallback
	}
	if cp, ok := p.Classifications[classification]; ok && cp.DepthDecayFactor != nil {
		return *cp.DepthDecayFactor
	}
	if p.Defaults.DepthDecayFactor > 0 {
		return p.Defaults.DepthDecayFactor
	}
	return fallback
}
