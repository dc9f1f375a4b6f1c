// SPDX-License-Identifier: Apache-2.0

package scoring

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/adiadia/fraud-consumer/internal/domain"
)

// Thresholds maps a risk score to a decision label. Version is folded
// into the effective model version so redeliveries scored under newer
// thresholds supersede deterministically.
type Thresholds struct {
	Version string  `yaml:"version"`
	Review  float64 `yaml:"review"`
	Decline float64 `yaml:"decline"`
}

// DefaultThresholds match the baseline model rollout.
var DefaultThresholds = Thresholds{
	Version: "t1",
	Review:  0.6,
	Decline: 0.85,
}

func (t Thresholds) Validate() error {
	if t.Version == "" {
		return errors.New("thresholds version must be set")
	}
	if t.Review < 0 || t.Review > 1 || t.Decline < 0 || t.Decline > 1 {
		return errors.New("thresholds must be within 0..1")
	}
	if t.Review > t.Decline {
		return errors.New("review threshold must not exceed decline threshold")
	}
	return nil
}

// Decide maps a score to a label. Boundaries are inclusive on the
// riskier side: score == Decline declines.
func (t Thresholds) Decide(score float64) domain.Decision {
	switch {
	case score >= t.Decline:
		return domain.DecisionDecline
	case score >= t.Review:
		return domain.DecisionReview
	default:
		return domain.DecisionApprove
	}
}

// LoadThresholds reads and validates a thresholds YAML file.
func LoadThresholds(path string) (Thresholds, error) {
	body, err := os.ReadFile(path)
	if err != nil {
		return Thresholds{}, fmt.Errorf("read thresholds %s: %w", path, err)
	}

	var t Thresholds
	if err := yaml.Unmarshal(body, &t); err != nil {
		return Thresholds{}, fmt.Errorf("parse thresholds %s: %w", path, err)
	}
	if err := t.Validate(); err != nil {
		return Thresholds{}, fmt.Errorf("invalid thresholds %s: %w", path, err)
	}

	return t, nil
}
