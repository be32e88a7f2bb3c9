package config

import "github.com/oshokin/driver-guard/internal/domain/alert"

// Rules converts the policy settings into alert rules and options.
func (p *PolicyConfig) Rules(fps float64) ([]alert.Rule, alert.Options) {
	rules := make([]alert.Rule, 0, len(p.Classes))
	for _, class := range p.Classes {
		rules = append(rules, alert.Rule{
			Class:       class.Name,
			Threshold:   class.Threshold,
			MinFrames:   class.MinFrames,
			MinDuration: class.MinDuration,
		})
	}

	return rules, alert.Options{
		Threshold:   p.Threshold,
		MinFrames:   p.MinFrames,
		ClearFrames: p.ClearFrames,
		FPS:         fps,
	}
}

// MinConfidence returns the policy-wide threshold, or DefaultThreshold when unset.
func (p *PolicyConfig) MinConfidence() float64 {
	if p.Threshold == nil {
		return DefaultThreshold
	}

	return *p.Threshold
}
