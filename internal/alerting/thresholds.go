// Package alerting evaluates metric thresholds every minute, records alerts,
// and drives service-mode auto-mitigation. The arrow is one-directional:
// alerting calls the mode controller, never the reverse.
package alerting

import (
	_ "embed"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/medina-app/medina/internal/model"
)

//go:embed thresholds.yaml
var defaultThresholdsYAML []byte

type thresholdFile struct {
	Thresholds []thresholdSpec `yaml:"thresholds"`
}

// duration parses YAML duration strings like "5m" or "1h".
type duration time.Duration

func (d *duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return fmt.Errorf("duration must be a string: %w", err)
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = duration(parsed)
	return nil
}

type thresholdSpec struct {
	Key            string   `yaml:"key"`
	Metric         string   `yaml:"metric"`
	Comparison     string   `yaml:"comparison"`
	Threshold      float64  `yaml:"threshold"`
	Window         duration `yaml:"window"`
	Severity       string   `yaml:"severity"`
	AutoMitigation string   `yaml:"auto_mitigation"`
}

// DefaultThresholds parses the embedded seed definitions.
func DefaultThresholds() ([]model.AlertThreshold, error) {
	var f thresholdFile
	if err := yaml.Unmarshal(defaultThresholdsYAML, &f); err != nil {
		return nil, fmt.Errorf("parse default thresholds: %w", err)
	}
	out := make([]model.AlertThreshold, 0, len(f.Thresholds))
	for _, s := range f.Thresholds {
		if s.Key == "" || s.Metric == "" || s.Window <= 0 {
			return nil, fmt.Errorf("default threshold %q: missing key, metric, or window", s.Key)
		}
		cmp := s.Comparison
		if cmp == "" {
			cmp = "gt"
		}
		sev := s.Severity
		if sev == "" {
			sev = "warning"
		}
		out = append(out, model.AlertThreshold{
			Key:            s.Key,
			Metric:         s.Metric,
			Comparison:     cmp,
			Threshold:      s.Threshold,
			WindowNs:       int64(s.Window),
			Severity:       sev,
			AutoMitigation: s.AutoMitigation,
			Enabled:        true,
		})
	}
	return out, nil
}
