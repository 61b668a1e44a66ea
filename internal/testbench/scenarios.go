package testbench

import (
	"os"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so scenario files can spell durations the
// human way ("750ms", "2s") instead of as nanosecond integers.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return errors.Wrap(err, "duration must be a string like \"500ms\"")
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return errors.Wrapf(err, "parsing duration %q", s)
	}
	if parsed <= 0 {
		return errors.Errorf("duration %q must be positive", s)
	}
	*d = Duration(parsed)
	return nil
}

// Scenario is one named benchmark run loaded from a scenario file.
type Scenario struct {
	Name      string   `yaml:"name"`
	Capacity  uint64   `yaml:"capacity"`
	Producers int      `yaml:"producers"`
	Consumers int      `yaml:"consumers"`
	Duration  Duration `yaml:"duration"`
}

// Config returns the concurrency part of the scenario.
func (s Scenario) Config() Config {
	return Config{NumProducers: s.Producers, NumConsumers: s.Consumers}
}

type scenarioFile struct {
	Scenarios []Scenario `yaml:"scenarios"`
}

// LoadScenarios reads a YAML scenario file. Missing fields get workable
// defaults; an empty scenario list is an error because the caller asked for
// file-driven runs explicitly.
func LoadScenarios(path string) ([]Scenario, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading scenario file %s", path)
	}

	var f scenarioFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, errors.Wrapf(err, "parsing scenario file %s", path)
	}
	if len(f.Scenarios) == 0 {
		return nil, errors.Errorf("scenario file %s contains no scenarios", path)
	}

	for i := range f.Scenarios {
		s := &f.Scenarios[i]
		if s.Name == "" {
			return nil, errors.Errorf("scenario %d in %s has no name", i, path)
		}
		if s.Capacity == 0 {
			s.Capacity = 1024
		}
		if s.Producers <= 0 {
			s.Producers = 1
		}
		if s.Consumers <= 0 {
			s.Consumers = 1
		}
		if s.Duration <= 0 {
			s.Duration = Duration(time.Second)
		}
	}
	return f.Scenarios, nil
}
