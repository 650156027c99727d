package harness

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Scenario is one scripted sequence of pool loads and draws.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	Description string `yaml:"description"`

	// Pools lists pool definition files installed before the flow runs.
	Pools []string `yaml:"pools"`

	// Samples are the random numbers handed to the selection engine.
	Samples []float64 `yaml:"samples,omitempty"`

	Flow []FlowStep `yaml:"flow"`

	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// FlowStep is either a draw or a pool load.
type FlowStep struct {
	Draw *DrawStep `yaml:"draw,omitempty"`

	// Load installs a pool definition file mid-flow.
	Load string `yaml:"load,omitempty"`

	// Expect checks the draw outcome. Without it the draw must succeed.
	Expect *ExpectClause `yaml:"expect,omitempty"`
}

type DrawStep struct {
	Pool string `yaml:"pool"`
	User string `yaml:"user"`
}

// ExpectClause names either the entry drawn or the error kind reported.
type ExpectClause struct {
	Entry string `yaml:"entry,omitempty"`
	Error string `yaml:"error,omitempty"`
}

// Assertion validates history after the flow.
type Assertion struct {
	Type    string   `yaml:"type"`
	Pool    string   `yaml:"pool"`
	User    string   `yaml:"user"`
	Count   int      `yaml:"count,omitempty"`
	Entry   string   `yaml:"entry,omitempty"`
	Entries []string `yaml:"entries,omitempty"`
}

// Assertion type constants.
const (
	AssertHistoryCount = "history_count"
	AssertHistoryOrder = "history_order"
	AssertEntryCount   = "entry_count"
)

// LoadScenario reads and parses a scenario YAML file. Pool paths are
// resolved relative to the file. Unknown fields are rejected.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	base := filepath.Dir(path)
	resolve := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(base, p)
	}
	for i := range scenario.Pools {
		scenario.Pools[i] = resolve(scenario.Pools[i])
	}
	for i := range scenario.Flow {
		scenario.Flow[i].Load = resolve(scenario.Flow[i].Load)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return errors.New("name is required")
	}
	if s.Description == "" {
		return errors.New("description is required")
	}
	if len(s.Flow) == 0 {
		return errors.New("flow list is required and must be non-empty")
	}
	for _, p := range s.Pools {
		if _, err := os.Stat(p); err != nil {
			return fmt.Errorf("pool file not found: %s", p)
		}
	}
	for i, v := range s.Samples {
		if v < 0 || v >= 1 {
			return fmt.Errorf("samples[%d]: %v is outside [0, 1)", i, v)
		}
	}

	for i, step := range s.Flow {
		switch {
		case step.Draw != nil && step.Load != "":
			return fmt.Errorf("flow[%d]: draw and load are mutually exclusive", i)
		case step.Draw != nil:
			if step.Draw.Pool == "" || step.Draw.User == "" {
				return fmt.Errorf("flow[%d]: draw needs pool and user", i)
			}
			if e := step.Expect; e != nil && e.Entry != "" && e.Error != "" {
				return fmt.Errorf("flow[%d].expect: entry and error are mutually exclusive", i)
			}
		case step.Load != "":
			if step.Expect != nil {
				return fmt.Errorf("flow[%d]: expect only applies to draws", i)
			}
		default:
			return fmt.Errorf("flow[%d]: one of draw or load is required", i)
		}
	}

	for i, a := range s.Assertions {
		if a.Pool == "" || a.User == "" {
			return fmt.Errorf("assertions[%d]: pool and user are required", i)
		}
		switch a.Type {
		case AssertHistoryCount:
			if a.Count < 0 {
				return fmt.Errorf("assertions[%d]: count must be non-negative", i)
			}
		case AssertHistoryOrder:
			if len(a.Entries) == 0 {
				return fmt.Errorf("assertions[%d]: entries list is required for history_order", i)
			}
		case AssertEntryCount:
			if a.Entry == "" {
				return fmt.Errorf("assertions[%d]: entry is required for entry_count", i)
			}
		case "":
			return fmt.Errorf("assertions[%d]: type is required", i)
		default:
			return fmt.Errorf("assertions[%d]: unknown assertion type %q", i, a.Type)
		}
	}
	return nil
}
