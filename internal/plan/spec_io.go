package plan

import (
	"fmt"
	"os"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// LoadSpecFile reads a workflow spec from a YAML file. The spec is
// validated and assigned a server-generated id when the file omits one.
func LoadSpecFile(path string) (*WorkflowSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read spec file: %w", err)
	}

	var spec WorkflowSpec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return nil, fmt.Errorf("failed to parse spec file: %w", err)
	}

	// Shots commonly omit duration in hand-written files
	for i := range spec.Shots {
		if spec.Shots[i].Duration == 0 {
			spec.Shots[i].Duration = spec.Shots[i].TimeEnd - spec.Shots[i].TimeStart
		}
	}

	if err := spec.Validate(); err != nil {
		return nil, err
	}

	if spec.ID == "" {
		spec.ID = uuid.New().String()
	}

	return &spec, nil
}

// SaveSpecFile writes a workflow spec as YAML.
func SaveSpecFile(spec *WorkflowSpec, path string) error {
	data, err := yaml.Marshal(spec)
	if err != nil {
		return fmt.Errorf("failed to marshal spec: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write spec file: %w", err)
	}
	return nil
}
