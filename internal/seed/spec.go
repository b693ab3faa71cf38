package seed

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/variant-labs/variant-go/internal/domain"
)

const SpecSchemaV1 = "variant.experiments.v1"

// Spec is a declarative experiment definition file. Operators check these
// into the deployment repo; the service creates any experiment it does not
// already have on boot.
type Spec struct {
	Schema      string           `yaml:"schema"`
	Experiments []ExperimentSpec `yaml:"experiments"`
}

type ExperimentSpec struct {
	Name        string         `yaml:"name"`
	Description string         `yaml:"description,omitempty"`
	Variants    []VariantSpec  `yaml:"variants"`
	CreatedBy   string         `yaml:"created_by,omitempty"`
	Config      map[string]any `yaml:"config,omitempty"`
}

type VariantSpec struct {
	Name              string         `yaml:"name"`
	Description       string         `yaml:"description,omitempty"`
	TrafficAllocation float64        `yaml:"traffic_allocation"`
	Config            map[string]any `yaml:"config,omitempty"`
}

func ParseSpec(input []byte) (Spec, error) {
	var spec Spec
	if err := yaml.Unmarshal(input, &spec); err != nil {
		return Spec{}, fmt.Errorf("decode spec: %w", err)
	}
	if err := spec.Validate(); err != nil {
		return Spec{}, err
	}
	return spec, nil
}

func (s Spec) Validate() error {
	if strings.TrimSpace(s.Schema) != SpecSchemaV1 {
		return fmt.Errorf("spec.schema must be %q", SpecSchemaV1)
	}
	if len(s.Experiments) == 0 {
		return fmt.Errorf("spec.experiments must be non-empty")
	}

	seen := make(map[string]struct{}, len(s.Experiments))
	for i, experiment := range s.Experiments {
		name := strings.TrimSpace(experiment.Name)
		if name == "" {
			return fmt.Errorf("spec.experiments[%d].name is required", i)
		}
		key := strings.ToLower(name)
		if _, ok := seen[key]; ok {
			return fmt.Errorf("spec.experiments[%d].name must be unique (duplicate %q)", i, name)
		}
		seen[key] = struct{}{}

		if len(experiment.Variants) < 2 {
			return fmt.Errorf("spec.experiments[%d] (%s): requires at least 2 variants", i, name)
		}
		variants := make([]domain.Variant, 0, len(experiment.Variants))
		for _, variant := range experiment.Variants {
			variants = append(variants, domain.Variant{
				Name:              variant.Name,
				Description:       variant.Description,
				TrafficAllocation: variant.TrafficAllocation,
				Config:            domain.Metadata(variant.Config),
			})
		}
		if err := domain.ValidateVariants(variants); err != nil {
			return fmt.Errorf("spec.experiments[%d] (%s): %w", i, name, err)
		}
	}
	return nil
}
