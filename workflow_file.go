package lazyrag

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// SaveWorkflowFile writes the workflow configuration to path as YAML.
// The file is the unit of persistence: LoadWorkflowFile restores an
// equivalent workflow given a registry with the same backend kinds.
func SaveWorkflowFile(path string, w *Workflow) error {
	data, err := yaml.Marshal(map[string]any(w.Dump()))
	if err != nil {
		return fmt.Errorf("marshal workflow: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write workflow file: %w", err)
	}
	return nil
}

// LoadWorkflowFile reads a YAML workflow definition, expands ${VAR} and
// ${VAR:-default} environment references, and reconstructs the workflow
// through the registry.
func LoadWorkflowFile(reg *Registry, path string, opts ...WorkflowOption) (*Workflow, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read workflow file: %w", err)
	}

	data = expandEnvVars(data)

	var cfg map[string]any
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse workflow file: %w", err)
	}

	return LoadWorkflow(reg, Config(cfg), opts...)
}

var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
