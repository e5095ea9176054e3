package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// LoadYAML decodes a standalone YAML file into out after substituting
// ${VAR} and ${VAR:-default} references with environment values. It is used
// for documents outside the main config, such as generic carrier definitions.
func LoadYAML(filePath string, out interface{}) error {
	data, err := os.ReadFile(filePath) //nolint:gosec // G304: path comes from operator config
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", filePath, err)
	}

	content := SubstituteEnvVars(string(data))

	if err := yaml.Unmarshal([]byte(content), out); err != nil {
		return fmt.Errorf("failed to parse YAML %s: %w", filePath, err)
	}
	return nil
}

// SubstituteEnvVars replaces ${VAR_NAME} with the environment value. A
// ${VAR:-fallback} form yields fallback when VAR is unset or empty.
func SubstituteEnvVars(content string) string {
	var b strings.Builder
	for {
		start := strings.Index(content, "${")
		if start == -1 {
			break
		}
		end := strings.Index(content[start:], "}")
		if end == -1 {
			break
		}
		end += start

		name := content[start+2 : end]
		fallback := ""
		if i := strings.Index(name, ":-"); i >= 0 {
			name, fallback = name[:i], name[i+2:]
		}
		value := os.Getenv(name)
		if value == "" {
			value = fallback
		}

		b.WriteString(content[:start])
		b.WriteString(value)
		content = content[end+1:]
	}
	b.WriteString(content)
	return b.String()
}
