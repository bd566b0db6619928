package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/naveego/plugin-sage/pkg/busobject"
)

// Load loads a configuration from a YAML file
func Load(filePath string, config interface{}) error {
	data, err := os.ReadFile(filePath) //nolint:gosec // G304: File path is controlled by caller and validated
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	content := substituteEnvVars(string(data))

	if err := yaml.Unmarshal([]byte(content), config); err != nil {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}

	return nil
}

// modulesFile is the layout of a modules override file
type modulesFile struct {
	Modules []busobject.ModuleConfig `yaml:"modules"`
}

// LoadModules reads extra module configs from a YAML file of the form
//
//	modules:
//	  - name: Vendor Information
//	    module: A/P
//	    bus_object: AP_Vendor_bus
//	    task: AP_Vendor_ui
//	    table: AP_Vendor
//	    keys: [APDivisionNo, VendorNo]
func LoadModules(filePath string) ([]busobject.ModuleConfig, error) {
	var f modulesFile
	if err := Load(filePath, &f); err != nil {
		return nil, err
	}
	for i, m := range f.Modules {
		if m.LogicalName == "" || m.BusObject == "" || m.Module == "" {
			return nil, fmt.Errorf("module %d in %s requires name, module and bus_object", i, filePath)
		}
	}
	return f.Modules, nil
}

// substituteEnvVars replaces ${VAR_NAME} with environment variable values
func substituteEnvVars(content string) string {
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

		varName := content[start+2 : end]
		envValue := os.Getenv(varName)
		content = content[:start] + envValue + content[end+1:]
	}
	return content
}
