package agent

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Profile defines an assistant's personality and capabilities.
type Profile struct {
	Name         string   `yaml:"name"`
	Model        string   `yaml:"model"`
	SystemPrompt string   `yaml:"system_prompt"`
	Tools        []string `yaml:"tools"`
	MaxIter      int      `yaml:"max_iterations"`
}

// LoadProfile reads an agent profile from a YAML file.
func LoadProfile(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading profile %s: %w", path, err)
	}

	var p Profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parsing profile %s: %w", path, err)
	}
	if p.Name == "" {
		p.Name = trimExt(filepath.Base(path))
	}

	return &p, nil
}

// LoadNamedProfile loads dir/<name>.yaml. An empty name yields a nil profile.
func LoadNamedProfile(dir, name string) (*Profile, error) {
	if name == "" {
		return nil, nil
	}
	if name != filepath.Base(name) {
		return nil, fmt.Errorf("invalid profile name %q", name)
	}
	return LoadProfile(filepath.Join(dir, name+".yaml"))
}

func trimExt(name string) string {
	return name[:len(name)-len(filepath.Ext(name))]
}
