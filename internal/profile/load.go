package profile

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// #region load

// Load reads a profile from a YAML file. Fields omitted in the file keep
// the reference defaults; the loaded profile is validated before return.
func Load(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read profile %s: %w", path, err)
	}
	p := Default()
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse profile %s: %w", path, err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// #endregion load
