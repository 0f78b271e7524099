package config

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/dealcast/dealcast/internal/model"
)

type channelsFile struct {
	Channels []model.ChannelProfile `yaml:"channels"`
}

// LoadChannels reads and validates the channel profiles from a YAML file.
// The rotation order is the file order.
func LoadChannels(path string) ([]model.ChannelProfile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "config: read channels file %s", path)
	}

	var f channelsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, eris.Wrapf(err, "config: parse channels file %s", path)
	}
	if len(f.Channels) == 0 {
		return nil, eris.Errorf("config: channels file %s defines no channels", path)
	}

	seen := make(map[string]bool, len(f.Channels))
	for _, p := range f.Channels {
		if err := p.Validate(); err != nil {
			return nil, eris.Wrapf(err, "config: channels file %s", path)
		}
		if seen[p.Key] {
			return nil, eris.Errorf("config: channels file %s: duplicate channel key %s", path, p.Key)
		}
		seen[p.Key] = true
	}

	return f.Channels, nil
}
