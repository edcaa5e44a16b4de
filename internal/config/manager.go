package config

import (
	"os"
	"sync"

	"gopkg.in/yaml.v2"
)

// PresetsConfig holds named world presets layered on top of the master
// config's World section, e.g. a "large-obstacles" preset for demos distinct
// from the default boot world.
type PresetsConfig struct {
	Presets map[string]WorldConfig `yaml:"presets"`
}

// Manager resolves the effective config for a named world preset, merging a
// preset's non-zero fields over the master config's World section.
type Manager struct {
	globalConfig *Config
	presets      map[string]WorldConfig
	mu           sync.RWMutex
}

// NewManager loads the master config plus an optional presets file. A
// missing presets file is not an error; it just yields an empty preset set.
func NewManager(masterPath, presetsPath string) (*Manager, error) {
	master, err := LoadConfig(masterPath)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
		master = &Config{}
	}
	master.applyEnvOverrides()
	master.applyDefaults()

	f, err := os.Open(presetsPath)
	if err != nil {
		if os.IsNotExist(err) {
			return &Manager{globalConfig: master, presets: make(map[string]WorldConfig)}, nil
		}
		return nil, err
	}
	defer f.Close()

	var pc PresetsConfig
	if err := yaml.NewDecoder(f).Decode(&pc); err != nil {
		return nil, err
	}

	return &Manager{globalConfig: master, presets: pc.Presets}, nil
}

// Get returns the effective config with the named preset's non-zero World
// fields overlaid on the master config. An unknown name returns the master
// config unchanged.
func (m *Manager) Get(presetName string) *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()

	effective := *m.globalConfig

	preset, ok := m.presets[presetName]
	if !ok {
		return &effective
	}

	if preset.Kind != "" {
		effective.World.Kind = preset.Kind
	}
	if preset.Width != 0 {
		effective.World.Width = preset.Width
	}
	if preset.Height != 0 {
		effective.World.Height = preset.Height
	}
	if preset.ObstaclePercent != 0 {
		effective.World.ObstaclePercent = preset.ObstaclePercent
	}
	if preset.ObstacleSeed != 0 {
		effective.World.ObstacleSeed = preset.ObstacleSeed
	}
	if preset.ProbUp != 0 || preset.ProbDown != 0 || preset.ProbLeft != 0 || preset.ProbRight != 0 {
		effective.World.ProbUp = preset.ProbUp
		effective.World.ProbDown = preset.ProbDown
		effective.World.ProbLeft = preset.ProbLeft
		effective.World.ProbRight = preset.ProbRight
	}
	if preset.K != 0 {
		effective.World.K = preset.K
	}
	if preset.TotalReps != 0 {
		effective.World.TotalReps = preset.TotalReps
	}

	return &effective
}

// Names returns the known preset names.
func (m *Manager) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.presets))
	for name := range m.presets {
		names = append(names, name)
	}
	return names
}
