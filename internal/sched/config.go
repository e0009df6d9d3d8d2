package sched

import (
	"os"

	yaml "github.com/goccy/go-yaml"
)

// Config mirrors config.yml
type Config struct {
	Cores                int     `yaml:"cores"`                 // number of virtual cores (4 by default)
	QuantumMS            int     `yaml:"quantum_ms"`            // preemption quantum in milliseconds (10 by default)
	PreemptionPriorities []int32 `yaml:"preemption_priorities"` // per-core preemption threshold (59,59,59,63 by default)
	EventBuffer          int     `yaml:"event_buffer"`          // status event channel capacity (256 by default)
}

// If the config file is not found, we use default values. The defaults match
// the emulated kernel: four cores, a 10ms quantum, and round-robin thresholds
// of 59 on the application cores and 63 on the system core.
func defaultConfig() Config {
	return Config{
		Cores:                4,
		QuantumMS:            10,
		PreemptionPriorities: []int32{59, 59, 59, 63},
		EventBuffer:          256,
	}
}

// Load reads YAML and overrides defaults; empty path = defaults only
func Load(path string) Config {
	cfg := defaultConfig()

	if path == "" {
		return cfg
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg
	}

	_ = yaml.Unmarshal(data, &cfg)

	// sanity clamps
	if cfg.Cores <= 0 {
		cfg.Cores = 4
	}
	if cfg.QuantumMS <= 0 {
		cfg.QuantumMS = 10
	}
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = 256
	}
	// pad or trim the threshold list to the core count; padding repeats the
	// last configured threshold.
	if len(cfg.PreemptionPriorities) == 0 {
		cfg.PreemptionPriorities = defaultConfig().PreemptionPriorities
	}
	for len(cfg.PreemptionPriorities) < cfg.Cores {
		cfg.PreemptionPriorities = append(cfg.PreemptionPriorities, cfg.PreemptionPriorities[len(cfg.PreemptionPriorities)-1])
	}
	cfg.PreemptionPriorities = cfg.PreemptionPriorities[:cfg.Cores]

	return cfg
}
