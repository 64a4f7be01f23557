// Package config loads the optional agc.yaml file that tunes a runtime
// invocation: worker count, the GPU-dispatch cost threshold, and the
// distributed datastore's node list. gopkg.in/yaml.v3 is the same config
// format the pack's other services (ProbeChain-go-probe, ava-labs-libevm,
// sarchlab-zeonica, clarete-langlang) load their own settings with.
package config

import (
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the full set of runtime-tunable knobs a deployment may want
// to override without recompiling the module.
type Config struct {
	Workers        int      `yaml:"workers"`
	GPUThreshold   int      `yaml:"gpu_threshold"`
	DatastoreNodes []string `yaml:"datastore_nodes"`
	LogLevel       string   `yaml:"log_level"`
}

// Default returns the configuration used when no agc.yaml is present.
func Default() Config {
	return Config{Workers: 1, GPUThreshold: 1 << 20, LogLevel: "info"}
}

// Load reads path if it exists, overlaying its fields onto Default();
// a missing file is not an error (every field is optional).
func Load(path string) (Config, error) {
	cfg := Default()
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}
