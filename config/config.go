// Package config loads the engine's tunables from YAML, grounded on
// the teacher's reinforcement.FromYaml/TrainingConfig/OuterConfig
// pattern (viper for file discovery, a {kind, def} envelope, then a
// second yaml.Unmarshal pass into a concretely-typed struct).
package config

import (
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/niceyeti/abtsolver/search"
)

// OuterConfig mirrors the teacher's {kind, def} envelope -- kind names
// which concrete config shape def should be unmarshaled into. This
// engine recognizes a single kind, "abtsolver.v1".
type OuterConfig struct {
	Kind string      `mapstructure:"kind"`
	Def  interface{} `mapstructure:"def"`
}

// SBTConfig holds the six SBT.* keys recognized per spec.md §6.3.
type SBTConfig struct {
	NParticles  int     `mapstructure:"nParticles"`
	MaxTrials   int     `mapstructure:"maxTrials"`
	MaxDistTry  int     `mapstructure:"maxDistTry"`
	ExploreCoef float64 `mapstructure:"exploreCoef"`
	DepthTh     float64 `mapstructure:"depthTh"`
	DistTh      float64 `mapstructure:"distTh"`
}

// ProblemConfig holds the one problem-scoped key, discount (gamma).
type ProblemConfig struct {
	Discount float64 `mapstructure:"discount"`
}

// SearchConfig is the engine's full recognized configuration, spec.md
// §6.3.
type SearchConfig struct {
	SBT     SBTConfig     `mapstructure:"SBT"`
	Problem ProblemConfig `mapstructure:"problem"`
}

// SearchDriverConfig projects the SBT fields search.Driver actually
// needs into a search.Config.
func (c *SearchConfig) SearchDriverConfig() search.Config {
	return search.Config{
		ExploreCoef:    c.SBT.ExploreCoef,
		DepthThreshold: c.SBT.DepthTh,
		MaxDistTry:     c.SBT.MaxDistTry,
		DistThreshold:  c.SBT.DistTh,
	}
}

// defaults mirrors reasonable POMCP defaults; FromYaml starts from
// these so a config file may omit keys it doesn't want to override.
func defaults() SearchConfig {
	return SearchConfig{
		SBT: SBTConfig{
			NParticles:  1000,
			MaxTrials:   5000,
			MaxDistTry:  50,
			ExploreCoef: 1.0,
			DepthTh:     0.005,
			DistTh:      1.0,
		},
		Problem: ProblemConfig{Discount: 0.95},
	}
}

// FromYaml loads a SearchConfig from a YAML file shaped like:
//
//	kind: abtsolver.v1
//	def:
//	  SBT:
//	    nParticles: 1000
//	    ...
//	  problem:
//	    discount: 0.95
//
// Grounded on reinforcement.FromYaml's exact two-pass approach: viper
// reads the file and unmarshals the {kind, def} envelope generically,
// then def is re-marshaled to YAML and unmarshaled a second time into
// the concretely-typed SearchConfig. This avoids viper's own
// mapstructure decoder needing to know SearchConfig's shape up front
// and matches the file-on-disk layout this engine was asked to load.
func FromYaml(path string) (*SearchConfig, error) {
	vp := viper.New()
	vp.SetConfigFile(path)
	vp.SetConfigType("yaml")
	vp.AddConfigPath(filepath.Dir(path))
	if err := vp.ReadInConfig(); err != nil {
		return nil, err
	}
	return decode(vp)
}

func decode(vp *viper.Viper) (*SearchConfig, error) {
	outer := &OuterConfig{}
	if err := vp.Unmarshal(outer); err != nil {
		return nil, err
	}

	spec, err := yaml.Marshal(outer.Def)
	if err != nil {
		return nil, err
	}

	cfg := defaults()
	if err := yaml.Unmarshal(spec, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Watcher holds the viper instance backing a hot-reloaded SearchConfig,
// per SPEC_FULL.md §6.3's supplement: exploreCoef and maxTrials (and,
// incidentally, every other key) may be edited on disk while a long
// improvement run is in progress.
type Watcher struct {
	vp *viper.Viper
}

// Watch loads path and arranges for onChange to be invoked with the
// freshly reloaded SearchConfig every time fsnotify reports the file
// changed. Returns the initial config alongside the Watcher.
func Watch(path string, onChange func(*SearchConfig)) (*SearchConfig, *Watcher, error) {
	vp := viper.New()
	vp.SetConfigFile(path)
	vp.SetConfigType("yaml")
	vp.AddConfigPath(filepath.Dir(path))
	if err := vp.ReadInConfig(); err != nil {
		return nil, nil, err
	}

	cfg, err := decode(vp)
	if err != nil {
		return nil, nil, err
	}

	vp.OnConfigChange(func(e fsnotify.Event) {
		if updated, err := decode(vp); err == nil {
			onChange(updated)
		}
	})
	vp.WatchConfig()

	return cfg, &Watcher{vp: vp}, nil
}
