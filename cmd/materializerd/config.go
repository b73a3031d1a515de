// Command materializerd is a small CLI front end over package
// controller: it loads a config file, wires up logging, brings up a
// Controller, and runs a demonstration migration against a logging-only
// domain client (no real worker transport is in scope — see
// DESIGN.md). It follows the `driver/_example` idiom of a short,
// runnable program rather than a long-lived service skeleton.
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v2"

	"github.com/noria-core/materializer/controller"
	"github.com/noria-core/materializer/materialize"
)

// fileConfig mirrors spec.md §6's Configuration list: the recognized
// keys a deployment may set in a TOML or YAML file, one field per key. Doc
// comments describe the accepted values the way the teacher's
// `sqle.Config` documents its own fields in engine.go.
type fileConfig struct {
	// Sharding is the shard count, or 0 for "none".
	Sharding int `toml:"sharding" yaml:"sharding"`

	// PartialEnabled toggles partial materialization globally.
	PartialEnabled bool `toml:"partial_enabled" yaml:"partial_enabled"`

	// FrontierStrategy is one of "none", "all_partial", "readers", or
	// "match:<substr>".
	FrontierStrategy string `toml:"frontier_strategy" yaml:"frontier_strategy"`

	// Reuse is one of "none", "finkelstein", or "relaxed".
	Reuse string `toml:"reuse" yaml:"reuse"`

	// ReplayBarrierPollMS is a QueryReplayDone re-poll interval, in
	// milliseconds, copied into controller.Config.ReplayBarrierPoll.
	// Defaults to 200 when unset. The Applier this program builds does
	// not read it and always polls every migrate.BarrierPollInterval.
	ReplayBarrierPollMS int `toml:"replay_barrier_poll_ms" yaml:"replay_barrier_poll_ms"`
}

func defaultFileConfig() fileConfig {
	return fileConfig{
		PartialEnabled:      true,
		FrontierStrategy:    "none",
		Reuse:               "none",
		ReplayBarrierPollMS: 200,
	}
}

func loadConfig(path string) (*controller.Config, error) {
	fc := defaultFileConfig()
	if path != "" {
		if err := decodeFileConfig(path, &fc); err != nil {
			return nil, fmt.Errorf("loading config %s: %w", path, err)
		}
	}

	cfg := controller.DefaultConfig()
	if fc.Sharding > 0 {
		n := fc.Sharding
		cfg.Sharding = &n
	}
	cfg.PartialEnabled = fc.PartialEnabled

	strategy, err := parseFrontierStrategy(fc.FrontierStrategy)
	if err != nil {
		return nil, err
	}
	cfg.FrontierStrategy = strategy

	reuse, err := parseReuseStrategy(fc.Reuse)
	if err != nil {
		return nil, err
	}
	cfg.Reuse = reuse

	if fc.ReplayBarrierPollMS > 0 {
		cfg.ReplayBarrierPoll = time.Duration(fc.ReplayBarrierPollMS) * time.Millisecond
	}
	return cfg, nil
}

// decodeFileConfig decodes path into fc, dispatching on its extension:
// ".yaml"/".yml" bootstrap files (the format an environment's config
// management typically drops alongside the TOML the rest of this
// package uses) decode via gopkg.in/yaml.v2; everything else is TOML.
func decodeFileConfig(path string, fc *fileConfig) error {
	if ext := strings.ToLower(path); strings.HasSuffix(ext, ".yaml") || strings.HasSuffix(ext, ".yml") {
		b, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		return yaml.Unmarshal(b, fc)
	}
	_, err := toml.DecodeFile(path, fc)
	return err
}

func parseFrontierStrategy(s string) (materialize.FrontierStrategy, error) {
	switch {
	case s == "" || s == "none":
		return materialize.FrontierNone, nil
	case s == "all_partial":
		return materialize.FrontierAllPartial, nil
	case s == "readers":
		return materialize.FrontierReaders, nil
	case len(s) > 6 && s[:6] == "match:":
		return materialize.FrontierMatch(s[6:]), nil
	default:
		return materialize.FrontierStrategy{}, fmt.Errorf("unrecognized frontier_strategy %q", s)
	}
}

func parseReuseStrategy(s string) (controller.ReuseStrategy, error) {
	switch s {
	case "", "none":
		return controller.ReuseNone, nil
	case "finkelstein":
		return controller.ReuseFinkelstein, nil
	case "relaxed":
		return controller.ReuseRelaxed, nil
	default:
		return controller.ReuseNone, fmt.Errorf("unrecognized reuse %q", s)
	}
}

var configPath = flag.String("config", "", "path to a materializerd TOML or YAML (.yaml/.yml) config file (optional)")
