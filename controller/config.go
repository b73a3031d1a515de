// Package controller assembles the materialization registry, the
// migration builder, and the migration plan/apply pipeline into the
// single entry point a caller drives to add graph fragments and commit
// them. It is the direct analogue of the original's
// `controller::migrate::Migration` plus its enclosing `Controller`,
// kept in the teacher's own `sqle.Engine`/`Config` idiom: an exported
// Config struct with doc-commented fields and a `DefaultConfig`
// constructor, a single owning struct threading a scoped logger.
package controller

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/noria-core/materializer/cluster"
	"github.com/noria-core/materializer/graph"
	"github.com/noria-core/materializer/materialize"
	"github.com/noria-core/materializer/migrate"
)

// ReuseStrategy selects how aggressively the controller looks for an
// existing view to satisfy a new query instead of adding fresh nodes.
// The materialization planner itself is indifferent to reuse (it only
// ever sees the graph it's handed); this knob only affects what MIR
// lowering feeds into AddIngredient/AddBase before a migration is
// built, so it is threaded through Config purely for the caller's
// benefit.
type ReuseStrategy int

const (
	// ReuseNone never reuses an existing view; every query gets its own
	// fragment.
	ReuseNone ReuseStrategy = iota
	// ReuseFinkelstein reuses a view only when it is an exact match.
	ReuseFinkelstein
	// ReuseRelaxed reuses a view that is a superset of what's needed,
	// accepting some wasted state in exchange for fewer nodes.
	ReuseRelaxed
)

// Config bundles the knobs a Controller needs at construction time.
type Config struct {
	// Sharding is a shard count (nil for none). It is stored on the
	// Config only: no code in this module reads it, base sharding comes
	// from operator.BaseSpec.Sharding, and Plan declares every domain
	// with a single shard.
	Sharding *int

	// PartialEnabled sets whether new materializations are allowed to
	// be partial at all. Disabled for deployments that can't tolerate
	// the miss-then-replay latency partial state introduces.
	PartialEnabled bool

	// FrontierStrategy selects which partial materializations are
	// placed beyond the eviction frontier.
	FrontierStrategy materialize.FrontierStrategy

	// Reuse selects how aggressively query planning looks for an
	// existing view before adding new nodes.
	Reuse ReuseStrategy

	// ReplayBarrierPoll is a QueryReplayDone re-poll interval. It is
	// stored on the Config only: migrate.NewApplier does not take it,
	// and an Applier always polls every migrate.BarrierPollInterval.
	ReplayBarrierPoll time.Duration
}

// DefaultConfig returns the Config a single-process, single-node
// deployment should start from: sharding disabled, partial
// materialization on, no frontier eviction, no view reuse, and the
// applier's standard replay poll interval.
func DefaultConfig() *Config {
	return &Config{
		Sharding:          nil,
		PartialEnabled:    true,
		FrontierStrategy:  materialize.FrontierNone,
		Reuse:             ReuseNone,
		ReplayBarrierPoll: migrate.BarrierPollInterval,
	}
}

// Controller owns the materialization registry and coordinates
// building and committing migrations against it. A Controller is not
// safe for concurrent use: callers serialize migrations through a
// single owner, same as the registry it wraps.
type Controller struct {
	log *logrus.Entry

	cfg *Config

	authority cluster.Authority
	registry  *materialize.Registry

	nextDomain graph.DomainID
}

func (c *Controller) allocDomain() graph.DomainID {
	d := c.nextDomain
	c.nextDomain++
	return d
}

// New returns a Controller with an empty materialization registry,
// configured per cfg. A nil cfg uses DefaultConfig. A nil authority
// uses an in-process cluster.LocalAuthority, suitable for tests and
// single-node deployments.
func New(cfg *Config, authority cluster.Authority, log *logrus.Entry) *Controller {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if authority == nil {
		authority = cluster.NewLocalAuthority()
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}

	reg := materialize.New(log.WithField("component", "materialize"))
	if !cfg.PartialEnabled {
		reg.DisablePartial()
	}
	reg.SetFrontierStrategy(cfg.FrontierStrategy)

	return &Controller{log: log, cfg: cfg, authority: authority, registry: reg}
}

// Config returns the controller's configuration.
func (c *Controller) Config() *Config { return c.cfg }

// Authority returns the controller's cluster authority client.
func (c *Controller) Authority() cluster.Authority { return c.authority }

// Registry returns the controller's materialization registry.
func (c *Controller) Registry() *materialize.Registry { return c.registry }
