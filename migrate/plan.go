package migrate

import (
	"github.com/sirupsen/logrus"

	"github.com/noria-core/materializer/graph"
	"github.com/noria-core/materializer/rserr"
)

// Entry is one recorded action of a Plan: either a domain placement or a
// message send.
type Entry interface {
	isEntry()
}

// Place creates a domain on the given workers (one per shard) and seeds
// it with the given nodes.
type Place struct {
	Domain  graph.DomainID
	Workers []WorkerID
	Nodes   []graph.NodeHandle
}

func (Place) isEntry() {}

// Send forwards a Request to a domain, optionally to a single shard (nil
// means every shard).
type Send struct {
	Domain  graph.DomainID
	Shard   *int
	Request Request
}

func (Send) isEntry() {}

// PendingReplay records a replay the Applier must kick off once its
// path's PrepareState/SetupReplayPath entries have been applied.
type PendingReplay struct {
	Tag          graph.Tag
	SourceDomain graph.DomainID
	SourceNode   graph.NodeHandle
}

// Plan is an ordered, serializable record of the actions a commit
// produces. It validates every Send against the set of domains and
// shard counts declared valid for this plan, matching the original's
// `valid_domains` check: a Send naming an undeclared domain or an
// out-of-range shard fails immediately, before anything is applied.
type Plan struct {
	log *logrus.Entry

	entries      []Entry
	validDomains map[graph.DomainID]int
	pending      []PendingReplay
}

// New returns an empty Plan logging through log.
func New(log *logrus.Entry) *Plan {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Plan{
		log:          log,
		validDomains: make(map[graph.DomainID]int),
	}
}

// DeclareDomain records domain as valid for this plan, with the given
// shard count (1 for unsharded).
func (p *Plan) DeclareDomain(domain graph.DomainID, shardCount int) {
	p.validDomains[domain] = shardCount
}

// Place records a domain-placement entry. The domain must already be
// declared via DeclareDomain.
func (p *Plan) Place(domain graph.DomainID, workers []WorkerID, nodes []graph.NodeHandle) error {
	if _, ok := p.validDomains[domain]; !ok {
		return rserr.ErrUnknownDomain.New(domain)
	}
	p.entries = append(p.entries, Place{Domain: domain, Workers: workers, Nodes: nodes})
	return nil
}

// Send enqueues req against domain (and, if shard is non-nil, a single
// shard of it), validating both against the plan's declared domains.
func (p *Plan) Send(domain graph.DomainID, shard *int, req Request) error {
	shards, ok := p.validDomains[domain]
	if !ok {
		return rserr.ErrUnknownDomain.New(domain)
	}
	if shard != nil && (*shard < 0 || *shard >= shards) {
		return rserr.ErrUnknownShard.New(*shard, domain)
	}
	p.entries = append(p.entries, Send{Domain: domain, Shard: shard, Request: req})
	return nil
}

// AddPending records a replay the Applier must kick off after its path
// has been staged.
func (p *Plan) AddPending(pr PendingReplay) {
	p.pending = append(p.pending, pr)
}

// Entries returns every recorded action, in the order they were added.
func (p *Plan) Entries() []Entry { return p.entries }

// Pending returns every pending replay recorded for this plan.
func (p *Plan) Pending() []PendingReplay { return p.pending }

// Len reports the number of recorded entries.
func (p *Plan) Len() int { return len(p.entries) }
