package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/noria-core/materializer/cluster"
	"github.com/noria-core/materializer/controller"
	"github.com/noria-core/materializer/graph"
	"github.com/noria-core/materializer/migrate"
	"github.com/noria-core/materializer/operator"
)

func main() {
	flag.Parse()

	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	entry := logrus.NewEntry(log).WithField("component", "materializerd")

	cfg, err := loadConfig(*configPath)
	if err != nil {
		entry.WithError(err).Fatal("failed to load config")
	}

	ctrl := controller.New(cfg, cluster.NewLocalAuthority(), entry.WithField("component", "controller"))

	if err := runDemoMigration(ctrl, entry); err != nil {
		entry.WithError(err).Fatal("demo migration failed")
	}

	entry.Info("materializerd bring-up complete")
}

// runDemoMigration builds and applies spec.md §8 seed scenario S1
// (Base -> Filter -> Reader) against a logOnlyClient, the same way
// `driver/_example`'s main.go exercises its engine against an in-memory
// database: there is no real worker transport in scope for this module
// (see DESIGN.md), so bring-up is demonstrated end to end against a
// client that logs every RPC it would have made and answers every
// QueryReplayDone poll as already satisfied.
func runDemoMigration(ctrl *controller.Controller, log *logrus.Entry) error {
	g := graph.New()
	m := ctrl.Begin(g)

	users := m.AddBase("users", []string{"uid", "name", "active"}, operator.BaseSpec{PrimaryKey: []int{0}})
	activeUsers := m.AddIngredient("active_users", []string{"uid", "name", "active"}, operator.Filter{Parent: users})
	if err := m.Maintain("active_users_reader", activeUsers, graph.HashMap([]int{0}), operator.PostLookup{}, nil); err != nil {
		return fmt.Errorf("maintain: %w", err)
	}

	plan, err := m.Plan()
	if err != nil {
		return fmt.Errorf("plan: %w", err)
	}

	client := &logOnlyClient{log: log.WithField("component", "domain_client")}
	applier := migrate.NewApplier(log.WithField("component", "applier"), client)
	return applier.Apply(context.Background(), plan)
}

// logOnlyClient is a migrate.DomainClient that never opens a socket: it
// logs every request it receives and answers every QueryReplayDone poll
// as already done, so a bring-up run completes without a real worker
// fleet. A production deployment substitutes a real transport here
// without touching anything upstream of Applier.Apply.
type logOnlyClient struct {
	log *logrus.Entry
}

func (c *logOnlyClient) SendToHealthy(_ context.Context, domain graph.DomainID, shard *int, req migrate.Request) (migrate.Response, error) {
	c.log.WithFields(logrus.Fields{"domain": domain, "shard": shard}).Infof("%T", req)
	if _, ok := req.(migrate.QueryReplayDoneRequest); ok {
		return true, nil
	}
	return nil, nil
}

func (c *logOnlyClient) PlaceDomain(_ context.Context, domain graph.DomainID, workers []migrate.WorkerID, nodes []graph.NodeHandle) error {
	c.log.WithFields(logrus.Fields{"domain": domain, "workers": workers}).Infof("place %d nodes", len(nodes))
	return nil
}
