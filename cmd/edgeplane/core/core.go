/*
Copyright 2025 The Edgeplane Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package core implements the commands that run the edgeplane control plane:
// start runs the API server, reconciler workers and drift scanner in one
// process; init runs the initialization steps and exits.
package core

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // Registers the pgx database/sql driver.
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"

	"github.com/crossplane/crossplane-runtime/pkg/errors"
	"github.com/crossplane/crossplane-runtime/pkg/feature"
	"github.com/crossplane/crossplane-runtime/pkg/logging"

	platformv1 "github.com/edgeplane/edgeplane/apis/platform/v1"
	"github.com/edgeplane/edgeplane/internal/apiserver"
	"github.com/edgeplane/edgeplane/internal/features"
	"github.com/edgeplane/edgeplane/internal/initializer"
	"github.com/edgeplane/edgeplane/internal/metrics"
	"github.com/edgeplane/edgeplane/internal/names"
	"github.com/edgeplane/edgeplane/internal/provider"
	"github.com/edgeplane/edgeplane/internal/provider/cloudflare"
	"github.com/edgeplane/edgeplane/internal/provider/github"
	"github.com/edgeplane/edgeplane/internal/provider/releasedeploy"
	"github.com/edgeplane/edgeplane/internal/queue"
	queuememory "github.com/edgeplane/edgeplane/internal/queue/memory"
	queueredis "github.com/edgeplane/edgeplane/internal/queue/redis"
	"github.com/edgeplane/edgeplane/internal/reconciler"
	"github.com/edgeplane/edgeplane/internal/store"
	storememory "github.com/edgeplane/edgeplane/internal/store/memory"
	storepostgres "github.com/edgeplane/edgeplane/internal/store/postgres"
)

// Error strings.
const (
	errOpenStore  = "cannot open store"
	errOpenQueue  = "cannot open queue"
	errInitialize = "cannot initialize control plane"
)

// Cmd groups the control plane commands.
type Cmd struct {
	Start startCommand `cmd:"" help:"Start the edgeplane control plane."`
	Init  initCommand  `cmd:"" help:"Run initialization steps, then exit."`
}

// storeFlags select and configure the backing store.
type storeFlags struct {
	Store       string `default:"memory"                                            enum:"memory,postgres"                                      env:"STORE" help:"Backing store for definitions and instances."`
	DatabaseURL string `env:"DATABASE_URL"                                          help:"PostgreSQL connection string. Required with --store=postgres." placeholder:"postgres://..."`
	SeedDir     string `env:"SEED_DIR"                                              help:"Directory of CustomResourceDefinition manifests applied at startup." type:"path"`
}

func (f *storeFlags) open() (store.Store, func(), error) {
	switch f.Store {
	case "postgres":
		if f.DatabaseURL == "" {
			return nil, nil, errors.New("--database-url is required with --store=postgres")
		}
		db, err := sqlx.Open("pgx", f.DatabaseURL)
		if err != nil {
			return nil, nil, errors.Wrap(err, errOpenStore)
		}
		return storepostgres.New(db), func() { _ = db.Close() }, nil
	default:
		return storememory.New(), func() {}, nil
	}
}

func (f *storeFlags) initialize(ctx context.Context, s store.Store, log logging.Logger) error {
	i := initializer.New(s, log,
		initializer.NewStoreWaiter(30, time.Second, log),
		initializer.NewStoreMigrator(log),
		initializer.NewCoreCRDs(log),
		initializer.NewSeedDirectory(afero.NewOsFs(), f.SeedDir, log),
	)
	return errors.Wrap(i.Init(ctx), errInitialize)
}

// startCommand starts the control plane.
type startCommand struct {
	storeFlags `embed:""`

	InstanceName string `default:"default"                                          env:"INSTANCE_NAME" help:"Name distinguishing this control plane's external objects from other instances on the same account."`
	Domain       string `default:"localhost"                                        env:"DOMAIN"        help:"Hostname suffix under which network-exposed kinds are served."`

	Queue    string `default:"memory"                                               enum:"memory,redis" env:"QUEUE"     help:"Transport for reconcile messages."`
	RedisURL string `default:"redis://localhost:6379"                               env:"REDIS_URL"     help:"Redis connection string. Used with --queue=redis."`

	Listen       string        `default:":8080"                                     env:"LISTEN"        help:"Address at which the API listens."`
	SyncInterval time.Duration `default:"1m"                                        env:"SYNC_INTERVAL" help:"Drift scan interval, also the deadline of one reconcile attempt."`
	Workers      int           `default:"4"                                         env:"WORKERS"       help:"Number of reconcile workers."`

	EnableBetaOrphanDeletion bool `group:"Beta Features:" help:"Enable deletion of external objects that match this instance's naming pattern but have no declared instance."`
	EnableBetaHealthProbes   bool `group:"Beta Features:" help:"Enable periodic health probes of network-exposed instances."`

	CloudflareAPIURL string `default:"https://api.cloudflare.com/client/v4"         env:"CLOUDFLARE_API_URL"   group:"Providers:" help:"Base URL of the platform API."`
	CloudflareToken  string `env:"CLOUDFLARE_API_TOKEN"                             group:"Providers:"         help:"API token for the platform API."`
	CloudflareAcct   string `env:"CLOUDFLARE_ACCOUNT_ID"                            group:"Providers:"         help:"Account under which external objects are provisioned."           name:"cloudflare-account"`
	GitHubAPIURL     string `default:"https://api.github.com"                       env:"GITHUB_API_URL"       group:"Providers:" help:"Base URL of the code hosting API."`
	GitHubToken      string `env:"GITHUB_TOKEN"                                     group:"Providers:"         help:"Token for the code hosting API."`
}

// Run starts the API server, the reconciler workers and the drift scanner,
// and blocks until the process is signalled.
func (c *startCommand) Run(log logging.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, closeStore, err := c.open()
	if err != nil {
		return err
	}
	defer closeStore()

	if err := c.initialize(ctx, s, log); err != nil {
		return err
	}

	producer, consumer, closeQueue, err := c.openQueue(ctx)
	if err != nil {
		return err
	}
	defer closeQueue()

	flags := &feature.Flags{}
	if c.EnableBetaOrphanDeletion {
		flags.Enable(features.EnableBetaOrphanDeletion)
		log.Info("Beta feature enabled", "flag", features.EnableBetaOrphanDeletion)
	}
	if c.EnableBetaHealthProbes {
		flags.Enable(features.EnableBetaHealthProbes)
		log.Info("Beta feature enabled", "flag", features.EnableBetaHealthProbes)
	}

	identity := names.Identity{Instance: c.InstanceName, Domain: c.Domain}
	m := metrics.New()

	r := reconciler.New(s, producer, consumer, c.registry(log), identity,
		reconciler.WithLogger(log),
		reconciler.WithMetrics(m),
		reconciler.WithTimeout(c.SyncInterval),
		reconciler.WithWorkers(c.Workers),
	)
	scanner := reconciler.NewScanner(r, flags,
		reconciler.WithInterval(c.SyncInterval),
		reconciler.WithScanLogger(log),
	)
	srv := apiserver.New(s, producer,
		apiserver.WithLogger(log),
		apiserver.WithMetrics(m),
		apiserver.WithListen(c.Listen),
	)

	log.Info("Starting edgeplane",
		"instance", c.InstanceName,
		"domain", c.Domain,
		"store", c.Store,
		"queue", c.Queue,
		"listen", c.Listen,
		"sync-interval", c.SyncInterval.String(),
		"workers", c.Workers,
	)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Run(ctx) })
	g.Go(func() error { return r.Run(ctx) })
	g.Go(func() error { return scanner.Run(ctx) })
	return g.Wait()
}

// registry wires the built-in platform drivers.
func (c *startCommand) registry(log logging.Logger) *provider.Registry {
	cf := cloudflare.NewClient(c.CloudflareAPIURL, c.CloudflareToken, c.CloudflareAcct,
		cloudflare.WithLogger(log))
	gh := github.NewClient(c.GitHubToken, github.WithBaseURL(c.GitHubAPIURL))

	reg := provider.NewRegistry()
	register := func(kind, plural string, d provider.Driver) {
		reg.Register(provider.Registration{
			GroupKind: provider.GroupKind{Group: platformv1.Group, Kind: kind},
			Version:   platformv1.Version,
			Plural:    plural,
			Driver:    d,
		})
	}

	register(platformv1.D1DatabaseKind, platformv1.D1DatabasePlural, cloudflare.NewD1(cf))
	register(platformv1.QueueKind, platformv1.QueuePlural, cloudflare.NewQueues(cf))
	register(platformv1.WorkerKind, platformv1.WorkerPlural, cloudflare.NewWorkers(cf))
	register(platformv1.ReleaseDeployKind, platformv1.ReleaseDeployPlural,
		releasedeploy.New(cloudflare.NewApps(cf), gh, releasedeploy.WithLogger(log)))
	return reg
}

func (c *startCommand) openQueue(ctx context.Context) (queue.Producer, queue.Consumer, func(), error) {
	switch c.Queue {
	case "redis":
		opts, err := redis.ParseURL(c.RedisURL)
		if err != nil {
			return nil, nil, nil, errors.Wrap(err, errOpenQueue)
		}
		client := redis.NewClient(opts)

		q, err := queueredis.New(ctx, client, "edgeplane", "reconcilers", consumerName())
		if err != nil {
			_ = client.Close()
			return nil, nil, nil, errors.Wrap(err, errOpenQueue)
		}
		return q, q, func() { _ = client.Close() }, nil
	default:
		q := queuememory.New()
		return q, q, q.ShutDown, nil
	}
}

func consumerName() string {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "edgeplane"
	}
	return fmt.Sprintf("%s-%d", hostname, os.Getpid())
}

// initCommand runs the initialization steps without starting the control
// plane, e.g. as a migration job before a rolling deploy.
type initCommand struct {
	storeFlags `embed:""`
}

// Run initializes the store and exits.
func (c *initCommand) Run(log logging.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, closeStore, err := c.open()
	if err != nil {
		return err
	}
	defer closeStore()

	return c.initialize(ctx, s, log)
}
