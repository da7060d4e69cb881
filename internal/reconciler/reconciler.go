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

// Package reconciler implements the controller runtime: workers that consume
// reconcile messages and drive external state toward declared state, plus the
// periodic drift scanner. Reconciliation is eventually consistent; every path
// here must be idempotent because the queue delivers at least once, in any
// order, to any number of workers.
package reconciler

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
	"k8s.io/utils/clock"

	"github.com/crossplane/crossplane-runtime/pkg/errors"
	"github.com/crossplane/crossplane-runtime/pkg/logging"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/edgeplane/edgeplane/internal/metrics"
	"github.com/edgeplane/edgeplane/internal/names"
	"github.com/edgeplane/edgeplane/internal/provider"
	"github.com/edgeplane/edgeplane/internal/queue"
	"github.com/edgeplane/edgeplane/internal/store"
	"github.com/edgeplane/edgeplane/internal/xresource"
)

const (
	defaultWorkers = 4
	defaultTimeout = time.Minute
	batchSize      = 10

	// How long a freshly provisioned external name is shielded from the
	// orphan sweep. Covers the window between the provider call and the
	// status write landing in the store.
	recentTTL = 10 * time.Minute
)

// Error strings.
const (
	errGetResource  = "cannot get resource"
	errListDeps     = "cannot list dependency candidates"
	errSetStatus    = "cannot write status"
	errCreate       = "cannot create external object"
	errAdoptList    = "cannot list external objects for adoption"
	errAdoptNoMatch = "external object already exists but no listed object matches the deterministic name"
	errDelete       = "cannot delete external object"
	errFanOut       = "cannot fan out to dependents"
	errEnqueue      = "cannot enqueue reconcile message"
)

// Status messages.
const (
	msgWaitingDeps = "waiting for dependencies to become Ready"
)

// A Reconciler consumes reconcile messages and provisions external objects
// through the registered drivers.
type Reconciler struct {
	store    store.Store
	producer queue.Producer
	consumer queue.Consumer
	registry *provider.Registry
	identity names.Identity

	log     logging.Logger
	clock   clock.Clock
	metrics *metrics.Metrics
	timeout time.Duration
	workers int

	// External names provisioned recently, shared with the drift scanner so
	// the orphan sweep does not delete objects created mid-scan.
	recent *gocache.Cache
}

// An Option configures the reconciler.
type Option func(*Reconciler)

// WithLogger configures how the reconciler logs.
func WithLogger(log logging.Logger) Option {
	return func(r *Reconciler) {
		r.log = log
	}
}

// WithClock configures the clock used for status timestamps.
func WithClock(c clock.Clock) Option {
	return func(r *Reconciler) {
		r.clock = c
	}
}

// WithMetrics configures the reconciler's instrumentation.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Reconciler) {
		r.metrics = m
	}
}

// WithTimeout configures the deadline of one reconcile attempt. It should
// match the drift scan interval so an attempt never outlives the tick that
// may retry it.
func WithTimeout(d time.Duration) Option {
	return func(r *Reconciler) {
		r.timeout = d
	}
}

// WithWorkers configures how many workers consume the queue.
func WithWorkers(n int) Option {
	return func(r *Reconciler) {
		r.workers = n
	}
}

// New returns a reconciler consuming the supplied queue.
func New(s store.Store, producer queue.Producer, consumer queue.Consumer, registry *provider.Registry, identity names.Identity, o ...Option) *Reconciler {
	r := &Reconciler{
		store:    s,
		producer: producer,
		consumer: consumer,
		registry: registry,
		identity: identity,
		log:      logging.NewNopLogger(),
		clock:    clock.RealClock{},
		metrics:  metrics.New(),
		timeout:  defaultTimeout,
		workers:  defaultWorkers,
		recent:   gocache.New(recentTTL, recentTTL),
	}
	for _, fn := range o {
		fn(r)
	}
	return r
}

// Run consumes the queue with the configured number of workers until the
// context is done.
func (r *Reconciler) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < r.workers; i++ {
		g.Go(func() error {
			return r.worker(ctx)
		})
	}
	return g.Wait()
}

func (r *Reconciler) worker(ctx context.Context) error {
	type measurable interface{ Len() int }

	for {
		if ctx.Err() != nil {
			return nil //nolint:nilerr // Shutdown is not an error.
		}

		ds, err := r.consumer.Receive(ctx, batchSize)
		if err != nil {
			if ctx.Err() != nil {
				return nil //nolint:nilerr // Shutdown is not an error.
			}
			r.log.Info("Cannot receive from queue", "error", err)
			continue
		}

		if q, ok := r.consumer.(measurable); ok {
			r.metrics.QueueDepth.Set(float64(q.Len()))
		}

		for _, d := range ds {
			r.process(ctx, d)
		}
	}
}

// process runs exactly one reconcile attempt for one delivery, then settles
// it: retriable failures requeue the message, everything else acks it.
func (r *Reconciler) process(ctx context.Context, d queue.Delivery) {
	m := d.Message()
	log := r.log.WithValues("kind", m.Kind, "group", m.Group, "name", m.Name, "namespace", m.Namespace, "action", m.Action)

	reg, ok := r.registry.Lookup(m.Group, m.Kind)
	if !ok {
		// Declaration-only kind; nothing reconciles it.
		log.Debug("No driver registered; skipping")
		r.metrics.Reconciles.WithLabelValues(m.Kind, string(m.Action), metrics.ResultSkipped).Inc()
		r.settle(ctx, d.Ack, log)
		return
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	start := r.clock.Now()
	err := r.reconcile(ctx, reg, m)
	r.metrics.ReconcileDuration.WithLabelValues(m.Kind, string(m.Action)).Observe(r.clock.Since(start).Seconds())

	if err != nil {
		log.Info("Reconcile failed; retrying", "error", err)
		r.metrics.Reconciles.WithLabelValues(m.Kind, string(m.Action), metrics.ResultRetry).Inc()
		r.settle(ctx, d.Retry, log)
		return
	}

	r.metrics.Reconciles.WithLabelValues(m.Kind, string(m.Action), metrics.ResultSuccess).Inc()
	r.settle(ctx, d.Ack, log)
}

// settle acks or retries without a deadline; the reconcile attempt's deadline
// must not strand a message unsettled.
func (r *Reconciler) settle(ctx context.Context, fn func(context.Context) error, log logging.Logger) {
	if err := fn(context.WithoutCancel(ctx)); err != nil {
		log.Info("Cannot settle delivery", "error", err)
	}
}

// reconcile dispatches one message. A returned error means the attempt is
// retriable; permanent failures are recorded in status and absorbed.
func (r *Reconciler) reconcile(ctx context.Context, reg provider.Registration, m queue.Message) error {
	switch m.Action {
	case queue.ActionCreate:
		return r.reconcileCreate(ctx, reg, m)
	case queue.ActionDelete:
		return r.reconcileDelete(ctx, reg, m)
	default:
		r.log.Debug("Unknown action; dropping message", "action", m.Action)
		return nil
	}
}

func (r *Reconciler) reconcileCreate(ctx context.Context, reg provider.Registration, m queue.Message) error {
	res, err := r.store.GetResource(ctx, xresource.Key{
		Group:     m.Group,
		Version:   reg.Version,
		Plural:    m.Plural,
		Namespace: m.Namespace,
		Name:      m.Name,
	})
	if store.IsNotFound(err) {
		// Deleted since the message was enqueued; nothing to do.
		return nil
	}
	if err != nil {
		return errors.Wrap(err, errGetResource)
	}

	if _, err := r.provision(ctx, reg, res, false); err != nil {
		return err
	}
	return nil
}

// provision runs the dependency gate and the idempotent create path for one
// instance, writing its status. It returns the state the instance ended in.
// A returned error is retriable; permanent failures come back as StateFailed
// with a nil error.
func (r *Reconciler) provision(ctx context.Context, reg provider.Registration, res *xresource.Resource, drift bool) (xresource.State, error) {
	log := r.log.WithValues("kind", res.Kind, "name", res.Name, "namespace", res.Namespace)

	unresolved, err := r.unresolvedDependencies(ctx, res)
	if err != nil {
		return "", err
	}
	if len(unresolved) > 0 {
		now := metav1.NewTime(r.clock.Now())
		status := xresource.Status{
			State:               xresource.StatePending,
			Message:             msgWaitingDeps,
			PendingDependencies: unresolved,
			LastDependencyCheck: &now,
		}
		log.Debug("Dependencies not ready; deferring", "pending", len(unresolved))
		return xresource.StatePending, errors.Wrap(r.setStatus(ctx, res.Key(), status.Map()), errSetStatus)
	}

	external := r.identity.External(res.Name, res.Namespace, res.Plural, res.Group)

	creation, err := reg.Driver.Create(ctx, external, res.Spec)
	switch {
	case provider.IsAlreadyExists(err):
		creation, err = r.adopt(ctx, reg, external)
		if err != nil {
			// Adoption failed permanently; record it and stop.
			status := xresource.Status{State: xresource.StateFailed, Error: err.Error()}
			log.Info("Cannot adopt existing external object", "external", external, "error", err)
			return xresource.StateFailed, errors.Wrap(r.setStatus(ctx, res.Key(), status.Map()), errSetStatus)
		}
		log.Debug("Adopted existing external object", "external", external, "id", creation.ID)

	case err != nil && provider.IsTransient(err):
		return "", errors.Wrap(err, errCreate)

	case err != nil:
		status := xresource.Status{State: xresource.StateFailed, Error: err.Error()}
		log.Info("Provisioning failed permanently", "external", external, "error", err)
		return xresource.StateFailed, errors.Wrap(r.setStatus(ctx, res.Key(), status.Map()), errSetStatus)
	}

	r.recent.SetDefault(external, struct{}{})

	state := xresource.StateReady
	view := xresource.Status{State: state}
	if creation.Degraded != "" {
		state = xresource.StatePartiallyReady
		view.State = state
		view.Message = creation.Degraded
	}
	if drift {
		now := metav1.NewTime(r.clock.Now())
		view.ReconciledAt = &now
	}

	status := view.Map()
	status[reg.Driver.IDKey()] = creation.ID
	if creation.Endpoint != "" {
		status["endpoint"] = creation.Endpoint
	}
	for k, v := range creation.Extra {
		status[k] = v
	}

	if err := r.setStatus(ctx, res.Key(), status); err != nil {
		return "", errors.Wrap(err, errSetStatus)
	}
	log.Debug("Provisioned external object", "external", external, "id", creation.ID)

	if state == xresource.StateReady || state == xresource.StatePartiallyReady {
		if err := r.fanOut(ctx, res); err != nil {
			// Fan-out is best effort; the drift scanner's pending sweep
			// converges anything missed here.
			log.Info("Fan-out incomplete", "error", err)
		}
	}
	return state, nil
}

// adopt matches a pre-existing external object by deterministic name.
func (r *Reconciler) adopt(ctx context.Context, reg provider.Registration, external string) (*provider.Creation, error) {
	objs, err := reg.Driver.List(ctx)
	if err != nil {
		return nil, errors.Wrap(err, errAdoptList)
	}

	for _, o := range objs {
		if o.Name == external {
			return &provider.Creation{ID: o.ID, Endpoint: o.Endpoint}, nil
		}
	}
	return nil, errors.New(errAdoptNoMatch)
}

func (r *Reconciler) reconcileDelete(ctx context.Context, reg provider.Registration, m queue.Message) error {
	err := reg.Driver.Delete(ctx, m.Status)
	if err != nil && provider.IsTransient(err) {
		return errors.Wrap(err, errDelete)
	}
	if err != nil {
		// Deletion is best effort; a permanent refusal is logged, not
		// retried forever.
		r.log.Info("Cannot delete external object", "kind", m.Kind, "name", m.Name, "error", err)
		return nil
	}

	r.recent.Delete(r.identity.External(m.Name, m.Namespace, m.Plural, m.Group))
	return nil
}

// unresolvedDependencies returns the declared dependencies of an instance
// that are missing, statusless, or not Ready. Referents are looked up at
// cluster scope.
func (r *Reconciler) unresolvedDependencies(ctx context.Context, res *xresource.Resource) ([]xresource.Dependency, error) {
	var unresolved []xresource.Dependency

	for _, dep := range res.Dependencies() {
		candidates, err := r.store.ListResources(ctx, store.ResourceQuery{
			Group:       dep.Group,
			Kind:        dep.Kind,
			ClusterOnly: true,
		})
		if err != nil {
			return nil, errors.Wrap(err, errListDeps)
		}

		ready := false
		for _, c := range candidates {
			if c.Name != dep.Name {
				continue
			}
			if xresource.ParseStatus(c.Status).State == xresource.StateReady {
				ready = true
			}
			break
		}
		if !ready {
			unresolved = append(unresolved, dep)
		}
	}
	return unresolved, nil
}

// fanOut re-checks Pending instances that declare a dependency on the newly
// resolved instance, enqueueing creates for those whose dependencies are now
// all Ready and refreshing the pending list of the rest.
func (r *Reconciler) fanOut(ctx context.Context, resolved *xresource.Resource) error {
	var errs error

	for _, reg := range r.registry.Registrations() {
		pending, err := r.store.QueryPending(ctx, reg.GroupKind.Group, reg.GroupKind.Kind)
		if err != nil {
			errs = multierr.Append(errs, errors.Wrap(err, errFanOut))
			continue
		}

		for i := range pending {
			candidate := &pending[i]
			if !dependsOn(candidate, resolved) {
				continue
			}

			unresolved, err := r.unresolvedDependencies(ctx, candidate)
			if err != nil {
				errs = multierr.Append(errs, err)
				continue
			}

			if len(unresolved) == 0 {
				if err := r.producer.Send(ctx, messageFor(queue.ActionCreate, candidate)); err != nil {
					errs = multierr.Append(errs, errors.Wrap(err, errEnqueue))
				}
				continue
			}

			now := metav1.NewTime(r.clock.Now())
			update := xresource.Status{
				State:               xresource.StatePending,
				Message:             msgWaitingDeps,
				PendingDependencies: unresolved,
				LastDependencyCheck: &now,
			}
			if err := r.setStatus(ctx, candidate.Key(), xresource.MergeStatus(candidate.Status, update.Map())); err != nil {
				errs = multierr.Append(errs, errors.Wrap(err, errSetStatus))
			}
		}
	}

	return errs
}

// setStatus writes a status, tolerating the instance having been deleted
// between read and write.
func (r *Reconciler) setStatus(ctx context.Context, key xresource.Key, status map[string]any) error {
	err := r.store.SetStatus(ctx, key, status)
	if store.IsNotFound(err) {
		return nil
	}
	return err
}

// dependsOn reports whether any declared edge of the candidate matches the
// resolved instance.
func dependsOn(candidate, resolved *xresource.Resource) bool {
	for _, dep := range candidate.Dependencies() {
		if dep.Group == resolved.Group && dep.Kind == resolved.Kind && dep.Name == resolved.Name {
			return true
		}
	}
	return false
}

// messageFor builds the reconcile message for an instance.
func messageFor(action queue.Action, res *xresource.Resource) queue.Message {
	return queue.Message{
		Action:    action,
		Kind:      res.Kind,
		Plural:    res.Plural,
		Group:     res.Group,
		Namespace: res.Namespace,
		Name:      res.Name,
		Spec:      res.Spec,
		Status:    res.Status,
	}
}
