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

package reconciler

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/mitchellh/hashstructure/v2"
	"github.com/samber/lo"
	"go.uber.org/multierr"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/crossplane/crossplane-runtime/pkg/errors"
	"github.com/crossplane/crossplane-runtime/pkg/feature"
	"github.com/crossplane/crossplane-runtime/pkg/logging"

	"github.com/edgeplane/edgeplane/internal/features"
	"github.com/edgeplane/edgeplane/internal/metrics"
	"github.com/edgeplane/edgeplane/internal/provider"
	"github.com/edgeplane/edgeplane/internal/queue"
	"github.com/edgeplane/edgeplane/internal/store"
	"github.com/edgeplane/edgeplane/internal/xresource"
)

const (
	defaultInterval = time.Minute

	// status.healthCheckError is truncated to this many bytes.
	maxHealthError = 500
)

// Error strings.
const (
	errListLocal    = "cannot list local instances"
	errListExternal = "cannot list external objects"
	errDeleteOrphan = "cannot delete orphaned external object"
	errGetBindings  = "cannot get live bindings"
	errPutBindings  = "cannot put corrected bindings"
)

// A Scanner periodically diffs the declared set of instances against the
// external set and converges the two. One scan per kind may be in flight at a
// time; a tick that finds a kind's previous scan still running skips that
// kind.
type Scanner struct {
	r        *Reconciler
	flags    *feature.Flags
	interval time.Duration
	log      logging.Logger

	mu    sync.Mutex
	locks map[provider.GroupKind]*sync.Mutex
}

// A ScannerOption configures the scanner.
type ScannerOption func(*Scanner)

// WithInterval configures the tick interval.
func WithInterval(d time.Duration) ScannerOption {
	return func(s *Scanner) {
		s.interval = d
	}
}

// WithScanLogger configures how the scanner logs.
func WithScanLogger(log logging.Logger) ScannerOption {
	return func(s *Scanner) {
		s.log = log
	}
}

// NewScanner returns a drift scanner sharing the reconciler's store, queue,
// drivers and recently-provisioned cache.
func NewScanner(r *Reconciler, flags *feature.Flags, o ...ScannerOption) *Scanner {
	s := &Scanner{
		r:        r,
		flags:    flags,
		interval: defaultInterval,
		log:      logging.NewNopLogger(),
		locks:    map[provider.GroupKind]*sync.Mutex{},
	}
	for _, fn := range o {
		fn(s)
	}
	return s
}

// Run ticks until the context is done.
func (s *Scanner) Run(ctx context.Context) error {
	t := time.NewTicker(s.interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			s.scan(ctx)
		}
	}
}

// scan runs one tick over every registered kind.
func (s *Scanner) scan(ctx context.Context) {
	for _, reg := range s.r.registry.Registrations() {
		kind := reg.GroupKind.Kind

		lock := s.lock(reg.GroupKind)
		if !lock.TryLock() {
			s.log.Debug("Previous scan still running; skipping kind", "kind", kind)
			s.r.metrics.DriftTicks.WithLabelValues(kind, metrics.ResultSkipped).Inc()
			continue
		}

		err := s.scanKind(ctx, reg)
		lock.Unlock()

		if err != nil {
			// Drift errors never fail the tick; the next one retries.
			s.log.Info("Drift scan incomplete", "kind", kind, "error", err)
			s.r.metrics.DriftTicks.WithLabelValues(kind, metrics.ResultFailed).Inc()
			continue
		}
		s.r.metrics.DriftTicks.WithLabelValues(kind, metrics.ResultSuccess).Inc()
	}
}

func (s *Scanner) lock(gk provider.GroupKind) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.locks[gk]; !ok {
		s.locks[gk] = &sync.Mutex{}
	}
	return s.locks[gk]
}

// scanKind converges one kind: pending sweep, orphan deletion, missing
// creation, binding drift, health probes.
func (s *Scanner) scanKind(ctx context.Context, reg provider.Registration) error {
	group, kind := reg.GroupKind.Group, reg.GroupKind.Kind

	var errs error

	// Pending sweep. Instances whose dependencies resolved since the last
	// fan-out get their create enqueued here.
	pending, err := s.r.store.QueryPending(ctx, group, kind)
	if err != nil {
		errs = multierr.Append(errs, err)
	}
	for i := range pending {
		candidate := &pending[i]

		unresolved, err := s.r.unresolvedDependencies(ctx, candidate)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}

		if len(unresolved) == 0 {
			errs = multierr.Append(errs, s.r.producer.Send(ctx, messageFor(queue.ActionCreate, candidate)))
			continue
		}

		now := metav1.NewTime(s.r.clock.Now())
		update := xresource.Status{
			State:               xresource.StatePending,
			Message:             msgWaitingDeps,
			PendingDependencies: unresolved,
			LastDependencyCheck: &now,
		}
		errs = multierr.Append(errs, s.r.setStatus(ctx, candidate.Key(), xresource.MergeStatus(candidate.Status, update.Map())))
	}

	locals, err := s.r.store.ListResources(ctx, store.ResourceQuery{Group: group, Kind: kind})
	if err != nil {
		return multierr.Append(errs, errors.Wrap(err, errListLocal))
	}
	objs, err := reg.Driver.List(ctx)
	if err != nil {
		return multierr.Append(errs, errors.Wrap(err, errListExternal))
	}

	localByExternal := lo.KeyBy(locals, func(r xresource.Resource) string {
		return s.r.identity.External(r.Name, r.Namespace, r.Plural, r.Group)
	})
	externalByName := lo.KeyBy(objs, func(o provider.Object) string { return o.Name })

	// Orphan deletion. Only names produced by our own naming pattern are
	// candidates; everything else on the account is not ours to touch.
	if s.flags.Enabled(features.EnableBetaOrphanDeletion) {
		match := s.r.identity.Matcher(reg.Plural, group)
		for name, obj := range externalByName {
			if !match(name) {
				continue
			}
			if _, ours := localByExternal[name]; ours {
				continue
			}
			if _, fresh := s.r.recent.Get(name); fresh {
				// Provisioned while this scan was listing; not an orphan.
				continue
			}

			s.log.Info("Deleting orphaned external object", "kind", kind, "external", name, "id", obj.ID)
			if err := reg.Driver.Delete(ctx, map[string]any{reg.Driver.IDKey(): obj.ID}); err != nil {
				errs = multierr.Append(errs, errors.Wrap(err, errDeleteOrphan))
				continue
			}
			s.r.metrics.OrphansDeleted.WithLabelValues(kind).Inc()
		}
	}

	// Missing creation. Declared instances with no external counterpart go
	// back through the full create path, dependency gate included.
	for name := range localByExternal {
		if _, exists := externalByName[name]; exists {
			continue
		}

		res := localByExternal[name]
		if xresource.ParseStatus(res.Status).State == xresource.StatePending {
			// The pending sweep above owns these.
			continue
		}

		s.log.Debug("Recreating missing external object", "kind", kind, "external", name)
		if _, err := s.r.provision(ctx, reg, &res, true); err != nil {
			errs = multierr.Append(errs, err)
		}
	}

	if bc, ok := reg.Driver.(provider.BindingClient); ok {
		errs = multierr.Append(errs, s.reconcileBindings(ctx, reg, bc, locals))
	}

	if hc, ok := reg.Driver.(provider.HealthChecker); ok && s.flags.Enabled(features.EnableBetaHealthProbes) {
		errs = multierr.Append(errs, s.probeHealth(ctx, hc, locals))
	}

	return errs
}

// reconcileBindings corrects binding drift for instances that declare
// bindings to other instances.
func (s *Scanner) reconcileBindings(ctx context.Context, reg provider.Registration, bc provider.BindingClient, locals []xresource.Resource) error {
	var errs error

	for i := range locals {
		res := &locals[i]

		state := xresource.ParseStatus(res.Status).State
		if state != xresource.StateReady && state != xresource.StatePartiallyReady {
			continue
		}
		refs := res.Bindings()
		if len(refs) == 0 {
			continue
		}
		id, _ := res.Status[reg.Driver.IDKey()].(string)
		if id == "" {
			continue
		}

		expected, err := s.expectedBindings(ctx, refs)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}

		live, err := bc.GetBindings(ctx, id)
		if err != nil {
			errs = multierr.Append(errs, errors.Wrap(err, errGetBindings))
			continue
		}

		if bindingsEqual(expected, live) {
			continue
		}

		s.log.Info("Correcting binding drift", "kind", res.Kind, "name", res.Name, "id", id)
		if err := bc.PutBindings(ctx, id, expected); err != nil {
			// The primary object still works; only the binding side effect
			// is broken.
			update := xresource.Status{State: xresource.StatePartiallyReady, Message: errPutBindings}
			errs = multierr.Append(errs, errors.Wrap(err, errPutBindings))
			errs = multierr.Append(errs, s.r.setStatus(ctx, res.Key(), xresource.MergeStatus(res.Status, update.Map())))
			continue
		}

		if state == xresource.StatePartiallyReady {
			update := xresource.Status{State: xresource.StateReady}
			errs = multierr.Append(errs, s.r.setStatus(ctx, res.Key(), xresource.MergeStatus(res.Status, update.Map())))
		}
	}
	return errs
}

// expectedBindings resolves declared binding references to concrete bindings
// through the store. References whose referent is not Ready yet resolve to
// nothing; the next tick picks them up.
func (s *Scanner) expectedBindings(ctx context.Context, refs []xresource.BindingRef) ([]provider.Binding, error) {
	var out []provider.Binding

	for _, ref := range refs {
		referentReg, ok := s.r.registry.Lookup(ref.Group, ref.Kind)
		if !ok {
			continue
		}

		candidates, err := s.r.store.ListResources(ctx, store.ResourceQuery{
			Group:       ref.Group,
			Kind:        ref.Kind,
			ClusterOnly: true,
		})
		if err != nil {
			return nil, errors.Wrap(err, errListDeps)
		}

		for i := range candidates {
			if candidates[i].Name != ref.Name {
				continue
			}
			if id, _ := candidates[i].Status[referentReg.Driver.IDKey()].(string); id != "" {
				out = append(out, provider.Binding{Name: ref.As, Type: strings.ToLower(ref.Kind), ID: id})
			}
			break
		}
	}
	return out, nil
}

// bindingsEqual compares binding lists as sets of (name, type, id).
func bindingsEqual(a, b []provider.Binding) bool {
	opts := &hashstructure.HashOptions{SlicesAsSets: true}

	ha, err := hashstructure.Hash(a, hashstructure.FormatV2, opts)
	if err != nil {
		return false
	}
	hb, err := hashstructure.Hash(b, hashstructure.FormatV2, opts)
	if err != nil {
		return false
	}
	return ha == hb
}

// probeHealth flips instances between Ready and Failed based on a probe of
// their custom hostname.
func (s *Scanner) probeHealth(ctx context.Context, hc provider.HealthChecker, locals []xresource.Resource) error {
	var errs error

	for i := range locals {
		res := &locals[i]

		state := xresource.ParseStatus(res.Status).State
		if state != xresource.StateReady && state != xresource.StateFailed {
			continue
		}

		hostname := s.r.identity.Hostname(res.Name)
		herr := hc.Health(ctx, hostname)

		now := metav1.NewTime(s.r.clock.Now())
		update := xresource.Status{LastHealthCheck: &now}

		switch {
		case herr == nil:
			update.State = xresource.StateReady
			update.HealthCheckStatus = 200
		default:
			update.State = xresource.StateFailed
			update.HealthCheckStatus = healthStatusCode(herr)
			update.HealthCheckError = truncate(herr.Error(), maxHealthError)
		}

		if update.State != state {
			s.log.Info("Health transition", "kind", res.Kind, "name", res.Name, "from", state, "to", update.State, "hostname", hostname)
		}

		merged := xresource.MergeStatus(res.Status, update.Map())
		if herr == nil {
			// A recovered instance sheds its stale error detail.
			delete(merged, "healthCheckError")
		}
		errs = multierr.Append(errs, s.r.setStatus(ctx, res.Key(), merged))
	}
	return errs
}

func healthStatusCode(err error) int {
	var apiErr *provider.APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
