/*
Copyright The Kubernetes Authors.

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

// Package ledger implements admission control and capacity accounting
// for group resource placements. A placement scopes how many resource
// instances and how much memory a tenant/group may draw from a zone;
// the ledger validates placements against zone capacity, admits
// reservation and release requests, guards deletion, and redistributes
// memory quota between placements when their zone shrinks.
//
// The ledger holds no state of its own. All mutation goes through the
// persistence gateway's per-document compare-and-swap; a conflicting
// writer retries from load, so each committed mutation saw the latest
// state.
package ledger

import (
	"context"
	"strings"

	"k8s.io/client-go/util/retry"
	ctrl "sigs.k8s.io/controller-runtime"

	"sigs.k8s.io/placement-ledger/apis/placement/v1alpha1"
	"sigs.k8s.io/placement-ledger/pkg/metrics"
	"sigs.k8s.io/placement-ledger/pkg/registry"
)

const (
	// ReservationTaskPrefix marks reservation tasks on the caller
	// allow-list.
	ReservationTaskPrefix = "/tasks/reservations/"
	// ReservationRemovalTaskPrefix marks release compensation tasks on
	// the caller allow-list.
	ReservationRemovalTaskPrefix = "/tasks/reservation-removals/"
)

// ResourcePoolLookup resolves a zone to its capacity-providing resource
// pool.
type ResourcePoolLookup interface {
	Get(ctx context.Context, zoneID string) (*v1alpha1.ResourcePool, error)
}

// SiblingPlacementEnumerator lists the placements drawing from a zone,
// optionally excluding one placement.
type SiblingPlacementEnumerator interface {
	List(ctx context.Context, zoneID, excludeID string) ([]*v1alpha1.Placement, error)
}

// LiveInstanceCounter counts the resource instances currently placed on
// a placement. It is authoritative independently of the placement's own
// bookkeeping.
type LiveInstanceCounter interface {
	Count(ctx context.Context, placementID string) (int64, error)
}

// PersistenceGateway is the durable store of placement documents. It
// serializes writers per document: LoadThenCompareAndSwap commits the
// mutated copy only if no other writer committed since the load, and
// reports a Conflict error otherwise.
type PersistenceGateway interface {
	Create(ctx context.Context, p *v1alpha1.Placement) (*v1alpha1.Placement, error)
	Get(ctx context.Context, id string) (*v1alpha1.Placement, error)
	LoadThenCompareAndSwap(ctx context.Context, id string, mutate func(*v1alpha1.Placement) error) (*v1alpha1.Placement, error)
	Delete(ctx context.Context, id string) error
}

// Ledger orchestrates placement lifecycle and admission against the
// external collaborators.
type Ledger struct {
	gateway        PersistenceGateway
	pools          ResourcePoolLookup
	descriptions   *registry.Table
	siblings       SiblingPlacementEnumerator
	instances      LiveInstanceCounter
	allowedCallers []string
}

type Option func(*Ledger)

// WithAllowedCallers replaces the caller prefixes permitted to issue
// reservations.
func WithAllowedCallers(prefixes ...string) Option {
	return func(l *Ledger) {
		l.allowedCallers = prefixes
	}
}

func New(gateway PersistenceGateway, pools ResourcePoolLookup, descriptions *registry.Table, siblings SiblingPlacementEnumerator, instances LiveInstanceCounter, opts ...Option) *Ledger {
	l := &Ledger{
		gateway:        gateway,
		pools:          pools,
		descriptions:   descriptions,
		siblings:       siblings,
		instances:      instances,
		allowedCallers: []string{ReservationTaskPrefix, ReservationRemovalTaskPrefix},
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Create validates the candidate placement against its zone and
// persists it with fresh counters.
func (l *Ledger) Create(ctx context.Context, candidate *v1alpha1.Placement) (*v1alpha1.Placement, error) {
	log := ctrl.LoggerFrom(ctx).WithValues("placement", candidate.ID)
	if err := validateStructure(candidate); err != nil {
		return nil, err
	}
	if err := l.validateZoneCapacity(ctx, candidate); err != nil {
		log.V(3).Info("Rejected placement creation", "reason", ReasonForError(err))
		return nil, err
	}
	validated := candidate.DeepCopy()
	validated.AvailableInstances = validated.MaxInstances
	validated.AllocatedInstances = 0
	validated.AvailableMemoryBytes = validated.MemoryLimitBytes
	created, err := l.gateway.Create(ctx, validated)
	if err != nil {
		return nil, err
	}
	log.V(2).Info("Created placement", "zone", created.ZoneID, "maxInstances", created.MaxInstances, "memoryLimitBytes", created.MemoryLimitBytes)
	return created, nil
}

// Update validates the candidate against the current state of the
// placement and commits it through the gateway's compare-and-swap,
// carrying the allocation counters over.
func (l *Ledger) Update(ctx context.Context, candidate *v1alpha1.Placement) (*v1alpha1.Placement, error) {
	if err := validateStructure(candidate); err != nil {
		return nil, err
	}
	if err := l.validateZoneCapacity(ctx, candidate); err != nil {
		ctrl.LoggerFrom(ctx).V(3).Info("Rejected placement update", "placement", candidate.ID, "reason", ReasonForError(err))
		return nil, err
	}
	var updated *v1alpha1.Placement
	err := retry.RetryOnConflict(retry.DefaultRetry, func() error {
		p, err := l.gateway.LoadThenCompareAndSwap(ctx, candidate.ID, func(current *v1alpha1.Placement) error {
			return applyUpdate(current, candidate)
		})
		if err != nil {
			return err
		}
		updated = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Delete removes the placement once nothing references it anymore.
// Bookkeeping and the live instance count are checked independently; a
// mismatch between the two is logged but either one blocks deletion.
func (l *Ledger) Delete(ctx context.Context, id string) error {
	log := ctrl.LoggerFrom(ctx).WithValues("placement", id)
	current, err := l.gateway.Get(ctx, id)
	if err != nil {
		return err
	}
	live, err := l.instances.Count(ctx, id)
	if err != nil {
		return err
	}
	if live > 0 {
		if current.AllocatedInstances == 0 {
			log.Info("Placement bookkeeping shows no allocations but live instances exist", "liveInstances", live)
		}
		return &Error{
			Reason:  ReasonActiveReservationsExist,
			Message: "placement still has live resource instances",
			Count:   live,
		}
	}
	if current.AllocatedInstances > 0 {
		log.Info("Placement has no live instances but bookkeeping shows allocations", "allocatedInstances", current.AllocatedInstances)
		return &Error{
			Reason:  ReasonActiveReservationsExist,
			Message: "placement still has allocated instances",
			Count:   current.AllocatedInstances,
		}
	}
	if err := l.gateway.Delete(ctx, id); err != nil {
		return err
	}
	metrics.ClearPlacementMetrics(id)
	log.V(2).Info("Deleted placement")
	return nil
}

func (l *Ledger) authorize(callerRef string) error {
	for _, prefix := range l.allowedCallers {
		if prefix != "" && strings.HasPrefix(callerRef, prefix) {
			return nil
		}
	}
	return newError(ReasonForbidden, "caller %q is not an allowed reservation task", callerRef)
}
