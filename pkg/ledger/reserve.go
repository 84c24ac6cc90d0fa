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

package ledger

import (
	"context"

	"github.com/go-logr/logr"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/client-go/util/retry"
	ctrl "sigs.k8s.io/controller-runtime"

	"sigs.k8s.io/placement-ledger/apis/placement/v1alpha1"
	"sigs.k8s.io/placement-ledger/pkg/metrics"
	"sigs.k8s.io/placement-ledger/pkg/registry"
)

// Reserve admits a reservation (positive count) or release (negative
// count) against the placement and commits the updated counters through
// the gateway's compare-and-swap, retrying on version conflicts.
//
// Admission runs entirely inside the mutator: a failed check aborts the
// swap and leaves the placement untouched. The one deliberate exception
// is a resource description that went missing between provisioning and
// reservation; the instance counters are committed anyway and memory
// accounting is skipped, an accepted drift source that keeps release
// compensations from wedging.
//
// A release that would drive the available count past the quota is
// absorbed as a no-op success. Releases are at-least-once compensations
// and a duplicate must not surface as an error.
func (l *Ledger) Reserve(ctx context.Context, id string, req v1alpha1.ReservationRequest) (*v1alpha1.Placement, error) {
	log := ctrl.LoggerFrom(ctx).WithValues("placement", id, "resourceCount", req.ResourceCount)
	if err := l.authorize(req.CallerRef); err != nil {
		metrics.ReportReservationAttempt(id, metrics.ReservationResultRejected)
		return nil, err
	}
	kind := req.Kind
	if kind == "" {
		kind = v1alpha1.ContainerDescriptionKind
	}
	resolver, ok := l.descriptions.Resolver(kind)
	if !ok {
		metrics.ReportReservationAttempt(id, metrics.ReservationResultRejected)
		return nil, newError(ReasonUnknownResourceKind, "no description resolver registered for kind %q", kind)
	}

	var snapshot *v1alpha1.Placement
	var noop bool
	err := retry.RetryOnConflict(retry.DefaultRetry, func() error {
		noop = false
		p, err := l.gateway.LoadThenCompareAndSwap(ctx, id, func(p *v1alpha1.Placement) error {
			return admit(ctx, log, p, req, resolver, &noop)
		})
		if err != nil {
			return err
		}
		snapshot = p
		return nil
	})
	if err != nil {
		switch reason := ReasonForError(err); reason {
		case ReasonInsufficientInstanceCapacity, ReasonInsufficientMemoryCapacity:
			metrics.ReportCapacityRejection(string(reason))
		}
		metrics.ReportReservationAttempt(id, metrics.ReservationResultRejected)
		return nil, err
	}
	if noop {
		metrics.ReportReservationAttempt(id, metrics.ReservationResultNoop)
	} else {
		metrics.ReportReservationAttempt(id, metrics.ReservationResultSuccess)
		log.V(3).Info("Committed reservation", "availableInstances", snapshot.AvailableInstances, "availableMemoryBytes", snapshot.AvailableMemoryBytes)
	}
	return snapshot, nil
}

// admit runs the admission checks and applies the reservation to p, the
// gateway's private copy of the placement. Returning an error discards
// every mutation made so far.
func admit(ctx context.Context, log logr.Logger, p *v1alpha1.Placement, req v1alpha1.ReservationRequest, resolver registry.Resolver, noop *bool) error {
	count := req.ResourceCount
	newAvailable := v1alpha1.UnlimitedInstances
	if p.InstanceLimited() {
		newAvailable = p.AvailableInstances - count
		if newAvailable < 0 {
			err := newError(ReasonInsufficientInstanceCapacity, "requested %d instances but only %d are available", count, p.AvailableInstances)
			err.Available = p.AvailableInstances
			err.Requested = count
			return err
		}
		if newAvailable > p.MaxInstances {
			// A duplicate or late release compensation; absorb it.
			log.V(2).Info("Release exceeds the instance quota; treating as already compensated", "availableInstances", p.AvailableInstances, "maxInstances", p.MaxInstances)
			*noop = true
			return nil
		}
	} else if count < 0 && p.AllocatedInstances+count < 0 {
		log.V(2).Info("Release exceeds the allocated instances; treating as already compensated", "allocatedInstances", p.AllocatedInstances)
		*noop = true
		return nil
	}
	if req.ResourceDescriptionRef == "" {
		return newError(ReasonMissingResourceDesc, "a reservation requires a resource description reference")
	}

	p.AvailableInstances = newAvailable
	p.AllocatedInstances += count

	desc, err := resolver.Get(ctx, req.ResourceDescriptionRef)
	if apierrors.IsNotFound(err) {
		log.Info("Resource description is gone; committing instance counters without memory accounting", "resourceDescription", req.ResourceDescriptionRef)
		return nil
	}
	if err != nil {
		return &Error{
			Reason:  ReasonResourceDescriptionUnavailable,
			Message: "failed to resolve resource description " + req.ResourceDescriptionRef,
			err:     err,
		}
	}
	if desc.MemoryBytesPerInstance == nil || !p.MemoryLimited() {
		return nil
	}
	requested := *desc.MemoryBytesPerInstance * count
	if p.AvailableMemoryBytes-requested < 0 {
		err := newError(ReasonInsufficientMemoryCapacity, "requested %d bytes but only %d are available", requested, p.AvailableMemoryBytes)
		err.Available = p.AvailableMemoryBytes
		err.Requested = requested
		return err
	}
	p.AvailableMemoryBytes = min(p.MemoryLimitBytes, p.AvailableMemoryBytes-requested)
	return nil
}
