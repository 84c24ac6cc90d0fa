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

	"sigs.k8s.io/placement-ledger/apis/placement/v1alpha1"
	"sigs.k8s.io/placement-ledger/pkg/metrics"
)

// validateStructure checks the caller-supplied fields of a candidate
// placement. The checks run in a fixed order and each failure carries
// its own reason.
func validateStructure(candidate *v1alpha1.Placement) error {
	if candidate.ZoneID == "" {
		return newError(ReasonMissingZone, "a placement requires a zone")
	}
	if candidate.Priority < 0 {
		return newError(ReasonInvalidPriority, "priority %d must not be negative", candidate.Priority)
	}
	if candidate.MaxInstances < 0 {
		return newError(ReasonInvalidMaxInstances, "maxInstances %d must not be negative", candidate.MaxInstances)
	}
	if candidate.MemoryLimitBytes != v1alpha1.UnlimitedMemory && candidate.MemoryLimitBytes < v1alpha1.MinMemoryBytes {
		err := newError(ReasonMemoryBelowMinimum, "memory limit %d is below the minimum of %d bytes", candidate.MemoryLimitBytes, v1alpha1.MinMemoryBytes)
		err.Requested = candidate.MemoryLimitBytes
		err.Available = v1alpha1.MinMemoryBytes
		return err
	}
	if candidate.CPUShares < 0 {
		return newError(ReasonInvalidCPUShares, "cpuShares %d must not be negative", candidate.CPUShares)
	}
	return nil
}

// validateZoneCapacity checks the candidate's memory quota against the
// zone's total capacity and against what sibling placements already
// reserved from it. The zone capacity is read, not locked; the race
// window against concurrent reservations is tolerated and corrected by
// redistribution on the next capacity change.
func (l *Ledger) validateZoneCapacity(ctx context.Context, candidate *v1alpha1.Placement) error {
	pool, err := l.pools.Get(ctx, candidate.ZoneID)
	if err != nil {
		return err
	}
	zoneTotal := pool.TotalMemoryBytes()
	if zoneTotal == v1alpha1.UnlimitedMemory {
		return nil
	}
	if candidate.MemoryLimitBytes > zoneTotal {
		metrics.ReportCapacityRejection(string(ReasonInsufficientZoneMemory))
		err := newError(ReasonInsufficientZoneMemory, "memory limit %d exceeds the zone's total capacity %d", candidate.MemoryLimitBytes, zoneTotal)
		err.Requested = candidate.MemoryLimitBytes
		err.Available = zoneTotal
		return err
	}
	siblings, err := l.siblings.List(ctx, candidate.ZoneID, candidate.ID)
	if err != nil {
		return err
	}
	var siblingReserved int64
	for _, sibling := range siblings {
		siblingReserved += sibling.MemoryLimitBytes
	}
	if free := zoneTotal - siblingReserved; free > 0 && free < candidate.MemoryLimitBytes {
		metrics.ReportCapacityRejection(string(ReasonMemoryAlreadyReserved))
		err := newError(ReasonMemoryAlreadyReserved, "sibling placements already reserved %d of %d bytes; %d remain", siblingReserved, zoneTotal, free)
		err.Requested = candidate.MemoryLimitBytes
		err.Available = free
		return err
	}
	return nil
}

// applyUpdate validates the candidate against the loaded current state
// and folds the caller-supplied fields into it, preserving the
// allocation counters. It runs inside the gateway's compare-and-swap.
func applyUpdate(current, candidate *v1alpha1.Placement) error {
	if current.AllocatedInstances > 0 {
		if candidate.ZoneID != current.ZoneID ||
			candidate.CPUShares != current.CPUShares ||
			candidate.StorageLimitBytes != current.StorageLimitBytes ||
			candidate.DeploymentPolicyRef != current.DeploymentPolicyRef {
			return newError(ReasonActiveInstancesLock, "zone, cpuShares, storage limit and deployment policy are immutable while %d instances are allocated", current.AllocatedInstances)
		}
	}
	if candidate.InstanceLimited() && candidate.MaxInstances < current.AllocatedInstances {
		err := newError(ReasonTooFewMaxInstances, "maxInstances %d is below the %d already allocated instances", candidate.MaxInstances, current.AllocatedInstances)
		err.Requested = candidate.MaxInstances
		err.Available = current.AllocatedInstances
		return err
	}
	reserved := current.ReservedMemoryBytes()
	if reserved > candidate.MemoryLimitBytes {
		err := newError(ReasonMemoryBelowReserved, "memory limit %d is below the %d bytes already reserved", candidate.MemoryLimitBytes, reserved)
		err.Requested = candidate.MemoryLimitBytes
		err.Available = reserved
		return err
	}

	current.ScopeLinks = candidate.DeepCopy().ScopeLinks
	current.ZoneID = candidate.ZoneID
	current.Priority = candidate.Priority
	current.DeploymentPolicyRef = candidate.DeploymentPolicyRef
	current.CPUShares = candidate.CPUShares
	current.StorageLimitBytes = candidate.StorageLimitBytes
	current.CustomProperties = candidate.DeepCopy().CustomProperties

	current.MaxInstances = candidate.MaxInstances
	if candidate.InstanceLimited() {
		current.AvailableInstances = candidate.MaxInstances - current.AllocatedInstances
	} else {
		current.AvailableInstances = v1alpha1.UnlimitedInstances
	}
	current.MemoryLimitBytes = candidate.MemoryLimitBytes
	current.AvailableMemoryBytes = candidate.MemoryLimitBytes - reserved
	return nil
}
