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

package v1alpha1

import (
	"maps"
	"slices"
	"strings"

	corev1 "k8s.io/api/core/v1"
)

// GroupName identifies the API group the placement documents belong to.
const GroupName = "placement.x-k8s.io"

const (
	// UnlimitedInstances is the sentinel for a placement without an
	// instance-count quota.
	UnlimitedInstances int64 = 0

	// UnlimitedMemory is the sentinel for a placement without a memory
	// quota, and for a resource pool whose memory capacity is unbounded.
	UnlimitedMemory int64 = 0

	// MinMemoryBytes is the smallest memory quota a bounded placement may
	// declare (4Mi).
	MinMemoryBytes int64 = 4 * 1024 * 1024
)

// ResourceKind names the kind of resource description a reservation
// refers to. Dispatch on the kind happens through an explicit lookup
// table, never by matching reference prefixes.
type ResourceKind string

const (
	ContainerDescriptionKind ResourceKind = "ContainerDescription"
	CompositeDescriptionKind ResourceKind = "CompositeDescription"
)

// Placement is the persisted capacity ledger for one group resource
// placement. It records how many resource instances and how much memory
// a tenant/group may still draw from its zone.
//
// The counters obey the following invariants after every mutation:
// when MaxInstances is bounded, AvailableInstances is in
// [0, MaxInstances] and AvailableInstances+AllocatedInstances equals
// MaxInstances; when MemoryLimitBytes is bounded, AvailableMemoryBytes
// is in [0, MemoryLimitBytes]; AllocatedInstances is never negative.
type Placement struct {
	// ID is the opaque stable identifier of this placement.
	ID string `json:"id"`

	// ResourceVersion is the optimistic-concurrency version maintained by
	// the persistence gateway. A compare-and-swap against a stale version
	// fails with a conflict and must be retried from load.
	ResourceVersion int64 `json:"resourceVersion"`

	// ScopeLinks is the ordered set of tenant/group scope identifiers.
	// Empty means global scope.
	ScopeLinks []string `json:"scopeLinks,omitempty"`

	// ZoneID references the resource pool providing capacity. Immutable
	// once instances are allocated.
	ZoneID string `json:"zoneId"`

	// Priority orders placements during redistribution; lower numeric
	// value means higher priority. Must be non-negative.
	Priority int32 `json:"priority"`

	// MaxInstances is the instance-count quota; 0 means unlimited.
	MaxInstances int64 `json:"maxInstances"`

	// AvailableInstances mirrors MaxInstances-AllocatedInstances when
	// bounded, and stays at the unlimited sentinel otherwise.
	AvailableInstances int64 `json:"availableInstances"`

	// AllocatedInstances counts currently reserved instances.
	AllocatedInstances int64 `json:"allocatedInstances"`

	// MemoryLimitBytes is the memory quota; 0 means unlimited.
	MemoryLimitBytes int64 `json:"memoryLimitBytes"`

	// AvailableMemoryBytes mirrors the remaining memory quota.
	AvailableMemoryBytes int64 `json:"availableMemoryBytes"`

	// DeploymentPolicyRef optionally references a deployment policy.
	// Immutable while instances are allocated.
	DeploymentPolicyRef string `json:"deploymentPolicyRef,omitempty"`

	// CPUShares is soft accounting only; it has no effect on admission.
	CPUShares int64 `json:"cpuShares,omitempty"`

	// StorageLimitBytes is soft accounting only; it has no effect on
	// admission.
	StorageLimitBytes int64 `json:"storageLimitBytes,omitempty"`

	// CustomProperties carries free-form metadata.
	CustomProperties map[string]string `json:"customProperties,omitempty"`
}

// InstanceLimited reports whether the placement has a bounded
// instance-count quota.
func (p *Placement) InstanceLimited() bool {
	return p.MaxInstances != UnlimitedInstances
}

// MemoryLimited reports whether the placement has a bounded memory
// quota.
func (p *Placement) MemoryLimited() bool {
	return p.MemoryLimitBytes != UnlimitedMemory
}

// ReservedMemoryBytes is the portion of the memory quota currently
// reserved.
func (p *Placement) ReservedMemoryBytes() int64 {
	return p.MemoryLimitBytes - p.AvailableMemoryBytes
}

// ScopeKey joins the scope links into the key used to group placements
// during redistribution. The empty string is the global scope.
func (p *Placement) ScopeKey() string {
	return strings.Join(p.ScopeLinks, ",")
}

func (p *Placement) DeepCopy() *Placement {
	if p == nil {
		return nil
	}
	out := *p
	out.ScopeLinks = slices.Clone(p.ScopeLinks)
	out.CustomProperties = maps.Clone(p.CustomProperties)
	return &out
}

// ResourcePool is the capacity-providing aggregate of hosts a placement
// draws from (a zone).
type ResourcePool struct {
	// ID is the zone identifier placements reference through ZoneID.
	ID string `json:"id"`

	// Capacity holds the pool's aggregate capacity. Only memory
	// participates in placement admission; a missing or zero memory
	// entry means the pool's memory capacity is unbounded.
	Capacity corev1.ResourceList `json:"capacity,omitempty"`
}

// TotalMemoryBytes returns the pool's memory capacity in bytes, or the
// unlimited sentinel when unbounded.
func (p *ResourcePool) TotalMemoryBytes() int64 {
	q, ok := p.Capacity[corev1.ResourceMemory]
	if !ok {
		return UnlimitedMemory
	}
	return q.Value()
}

func (p *ResourcePool) DeepCopy() *ResourcePool {
	if p == nil {
		return nil
	}
	out := *p
	out.Capacity = p.Capacity.DeepCopy()
	return &out
}

// ResourceDescription is the external template defining the per-instance
// footprint of a resource.
type ResourceDescription struct {
	// ID is the reference reservations carry in ResourceDescriptionRef.
	ID string `json:"id"`

	// Kind selects the description resolver in the type registry.
	Kind ResourceKind `json:"kind"`

	// MemoryBytesPerInstance is the memory footprint of one instance.
	// Nil means the description does not declare one, in which case
	// memory accounting is skipped for reservations against it.
	MemoryBytesPerInstance *int64 `json:"memoryBytesPerInstance,omitempty"`
}

func (d *ResourceDescription) DeepCopy() *ResourceDescription {
	if d == nil {
		return nil
	}
	out := *d
	if d.MemoryBytesPerInstance != nil {
		v := *d.MemoryBytesPerInstance
		out.MemoryBytesPerInstance = &v
	}
	return &out
}

// ReservationRequest asks a placement to reserve (positive count) or
// release (negative count) instances of a resource description.
type ReservationRequest struct {
	// ResourceCount is the number of instances to reserve; a negative
	// count expresses a release.
	ResourceCount int64 `json:"resourceCount"`

	// ResourceDescriptionRef references the description whose
	// per-instance footprint drives memory accounting. Required.
	ResourceDescriptionRef string `json:"resourceDescriptionRef"`

	// Kind selects the description resolver. Defaults to
	// ContainerDescriptionKind when empty.
	Kind ResourceKind `json:"kind,omitempty"`

	// CallerRef identifies the internal task issuing the request and is
	// matched against the ledger's caller allow-list.
	CallerRef string `json:"callerRef"`
}
