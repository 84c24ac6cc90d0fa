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

package testing

import (
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/resource"
	"k8s.io/utils/ptr"

	"sigs.k8s.io/placement-ledger/apis/placement/v1alpha1"
)

// PlacementWrapper wraps a Placement.
type PlacementWrapper struct{ v1alpha1.Placement }

// MakePlacement creates a wrapper for a placement in the given zone,
// with unlimited quotas.
func MakePlacement(id, zoneID string) *PlacementWrapper {
	return &PlacementWrapper{v1alpha1.Placement{
		ID:     id,
		ZoneID: zoneID,
	}}
}

// Obj returns the inner Placement.
func (w *PlacementWrapper) Obj() *v1alpha1.Placement {
	return &w.Placement
}

// Scopes sets the tenant/group scope links.
func (w *PlacementWrapper) Scopes(links ...string) *PlacementWrapper {
	w.ScopeLinks = links
	return w
}

// Priority sets the redistribution priority.
func (w *PlacementWrapper) Priority(p int32) *PlacementWrapper {
	w.Placement.Priority = p
	return w
}

// MaxInstances sets the instance quota and resets the available count
// to the full quota.
func (w *PlacementWrapper) MaxInstances(n int64) *PlacementWrapper {
	w.Placement.MaxInstances = n
	w.AvailableInstances = n
	return w
}

// Allocated marks n instances as allocated, keeping the counters
// consistent for a bounded placement.
func (w *PlacementWrapper) Allocated(n int64) *PlacementWrapper {
	w.AllocatedInstances = n
	if w.Placement.InstanceLimited() {
		w.AvailableInstances = w.Placement.MaxInstances - n
	}
	return w
}

// MemoryLimit sets the memory quota from a quantity string (e.g. "1Gi")
// and resets the available memory to the full quota.
func (w *PlacementWrapper) MemoryLimit(q string) *PlacementWrapper {
	qty := resource.MustParse(q)
	return w.MemoryLimitBytes(qty.Value())
}

// MemoryLimitBytes is MemoryLimit for raw byte counts.
func (w *PlacementWrapper) MemoryLimitBytes(b int64) *PlacementWrapper {
	w.Placement.MemoryLimitBytes = b
	w.AvailableMemoryBytes = b
	return w
}

// AvailableMemory overrides the available memory counter.
func (w *PlacementWrapper) AvailableMemory(b int64) *PlacementWrapper {
	w.AvailableMemoryBytes = b
	return w
}

// CPUShares sets the soft cpu-shares accounting field.
func (w *PlacementWrapper) CPUShares(s int64) *PlacementWrapper {
	w.Placement.CPUShares = s
	return w
}

// StorageLimit sets the soft storage accounting field.
func (w *PlacementWrapper) StorageLimit(b int64) *PlacementWrapper {
	w.StorageLimitBytes = b
	return w
}

// PolicyRef sets the deployment policy reference.
func (w *PlacementWrapper) PolicyRef(ref string) *PlacementWrapper {
	w.DeploymentPolicyRef = ref
	return w
}

// ResourceVersion sets the persisted document version.
func (w *PlacementWrapper) ResourceVersion(v int64) *PlacementWrapper {
	w.Placement.ResourceVersion = v
	return w
}

// ResourcePoolWrapper wraps a ResourcePool.
type ResourcePoolWrapper struct{ v1alpha1.ResourcePool }

// MakeResourcePool creates a wrapper for a pool with unbounded
// capacity.
func MakeResourcePool(id string) *ResourcePoolWrapper {
	return &ResourcePoolWrapper{v1alpha1.ResourcePool{
		ID:       id,
		Capacity: corev1.ResourceList{},
	}}
}

// Obj returns the inner ResourcePool.
func (w *ResourcePoolWrapper) Obj() *v1alpha1.ResourcePool {
	return &w.ResourcePool
}

// Memory sets the pool's memory capacity from a quantity string.
func (w *ResourcePoolWrapper) Memory(q string) *ResourcePoolWrapper {
	w.Capacity[corev1.ResourceMemory] = resource.MustParse(q)
	return w
}

// MemoryBytes sets the pool's memory capacity in bytes.
func (w *ResourcePoolWrapper) MemoryBytes(b int64) *ResourcePoolWrapper {
	w.Capacity[corev1.ResourceMemory] = *resource.NewQuantity(b, resource.BinarySI)
	return w
}

// ResourceDescriptionWrapper wraps a ResourceDescription.
type ResourceDescriptionWrapper struct{ v1alpha1.ResourceDescription }

// MakeResourceDescription creates a wrapper for a container description
// without a declared memory footprint.
func MakeResourceDescription(id string) *ResourceDescriptionWrapper {
	return &ResourceDescriptionWrapper{v1alpha1.ResourceDescription{
		ID:   id,
		Kind: v1alpha1.ContainerDescriptionKind,
	}}
}

// Obj returns the inner ResourceDescription.
func (w *ResourceDescriptionWrapper) Obj() *v1alpha1.ResourceDescription {
	return &w.ResourceDescription
}

// Kind sets the resource kind.
func (w *ResourceDescriptionWrapper) Kind(k v1alpha1.ResourceKind) *ResourceDescriptionWrapper {
	w.ResourceDescription.Kind = k
	return w
}

// MemoryPerInstance declares the per-instance memory footprint.
func (w *ResourceDescriptionWrapper) MemoryPerInstance(b int64) *ResourceDescriptionWrapper {
	w.MemoryBytesPerInstance = ptr.To(b)
	return w
}
