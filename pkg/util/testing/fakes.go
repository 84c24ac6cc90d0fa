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
	"context"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/runtime/schema"

	"sigs.k8s.io/placement-ledger/apis/placement/v1alpha1"
)

var (
	poolsGR        = schema.GroupResource{Group: v1alpha1.GroupName, Resource: "resourcepools"}
	descriptionsGR = schema.GroupResource{Group: v1alpha1.GroupName, Resource: "resourcedescriptions"}
)

// FakePoolLookup serves resource pools from a map.
type FakePoolLookup struct {
	Pools map[string]*v1alpha1.ResourcePool
	// Err, when set, fails every lookup.
	Err error
}

func NewFakePoolLookup(pools ...*v1alpha1.ResourcePool) *FakePoolLookup {
	f := &FakePoolLookup{Pools: make(map[string]*v1alpha1.ResourcePool, len(pools))}
	for _, p := range pools {
		f.Pools[p.ID] = p
	}
	return f
}

func (f *FakePoolLookup) Get(_ context.Context, zoneID string) (*v1alpha1.ResourcePool, error) {
	if f.Err != nil {
		return nil, f.Err
	}
	pool, ok := f.Pools[zoneID]
	if !ok {
		return nil, apierrors.NewNotFound(poolsGR, zoneID)
	}
	return pool.DeepCopy(), nil
}

// FakeDescriptionLookup serves resource descriptions from a map,
// reporting missing ones as NotFound.
type FakeDescriptionLookup struct {
	Descriptions map[string]*v1alpha1.ResourceDescription
	// Err, when set, fails every lookup.
	Err error
}

func NewFakeDescriptionLookup(descs ...*v1alpha1.ResourceDescription) *FakeDescriptionLookup {
	f := &FakeDescriptionLookup{Descriptions: make(map[string]*v1alpha1.ResourceDescription, len(descs))}
	for _, d := range descs {
		f.Descriptions[d.ID] = d
	}
	return f
}

func (f *FakeDescriptionLookup) Get(_ context.Context, ref string) (*v1alpha1.ResourceDescription, error) {
	if f.Err != nil {
		return nil, f.Err
	}
	desc, ok := f.Descriptions[ref]
	if !ok {
		return nil, apierrors.NewNotFound(descriptionsGR, ref)
	}
	return desc.DeepCopy(), nil
}

// FakeInstanceCounter counts live instances from a map keyed by
// placement ID.
type FakeInstanceCounter struct {
	Counts map[string]int64
	// Err, when set, fails every count.
	Err error
}

func (f *FakeInstanceCounter) Count(_ context.Context, placementID string) (int64, error) {
	if f.Err != nil {
		return 0, f.Err
	}
	return f.Counts[placementID], nil
}
