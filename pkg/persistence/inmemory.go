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

// Package persistence provides an in-memory persistence gateway with
// per-document optimistic versioning. Version conflicts surface as
// apimachinery Conflict errors so callers can drive the retry loop with
// client-go's retry.RetryOnConflict.
package persistence

import (
	"context"
	"errors"
	"sync"

	"k8s.io/apimachinery/pkg/api/equality"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/klog/v2"

	"sigs.k8s.io/placement-ledger/apis/placement/v1alpha1"
)

var placementsGR = schema.GroupResource{Group: v1alpha1.GroupName, Resource: "placements"}

var (
	errMissingID          = errors.New("placement has no id")
	errConcurrentlyEdited = errors.New("the placement was modified concurrently; load and retry")
)

// InMemory is a PersistenceGateway keeping placements in process
// memory. It also enumerates the placements of a zone, serving as the
// sibling enumerator in tests and single-process deployments.
type InMemory struct {
	mu   sync.RWMutex
	docs map[string]*v1alpha1.Placement
}

func NewInMemory() *InMemory {
	return &InMemory{docs: make(map[string]*v1alpha1.Placement)}
}

// Create stores a new placement and assigns its initial version.
func (s *InMemory) Create(_ context.Context, p *v1alpha1.Placement) (*v1alpha1.Placement, error) {
	if p.ID == "" {
		return nil, errMissingID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.docs[p.ID]; ok {
		return nil, apierrors.NewAlreadyExists(placementsGR, p.ID)
	}
	stored := p.DeepCopy()
	stored.ResourceVersion = 1
	s.docs[p.ID] = stored
	return stored.DeepCopy(), nil
}

// Get returns a copy of the stored placement.
func (s *InMemory) Get(_ context.Context, id string) (*v1alpha1.Placement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stored, ok := s.docs[id]
	if !ok {
		return nil, apierrors.NewNotFound(placementsGR, id)
	}
	return stored.DeepCopy(), nil
}

// LoadThenCompareAndSwap loads the placement, applies mutate to a
// private copy, and commits the copy only if no other writer committed
// in between. The mutator runs without holding the store lock, so it
// may perform lookups of its own; a concurrent commit is reported as a
// Conflict error and the caller retries from load.
//
// A mutator that leaves the document semantically unchanged commits
// nothing and keeps the current version, which keeps duplicate release
// compensations from invalidating other writers.
func (s *InMemory) LoadThenCompareAndSwap(ctx context.Context, id string, mutate func(*v1alpha1.Placement) error) (*v1alpha1.Placement, error) {
	snapshot, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	loadedVersion := snapshot.ResourceVersion

	updated := snapshot.DeepCopy()
	if err := mutate(updated); err != nil {
		return nil, err
	}
	updated.ID = id
	updated.ResourceVersion = loadedVersion

	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.docs[id]
	if !ok {
		return nil, apierrors.NewNotFound(placementsGR, id)
	}
	if stored.ResourceVersion != loadedVersion {
		return nil, apierrors.NewConflict(placementsGR, id, errConcurrentlyEdited)
	}
	if equality.Semantic.DeepEqual(stored, updated) {
		return stored.DeepCopy(), nil
	}
	updated.ResourceVersion = loadedVersion + 1
	s.docs[id] = updated.DeepCopy()
	klog.FromContext(ctx).V(5).Info("Committed placement mutation", "placement", id, "resourceVersion", updated.ResourceVersion)
	return updated.DeepCopy(), nil
}

// Delete removes the placement.
func (s *InMemory) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.docs[id]; !ok {
		return apierrors.NewNotFound(placementsGR, id)
	}
	delete(s.docs, id)
	return nil
}

// List enumerates the placements drawing from zoneID, excluding
// excludeID when non-empty. Results are copies in unspecified order.
func (s *InMemory) List(_ context.Context, zoneID, excludeID string) ([]*v1alpha1.Placement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*v1alpha1.Placement
	for _, stored := range s.docs {
		if stored.ZoneID != zoneID || (excludeID != "" && stored.ID == excludeID) {
			continue
		}
		out = append(out, stored.DeepCopy())
	}
	return out, nil
}
