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

package persistence

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/client-go/util/retry"

	"sigs.k8s.io/placement-ledger/apis/placement/v1alpha1"
	utiltesting "sigs.k8s.io/placement-ledger/pkg/util/testing"
)

func TestCreateAndGet(t *testing.T) {
	ctx := context.Background()
	store := NewInMemory()

	created, err := store.Create(ctx, utiltesting.MakePlacement("p1", "z1").MaxInstances(5).Obj())
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if created.ResourceVersion != 1 {
		t.Errorf("Create assigned version %d, want 1", created.ResourceVersion)
	}
	if _, err := store.Create(ctx, utiltesting.MakePlacement("p1", "z1").Obj()); !apierrors.IsAlreadyExists(err) {
		t.Errorf("Duplicate create returned %v, want AlreadyExists", err)
	}
	got, err := store.Get(ctx, "p1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if diff := cmp.Diff(created, got); diff != "" {
		t.Errorf("Get returned a different document (-want,+got):\n%s", diff)
	}
	if _, err := store.Get(ctx, "ghost"); !apierrors.IsNotFound(err) {
		t.Errorf("Get of unknown id returned %v, want NotFound", err)
	}
}

func TestCompareAndSwap(t *testing.T) {
	ctx := context.Background()
	store := NewInMemory()
	if _, err := store.Create(ctx, utiltesting.MakePlacement("p1", "z1").MaxInstances(5).Obj()); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	t.Run("commit bumps the version", func(t *testing.T) {
		updated, err := store.LoadThenCompareAndSwap(ctx, "p1", func(p *v1alpha1.Placement) error {
			p.AllocatedInstances = 1
			p.AvailableInstances = 4
			return nil
		})
		if err != nil {
			t.Fatalf("LoadThenCompareAndSwap failed: %v", err)
		}
		if updated.ResourceVersion != 2 || updated.AllocatedInstances != 1 {
			t.Errorf("Unexpected committed document: %+v", updated)
		}
	})

	t.Run("mutator error discards the mutation", func(t *testing.T) {
		wantErr := errors.New("rejected")
		_, err := store.LoadThenCompareAndSwap(ctx, "p1", func(p *v1alpha1.Placement) error {
			p.AllocatedInstances = 99
			return wantErr
		})
		if !errors.Is(err, wantErr) {
			t.Fatalf("LoadThenCompareAndSwap returned %v, want the mutator error", err)
		}
		got, err := store.Get(ctx, "p1")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if got.AllocatedInstances != 1 {
			t.Errorf("Failed mutation leaked: %+v", got)
		}
	})

	t.Run("semantic no-op keeps the version", func(t *testing.T) {
		before, _ := store.Get(ctx, "p1")
		after, err := store.LoadThenCompareAndSwap(ctx, "p1", func(*v1alpha1.Placement) error { return nil })
		if err != nil {
			t.Fatalf("LoadThenCompareAndSwap failed: %v", err)
		}
		if diff := cmp.Diff(before, after); diff != "" {
			t.Errorf("No-op mutation changed the document (-want,+got):\n%s", diff)
		}
	})
}

func TestCompareAndSwapConflict(t *testing.T) {
	ctx := context.Background()
	store := NewInMemory()
	if _, err := store.Create(ctx, utiltesting.MakePlacement("p1", "z1").MaxInstances(5).Obj()); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	// The first attempt races with another writer committing between
	// load and swap; RetryOnConflict must converge on the second.
	attempts := 0
	err := retry.RetryOnConflict(retry.DefaultRetry, func() error {
		_, err := store.LoadThenCompareAndSwap(ctx, "p1", func(p *v1alpha1.Placement) error {
			attempts++
			if attempts == 1 {
				if _, err := store.LoadThenCompareAndSwap(ctx, "p1", func(q *v1alpha1.Placement) error {
					q.AllocatedInstances++
					q.AvailableInstances--
					return nil
				}); err != nil {
					return err
				}
			}
			p.AllocatedInstances++
			p.AvailableInstances--
			return nil
		})
		return err
	})
	if err != nil {
		t.Fatalf("RetryOnConflict failed: %v", err)
	}
	if attempts != 2 {
		t.Errorf("Converged after %d attempts, want 2", attempts)
	}
	got, err := store.Get(ctx, "p1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.AllocatedInstances != 2 || got.AvailableInstances != 3 {
		t.Errorf("Lost update: %+v", got)
	}
}

func TestList(t *testing.T) {
	ctx := context.Background()
	store := NewInMemory()
	for _, p := range []*v1alpha1.Placement{
		utiltesting.MakePlacement("p1", "z1").Obj(),
		utiltesting.MakePlacement("p2", "z1").Obj(),
		utiltesting.MakePlacement("p3", "z2").Obj(),
	} {
		if _, err := store.Create(ctx, p); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
	}
	got, err := store.List(ctx, "z1", "p1")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(got) != 1 || got[0].ID != "p2" {
		t.Errorf("List(z1, exclude p1) = %v, want only p2", got)
	}
	all, err := store.List(ctx, "z1", "")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("List(z1) returned %d placements, want 2", len(all))
	}
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	store := NewInMemory()
	if _, err := store.Create(ctx, utiltesting.MakePlacement("p1", "z1").Obj()); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := store.Delete(ctx, "p1"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if err := store.Delete(ctx, "p1"); !apierrors.IsNotFound(err) {
		t.Errorf("Second delete returned %v, want NotFound", err)
	}
}
