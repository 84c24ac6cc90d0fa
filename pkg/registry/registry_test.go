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

package registry

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"sigs.k8s.io/placement-ledger/apis/placement/v1alpha1"
	utiltesting "sigs.k8s.io/placement-ledger/pkg/util/testing"
)

func TestNew(t *testing.T) {
	containers := utiltesting.NewFakeDescriptionLookup()
	composites := utiltesting.NewFakeDescriptionLookup()

	entries := map[v1alpha1.ResourceKind]Resolver{
		v1alpha1.ContainerDescriptionKind: containers,
		v1alpha1.CompositeDescriptionKind: composites,
	}
	table, err := New(entries)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	if got, ok := table.Resolver(v1alpha1.ContainerDescriptionKind); !ok || got != Resolver(containers) {
		t.Errorf("Resolver(container) = %v, %t; want the container resolver", got, ok)
	}
	if _, ok := table.Resolver("Unknown"); ok {
		t.Error("Resolver returned an entry for an unregistered kind")
	}

	wantKinds := []v1alpha1.ResourceKind{v1alpha1.CompositeDescriptionKind, v1alpha1.ContainerDescriptionKind}
	if diff := cmp.Diff(wantKinds, table.Kinds()); diff != "" {
		t.Errorf("Unexpected kinds (-want,+got):\n%s", diff)
	}

	// The table is detached from the entries map it was built from.
	delete(entries, v1alpha1.ContainerDescriptionKind)
	if _, ok := table.Resolver(v1alpha1.ContainerDescriptionKind); !ok {
		t.Error("Mutating the source entries changed the table")
	}
}

func TestNewNilResolver(t *testing.T) {
	if _, err := New(map[v1alpha1.ResourceKind]Resolver{v1alpha1.ContainerDescriptionKind: nil}); err == nil {
		t.Error("New accepted a nil resolver")
	}
}
