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

// Package registry provides the immutable lookup table mapping resource
// kinds to their description resolvers. The table is built once at
// process start and passed by reference to whatever needs type
// dispatch.
package registry

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"

	"sigs.k8s.io/placement-ledger/apis/placement/v1alpha1"
)

var errNilResolver = errors.New("nil resolver")

// Resolver fetches the resource description behind a reservation
// reference. A missing description is reported with an apimachinery
// NotFound error; any other error means the resolver's backing store
// could not be reached.
type Resolver interface {
	Get(ctx context.Context, ref string) (*v1alpha1.ResourceDescription, error)
}

// Table is the immutable kind-to-resolver mapping.
type Table struct {
	resolvers map[v1alpha1.ResourceKind]Resolver
}

// New builds a Table from the given entries. The entries map is copied;
// later changes to it do not affect the table.
func New(entries map[v1alpha1.ResourceKind]Resolver) (*Table, error) {
	for kind, r := range entries {
		if r == nil {
			return nil, fmt.Errorf("%w for kind %q", errNilResolver, kind)
		}
	}
	return &Table{resolvers: maps.Clone(entries)}, nil
}

// Resolver returns the resolver registered for kind.
func (t *Table) Resolver(kind v1alpha1.ResourceKind) (Resolver, bool) {
	r, ok := t.resolvers[kind]
	return r, ok
}

// Kinds lists the registered kinds in a stable order.
func (t *Table) Kinds() []v1alpha1.ResourceKind {
	return slices.Sorted(maps.Keys(t.resolvers))
}
