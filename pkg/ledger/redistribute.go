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
	"cmp"
	"context"
	"slices"

	utilerrors "k8s.io/apimachinery/pkg/util/errors"
	"k8s.io/client-go/util/retry"
	ctrl "sigs.k8s.io/controller-runtime"

	"sigs.k8s.io/placement-ledger/apis/placement/v1alpha1"
	"sigs.k8s.io/placement-ledger/pkg/metrics"
)

// OnZoneCapacityChanged shrinks the memory quotas of the zone's
// placements when their combined limits exceed the zone's new total
// capacity, and returns the placements it touched.
//
// Placements give up quota in ascending order of their priority share
// within their own scope group (priority divided by the group's summed
// priorities), so a placement with a high relative priority inside a
// small group is protected longer than one with the same raw priority
// among many high-priority siblings. Only unreserved quota is taken;
// placements with no free memory keep their limits.
//
// Each touched placement is persisted independently. A failed persist
// does not roll the others back; the deficit it leaves behind is
// reconciled on the next capacity-change event.
func (l *Ledger) OnZoneCapacityChanged(ctx context.Context, zoneID string, newTotalMemoryBytes int64) ([]*v1alpha1.Placement, error) {
	log := ctrl.LoggerFrom(ctx).WithValues("zone", zoneID)
	if newTotalMemoryBytes <= 0 {
		// The zone became unbounded; nothing to reclaim.
		return nil, nil
	}
	placements, err := l.siblings.List(ctx, zoneID, "")
	if err != nil {
		return nil, err
	}
	var totalReserved int64
	for _, p := range placements {
		totalReserved += p.MemoryLimitBytes
	}
	if totalReserved <= newTotalMemoryBytes {
		return nil, nil
	}
	deficit := totalReserved - newTotalMemoryBytes
	log.V(2).Info("Zone capacity shrank below the combined placement limits", "newTotalMemoryBytes", newTotalMemoryBytes, "totalReservedBytes", totalReserved, "deficitBytes", deficit)

	shares := priorityShares(placements)
	slices.SortFunc(placements, func(a, b *v1alpha1.Placement) int {
		if c := cmp.Compare(shares[a.ID], shares[b.ID]); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})

	var updated []*v1alpha1.Placement
	var errs []error
	var reclaimed int64
	for _, p := range placements {
		if deficit <= 0 {
			break
		}
		if p.AvailableMemoryBytes == 0 || p.MemoryLimitBytes == v1alpha1.UnlimitedMemory {
			continue
		}
		take := min(deficit, p.AvailableMemoryBytes)
		deficit -= take
		var committed *v1alpha1.Placement
		err := retry.RetryOnConflict(retry.DefaultRetry, func() error {
			c, err := l.gateway.LoadThenCompareAndSwap(ctx, p.ID, func(doc *v1alpha1.Placement) error {
				absorb := min(take, doc.AvailableMemoryBytes)
				doc.MemoryLimitBytes -= absorb
				doc.AvailableMemoryBytes -= absorb
				return nil
			})
			if err != nil {
				return err
			}
			committed = c
			return nil
		})
		if err != nil {
			log.Error(err, "Failed to persist reduced memory quota; leaving the remaining placements as is", "placement", p.ID)
			errs = append(errs, err)
			continue
		}
		reclaimed += take
		updated = append(updated, committed)
		log.V(3).Info("Reduced placement memory quota", "placement", p.ID, "reclaimedBytes", take, "memoryLimitBytes", committed.MemoryLimitBytes)
	}
	if deficit > 0 {
		log.Info("Zone remains oversubscribed after redistribution", "deficitBytes", deficit)
	}
	if reclaimed > 0 {
		metrics.ReportRedistribution(zoneID, reclaimed)
	}
	return updated, utilerrors.NewAggregate(errs)
}

// priorityShares normalizes each placement's priority by the summed
// priorities of its scope group, keyed by placement ID. A group with a
// zero priority sum yields zero shares.
func priorityShares(placements []*v1alpha1.Placement) map[string]float64 {
	groupSums := make(map[string]int64)
	for _, p := range placements {
		groupSums[p.ScopeKey()] += int64(p.Priority)
	}
	shares := make(map[string]float64, len(placements))
	for _, p := range placements {
		if sum := groupSums[p.ScopeKey()]; sum > 0 {
			shares[p.ID] = float64(p.Priority) / float64(sum)
		}
	}
	return shares
}
