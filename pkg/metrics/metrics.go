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

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"sigs.k8s.io/controller-runtime/pkg/metrics"
)

const subsystemName = "placement_ledger"

type ReservationResult string

const (
	// ReservationResultSuccess means the reservation or release was
	// committed.
	ReservationResultSuccess ReservationResult = "success"
	// ReservationResultNoop means a duplicate release was absorbed
	// without mutating the placement.
	ReservationResultNoop ReservationResult = "noop"
	// ReservationResultRejected means admission failed and nothing was
	// committed.
	ReservationResultRejected ReservationResult = "rejected"
)

var (
	ReservationAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Subsystem: subsystemName,
			Name:      "reservation_attempts_total",
			Help: `The total number of reservation and release attempts per placement.
The label 'result' can have the following values:
- 'success' means the request was committed.
- 'noop' means a duplicate release was absorbed without effect.
- 'rejected' means the request was denied.`,
		}, []string{"placement", "result"},
	)

	CapacityRejectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Subsystem: subsystemName,
			Name:      "capacity_rejections_total",
			Help:      "The total number of requests rejected for capacity reasons, by rejection reason.",
		}, []string{"reason"},
	)

	RedistributionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Subsystem: subsystemName,
			Name:      "redistributions_total",
			Help:      "The total number of capacity-shrink redistributions executed per zone.",
		}, []string{"zone"},
	)

	RedistributionReclaimedBytes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Subsystem: subsystemName,
			Name:      "redistribution_reclaimed_bytes_total",
			Help:      "The total amount of memory quota reclaimed from placements by redistributions, per zone.",
		}, []string{"zone"},
	)
)

func ReportReservationAttempt(placement string, result ReservationResult) {
	ReservationAttemptsTotal.WithLabelValues(placement, string(result)).Inc()
}

func ReportCapacityRejection(reason string) {
	CapacityRejectionsTotal.WithLabelValues(reason).Inc()
}

func ReportRedistribution(zone string, reclaimedBytes int64) {
	RedistributionsTotal.WithLabelValues(zone).Inc()
	RedistributionReclaimedBytes.WithLabelValues(zone).Add(float64(reclaimedBytes))
}

// ClearPlacementMetrics drops the per-placement series of a deleted
// placement.
func ClearPlacementMetrics(placement string) {
	ReservationAttemptsTotal.DeletePartialMatch(prometheus.Labels{"placement": placement})
}

func Register() {
	metrics.Registry.MustRegister(
		ReservationAttemptsTotal,
		CapacityRejectionsTotal,
		RedistributionsTotal,
		RedistributionReclaimedBytes,
	)
}
