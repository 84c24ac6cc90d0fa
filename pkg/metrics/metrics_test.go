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
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestReportReservationAttempt(t *testing.T) {
	ReservationAttemptsTotal.Reset()
	ReportReservationAttempt("p1", ReservationResultSuccess)
	ReportReservationAttempt("p1", ReservationResultSuccess)
	ReportReservationAttempt("p1", ReservationResultRejected)

	if got := testutil.ToFloat64(ReservationAttemptsTotal.WithLabelValues("p1", string(ReservationResultSuccess))); got != 2 {
		t.Errorf("success attempts = %v, want 2", got)
	}
	if got := testutil.ToFloat64(ReservationAttemptsTotal.WithLabelValues("p1", string(ReservationResultRejected))); got != 1 {
		t.Errorf("rejected attempts = %v, want 1", got)
	}

	ClearPlacementMetrics("p1")
	if got := testutil.CollectAndCount(ReservationAttemptsTotal); got != 0 {
		t.Errorf("series remaining after cleanup = %d, want 0", got)
	}
}

func TestReportRedistribution(t *testing.T) {
	RedistributionsTotal.Reset()
	RedistributionReclaimedBytes.Reset()
	ReportRedistribution("z1", 1500)
	ReportRedistribution("z1", 500)

	if got := testutil.ToFloat64(RedistributionsTotal.WithLabelValues("z1")); got != 2 {
		t.Errorf("redistributions = %v, want 2", got)
	}
	if got := testutil.ToFloat64(RedistributionReclaimedBytes.WithLabelValues("z1")); got != 2000 {
		t.Errorf("reclaimed bytes = %v, want 2000", got)
	}
}
