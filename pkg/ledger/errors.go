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
	"errors"
	"fmt"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
)

// Reason is the stable machine-readable classification of a ledger
// error. Callers branch on the reason, not on the message.
type Reason string

const (
	// Validation failures on create/update. Not retryable; the request
	// must be fixed.
	ReasonMissingZone             Reason = "MissingZone"
	ReasonInvalidPriority         Reason = "InvalidPriority"
	ReasonInvalidMaxInstances     Reason = "InvalidMaxInstances"
	ReasonMemoryBelowMinimum      Reason = "MemoryBelowMinimum"
	ReasonInvalidCPUShares        Reason = "InvalidCpuShares"
	ReasonTooFewMaxInstances      Reason = "TooFewMaxInstances"
	ReasonMemoryBelowReserved     Reason = "MemoryBelowReserved"
	ReasonActiveInstancesLock     Reason = "ActiveInstancesLockField"
	ReasonMissingResourceDesc     Reason = "MissingResourceDescription"
	ReasonUnknownResourceKind     Reason = "UnknownResourceKind"

	// Capacity failures. Not retryable without shrinking the request.
	ReasonInsufficientInstanceCapacity Reason = "InsufficientInstanceCapacity"
	ReasonInsufficientMemoryCapacity   Reason = "InsufficientMemoryCapacity"
	ReasonInsufficientZoneMemory       Reason = "InsufficientZoneMemory"
	ReasonMemoryAlreadyReserved        Reason = "MemoryAlreadyReserved"

	// ReasonForbidden means the caller is not on the internal-task
	// allow-list.
	ReasonForbidden Reason = "Forbidden"

	// ReasonResourceDescriptionUnavailable means the description lookup
	// errored; the reservation may be retried.
	ReasonResourceDescriptionUnavailable Reason = "ResourceDescriptionUnavailable"

	// ReasonActiveReservationsExist blocks deletion while live instances
	// still reference the placement.
	ReasonActiveReservationsExist Reason = "ActiveReservationsExist"
)

// Error carries the reason plus the numeric context the caller needs to
// act on it.
type Error struct {
	Reason  Reason
	Message string

	// Available and Requested hold the capacity context of admission
	// failures: the quantity still available and the quantity the
	// request asked for.
	Available int64
	Requested int64

	// Count holds the live instance count of an ActiveReservationsExist
	// failure.
	Count int64

	err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Reason, e.Message)
}

func (e *Error) Unwrap() error {
	return e.err
}

func newError(reason Reason, format string, args ...any) *Error {
	return &Error{Reason: reason, Message: fmt.Sprintf(format, args...)}
}

// ReasonForError extracts the reason, or the empty string for errors
// that did not originate in the ledger.
func ReasonForError(err error) Reason {
	var lerr *Error
	if errors.As(err, &lerr) {
		return lerr.Reason
	}
	return ""
}

// IsRetryable reports whether the caller may retry the operation
// unchanged: persistence conflicts (after reloading) and transient
// description-lookup failures.
func IsRetryable(err error) bool {
	if apierrors.IsConflict(err) {
		return true
	}
	return ReasonForError(err) == ReasonResourceDescriptionUnavailable
}
