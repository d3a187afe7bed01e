package sampler

import "errors"

// Location failure taxonomy. All three stop active tracking when surfaced
// through the watch error callback.
var (
	// ErrPermissionDenied indicates the location capability refused access.
	ErrPermissionDenied = errors.New("location permission denied")
	// ErrPositionUnavailable indicates the capability could not produce a fix.
	ErrPositionUnavailable = errors.New("position unavailable")
	// ErrTimeout indicates no fix arrived within the configured timeout.
	ErrTimeout = errors.New("location request timed out")
	// ErrNoProvider indicates the platform has no location capability at all.
	ErrNoProvider = errors.New("no location capability")
)

// Message maps a location error to the user-visible string shown in the
// error overlay next to the retry control.
func Message(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrPermissionDenied):
		return "Location access denied. Enable location permissions and retry."
	case errors.Is(err, ErrPositionUnavailable):
		return "Position unavailable. Check GPS reception and retry."
	case errors.Is(err, ErrTimeout):
		return "Location request timed out. Retry when you have a clearer view of the sky."
	case errors.Is(err, ErrNoProvider):
		return "This device has no location capability."
	default:
		return "Location error: " + err.Error()
	}
}

// Retryable reports whether a retry control should be offered for err.
func Retryable(err error) bool {
	return err != nil && !errors.Is(err, ErrNoProvider)
}
