package services

import "time"

// nowUTC is the single seam for "current time" across the core services,
// so tests can wrap a service with a fixed clock if ever needed without
// touching call sites.
func nowUTC() time.Time {
	return time.Now().UTC()
}
