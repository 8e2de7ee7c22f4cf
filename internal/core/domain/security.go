package domain

import "time"

// EventKind classifies a Security event. Every completed verification
// attempt produces exactly one event of exactly one of these kinds.
type EventKind string

const (
	EventSuccess        EventKind = "success"
	EventThreatDetected EventKind = "threat_detected"
	EventFailure        EventKind = "failure"
)

// SecurityEvent is an append-only audit record of one verification
// attempt. The Audit Store exclusively owns these; nothing ever updates
// or deletes an event once written.
type SecurityEvent struct {
	PackageName    string    `json:"packageName"`
	Version        string    `json:"version"`
	Kind           EventKind `json:"kind"`
	ObservedDigest string    `json:"observedDigest"`
	ExpectedDigest string    `json:"expectedDigest"`
	At             time.Time `json:"at"`
	Details        string    `json:"details"`
}

// SecurityStats is the aggregate view returned by GET /api/security-stats.
type SecurityStats struct {
	Total           int             `json:"total"`
	Successful      int             `json:"successful"`
	ThreatsDetected int             `json:"threatsDetected"`
	Failures        int             `json:"failures"`
	SuccessRate     string          `json:"successRate"` // formatted to 2 decimal places, e.g. "98.50"
	RecentEvents    []SecurityEvent `json:"recentEvents"`
}
