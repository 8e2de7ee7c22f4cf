package domain

import "time"

// TaskKind identifies the kind of work a reconciliation task performs.
// There is exactly one kind today; the type exists so the queue
// abstraction generalizes without an interface change if a second kind
// is ever added.
type TaskKind string

// ReconcileCache is the only task kind this system currently enqueues:
// scan the cache directory for tarballs lacking a verified Package
// record and delete them (§4.15).
const ReconcileCache TaskKind = "reconcile_cache"

// Task is a unit of work on the reconciliation queue. It carries no
// multi-tenant fields (TeamID, Priority, scheduling metadata) — the
// non-goals exclude multi-tenant isolation, and scheduling here is
// driven by a plain ticker, not a persisted schedule table.
type Task struct {
	ID          string
	Kind        TaskKind
	EnqueuedAt  time.Time
	Attempts    int
}
