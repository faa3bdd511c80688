// Package identity owns the user records of the admin panel: creation at
// signup, credential verification at signin, superuser profile updates, and
// the listing used by the administration screen.
//
// Two Store implementations exist: PostgresStore for real deployments and
// MemoryStore for dev mode and tests. Both enforce the same contract,
// including atomic username/email uniqueness and enumeration-safe credential
// checks.
package identity
