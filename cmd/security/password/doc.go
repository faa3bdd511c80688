// Package password implements Argon2id password hashing and the password
// policy enforced at signup and password rotation.
//
// It is the single source of truth for:
//   - Argon2id parameters (defaults + env overrides)
//   - password policy (length bounds, optional weak-pattern rejection)
//   - strict PHC decoding with anti-DoS bounds during Verify
//
// Hashes are encoded as PHC strings:
//
//	$argon2id$v=19$m=<mem>,t=<iter>,p=<par>$<salt_b64>$<hash_b64>
package password
