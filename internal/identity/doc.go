// Package identity holds the pure validators for user-supplied identity data:
// Chilean RUT, password strength, phone numbers and login handles.
//
// Every function here is deterministic and side-effect free so registration,
// profile edits and tests can call them directly.
package identity
