// Package env loads .env files and expands ${VAR} references.
//
// Values from .env files never override variables already present in the
// process environment, so CI-provided TENT_* settings win.
package env
