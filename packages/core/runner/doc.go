// Package runner executes conformance validators and collects their results.
//
// It provides functionality for:
//   - Checking validators for build errors before anything is sent
//   - Filtering validators by name pattern
//   - Running validators in registration order against one environment
//   - Recording setup failures, either as results or as skipped work
//   - Draining asynchronous expectations once every validator has run
//   - Collecting per-validator latency percentiles
package runner
