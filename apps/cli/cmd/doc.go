// Package cmd implements the tentspec CLI commands using Cobra.
//
// Available commands:
//   - run: Run the conformance validators against a Tent server
//   - list: Display the validators and their expectation trees
//   - completion: Generate shell completion scripts
//   - version: Show tentspec version information
//
// Settings come from tentspec.yaml, TENT_* environment variables and
// flags, in increasing precedence.
package cmd
