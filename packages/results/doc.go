// Package results aggregates scored expectations into a mergeable tree.
//
// The serialized form mirrors the scenario tree:
//
//	{"<node>": {"results": [...], "<child>": {...}}}
//
// Merging concatenates result sequences at matching nodes and recurses
// into children. Skipped expectations are counted separately so that
// "not exercised" is never reported as "exercised and wrong".
package results
