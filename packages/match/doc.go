// Package match compares expected partial documents against actual JSON values.
//
// Expected documents are built from Matchers:
//   - Literal: equality on the JSON value
//   - Regex: the actual value must be a matching string
//   - Absent / Present: existence checks, value unchecked
//   - Fields: partial object, only the listed keys are compared
//   - Items: partial array, only the listed indices are compared
//
// Diff walks the expected document depth-first and returns one Entry per
// leaf comparison.
package match
