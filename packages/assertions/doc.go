// Package assertions scores declared response assertions against one response.
//
// Supported assertions:
//   - Status code checks (exact code or inclusive range)
//   - Header checks (literal value or regular expression per header)
//   - Body checks (whole body, reported at /body)
//   - JSON Schema validation of the sub-document at a JSON pointer
//   - Deep partial property matching at a JSON pointer
//   - Property absence and presence
//   - Property length (arrays, objects and strings)
//
// Every assertion produces a Result with a tri-state validity and the diff
// entries that explain it.
package assertions
