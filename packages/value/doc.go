// Package value provides a closed JSON value type for comparing response bodies.
//
// A Value is one of:
//   - Null
//   - Bool
//   - Number
//   - String
//   - Array
//   - *Object (keys kept in document order)
//
// Parse decodes a document with gjson so object key order survives, and
// Lookup resolves RFC 6901 JSON pointers against a decoded Value.
package value
