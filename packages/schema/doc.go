// Package schema holds the named JSON Schemas used by schema assertions.
//
// Schemas are written as YAML documents. The Tent schemas ship embedded and
// additional ones can be loaded from a directory. Validation is delegated to
// gojsonschema; each violation is reported with a JSON pointer to the
// offending member.
package schema
