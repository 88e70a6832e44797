// Package http provides the HTTP client boundary used by expectations.
//
// It wraps the standard library's http package with additional features:
//   - Configurable timeouts and request pacing
//   - Hawk MAC request signing for Tent credentials
//   - Multipart bodies for posts with attachments
//   - Buffered responses with case-insensitive header lookup and JSON decoding
package http
