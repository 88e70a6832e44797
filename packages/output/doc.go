// Package output provides formatters for displaying validation results.
//
// Supported output formats:
//   - Console: progress marks, a detailed block per failure and a summary
//   - JSON: the results tree plus summary counts
//   - JUnit: JUnit XML format for CI integration, one suite per validator
//   - TAP: Test Anything Protocol format
//
// Every formatter receives progress through FormatRecord and the finished
// run through FormatResult. Formats that accumulate output also implement
// Flush.
package output
