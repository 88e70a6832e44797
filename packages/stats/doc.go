// Package stats summarises expectation latency with HDR histograms.
package stats
