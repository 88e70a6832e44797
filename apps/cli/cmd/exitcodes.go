package cmd

// Exit codes for the tentspec CLI
const (
	// ExitSuccess indicates every expectation passed
	ExitSuccess = 0

	// ExitTestFailure indicates one or more expectations failed
	ExitTestFailure = 1

	// ExitBuildError indicates a validator referenced an unknown hook,
	// shared example, generator or schema
	ExitBuildError = 2

	// ExitConfigError indicates a configuration error
	ExitConfigError = 3

	// ExitNetworkError indicates the server under test never answered
	ExitNetworkError = 4

	// ExitUsageError indicates invalid CLI usage
	ExitUsageError = 64
)
