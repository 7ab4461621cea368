package main

// Exit codes used across all commands.
const (
	ExitSuccess     = 0 // Success
	ExitError       = 1 // General error (invalid arguments, runtime failure)
	ExitConfigError = 2 // Configuration error (bad config file, unknown key)
	ExitDataError   = 3 // Data or provider error (unreadable input, provider init failure)
)
