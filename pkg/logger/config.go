package logger

// Config holds the logger configuration.
type Config struct {
	// Level sets the minimum log level (debug, info, warn, error)
	Level string

	// Environment determines output format (development = console, production = JSON)
	Environment string

	// Output is "stdout" or "stderr"
	Output string

	// RevealEmails disables masking of email addresses in log fields.
	// Only meant for local debugging.
	RevealEmails bool
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Level:       "info",
		Environment: "development",
		Output:      "stdout",
	}
}
