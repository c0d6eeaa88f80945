package finauth

import "log"

// Logger is the logging sink consumed by the client. It is side-effect only
// and never influences control flow.
type Logger interface {
	Debug(message string)
	Error(message string)
}

// NoOpLogger discards all messages. It is the default logger.
type NoOpLogger struct{}

// Debug implements [Logger].
func (NoOpLogger) Debug(string) {}

// Error implements [Logger].
func (NoOpLogger) Error(string) {}

// StdLogger writes through the standard library logger.
type StdLogger struct{}

// Debug implements [Logger].
func (StdLogger) Debug(message string) {
	log.Printf("finauth: debug: %s", message)
}

// Error implements [Logger].
func (StdLogger) Error(message string) {
	log.Printf("finauth: error: %s", message)
}
