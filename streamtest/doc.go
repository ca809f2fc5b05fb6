// Package streamtest turns stream wait outcomes into test assertions.
//
// Assertions accept any testify assert.TestingT, report failures through
// Errorf, and always include the tail of the events observed on the stream so
// a mismatch can be diagnosed without running the test again. The default
// timeout comes from config.Default and may be overridden per call with
// WithTimeout.
package streamtest
