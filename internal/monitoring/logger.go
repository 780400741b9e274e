package monitoring

import "log"

// Logf is the package-level diagnostic logger for the cleaning pipeline. It
// defaults to log.Printf but may be replaced by SetLogger. Tests or embedding
// applications can redirect or mute it.
var Logf func(format string, v ...interface{}) = log.Printf

// Verbose gates Debugf. Per-bin solver detail is noisy for long segments, so
// it is off unless a caller opts in.
var Verbose bool

// SetLogger replaces the package logger. Passing nil will set a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// Debugf logs through Logf only when Verbose is enabled.
func Debugf(format string, v ...interface{}) {
	if Verbose {
		Logf(format, v...)
	}
}
