package common

import goLog "log"

// Logger is the capability this engine uses for its (sparse, opt-in)
// diagnostic output. The zero value of the package is silent.
type Logger interface {
	Logf(format string, a ...interface{})
}

type dummyLogger struct{}

func (dummyLogger) Logf(format string, a ...interface{}) {}

type stdlibLogger struct{}

func (stdlibLogger) Logf(format string, a ...interface{}) { goLog.Printf(format, a...) }

var log Logger = dummyLogger{}

// SetLogger installs l as the package-wide logger. Passing nil restores
// the silent default.
func SetLogger(l Logger) {
	if l == nil {
		log = dummyLogger{}
		return
	}
	log = l
}

// StdlibLogger returns a Logger that writes through the standard library's
// log package, for callers that just want something on stderr.
func StdlibLogger() Logger { return stdlibLogger{} }

// Logf routes to the currently installed logger.
func Logf(format string, a ...interface{}) {
	log.Logf(format, a...)
}
