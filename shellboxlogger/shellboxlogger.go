package shellboxlogger

import (
	"context"
	"os"
	"runtime/debug"

	"github.com/getsentry/sentry-go"
	"github.com/shellboxhq/shellbox/utils"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var logger *zap.Logger

func init() {
	// First, define our level-handling logic.
	highPriority := zap.LevelEnablerFunc(func(lvl zapcore.Level) bool {
		return lvl >= zapcore.ErrorLevel
	})
	lowPriority := zap.LevelEnablerFunc(func(lvl zapcore.Level) bool {
		return lvl < zapcore.ErrorLevel
	})
	allPriority := zap.LevelEnablerFunc(func(lvl zapcore.Level) bool {
		return true
	})

	// High-priority output should go to standard error, and low-priority
	// output should go to standard out.
	consoleDebugging := zapcore.Lock(os.Stdout)
	consoleErrors := zapcore.Lock(os.Stderr)

	consoleEncoderConfig := zap.NewDevelopmentEncoderConfig()

	// Enable colored output on stdout
	consoleEncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder

	consoleEncoder := zapcore.NewConsoleEncoder(consoleEncoderConfig)

	cores := []zapcore.Core{
		zapcore.NewCore(consoleEncoder, consoleErrors, highPriority),
		zapcore.NewCore(consoleEncoder, consoleDebugging, lowPriority),
	}

	// The Sentry and logz.io cores only exist when production logging is
	// enabled. Sentry only receives errors, logz.io receives everything.
	if sentry := NewSentryCore(zapcore.NewJSONEncoder(NewSentryEncoderConfig()), highPriority); sentry != nil {
		cores = append(cores, sentry)
	}
	if logzio := newLogzioCore(zapcore.NewJSONEncoder(newLogzioEncoderConfig()), allPriority); logzio != nil {
		cores = append(cores, logzio)
	}

	logger = zap.New(zapcore.NewTee(cores...))
}

// InitConsoleLogging attaches instance-identifying fields to every log entry
// and configures the Sentry scope with the same tags. It should be called
// once at startup, after the cloud metadata has been populated.
func InitConsoleLogging(component string, tags map[string]string) {
	fields := make([]zap.Field, 0, len(tags)+1)
	fields = append(fields, zap.String("component", component))
	for k, v := range tags {
		fields = append(fields, zap.String(k, v))
	}
	logger = logger.With(fields...)

	err := initializeSentry(func(scope *sentry.Scope) {
		scope.SetTag("component", component)
		for k, v := range tags {
			scope.SetTag(k, v)
		}
	})
	if err != nil {
		Errorf("Couldn't configure the Sentry scope: %s", err)
	}
}

// Close flushes all production logging (i.e. Sentry and logz.io).
func Close() {
	// Flush buffered logging events before the program terminates.
	logger.Sync()
	Info("Flushing Sentry...")
	FlushSentry()
	Info("Flushing logz.io...")
	stopAndDrainLogzio()
}

// Info logs some info + timestamp, but does not send it to Sentry.
func Info(v ...interface{}) {
	logger.Sugar().Info(v...)
}

// Error logs an error and sends it to Sentry.
func Error(err error) {
	logger.Sugar().Error(err)
}

// Warning logs an error in red text, like Error, but doesn't send it to
// Sentry.
func Warning(err error) {
	logger.Sugar().Warn(err)
}

// Panic sends an error to Sentry and "pretends" to panic on it by printing the
// stack trace and calling the provided global context-cancelling function.
// This causes all the goroutines in the program to kill themselves (cleanly).
// This function should not be used except to initiate termination of the
// entire console service. Note that passing in a nil first argument would cause
// this function to _actually_ panic, and if we're gonna panic we might as well
// do so in a useful way. Therefore, passing in a nil `globalCancel` parameter
// will just panic on `err` instead.
func Panic(globalCancel context.CancelFunc, err error) {
	PrintStackTrace()

	if globalCancel != nil {
		Error(err)
		globalCancel()
	} else {
		// If we're truly trying to panic, let's at least flush our logging queues
		// first so this error actually gets sent.
		FlushLogzio()
		FlushSentry()
		logger.Sugar().Panic(err)
	}
}

// Infof is identical to Info, since Info already respects printf syntax. We
// only include Infof for consistency with Errorf, Warningf, and Panicf.
func Infof(format string, v ...interface{}) {
	logger.Sugar().Infof(format, v...)
}

// Errorf is like Error, but it respects printf syntax, i.e. takes in a format
// string and arguments, for convenience.
func Errorf(format string, v ...interface{}) {
	logger.Sugar().Errorf(format, v...)
}

// Warningf is like Warning, but it respects printf syntax, i.e. takes in a format
// string and arguments, for convenience.
func Warningf(format string, v ...interface{}) {
	logger.Sugar().Warnf(format, v...)
}

// Panicf is like Panic, but it respects printf syntax, i.e. takes in a format
// string and arguments, for convenience.
func Panicf(globalCancel context.CancelFunc, format string, v ...interface{}) {
	Panic(globalCancel, utils.MakeError(format, v...))
}

// PrintStackTrace prints the stack trace, for debugging purposes.
func PrintStackTrace() {
	Info("Printing stack trace: ")
	debug.PrintStack()
}
