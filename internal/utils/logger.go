// Package utils provides logging and validation helpers shared across
// the CLI and the pipeline.
package utils

import (
	"fmt"
	"os"
	"strings"
)

// Terminal color codes using ANSI escape sequences
const (
	resetColor   = "\033[0m"
	redColor     = "\033[31m" // For errors
	greenColor   = "\033[32m" // For success/completion
	yellowColor  = "\033[33m" // For warnings
	blueColor    = "\033[34m" // For stage start
	magentaColor = "\033[35m" // For emphasis
	cyanColor    = "\033[36m" // For debug info
)

func colored(text, color string) string {
	return color + text + resetColor
}

// Info returns blue-colored text for informational messages
func Info(text string) string { return colored(text, blueColor) }

// Success returns green-colored text for success messages
func Success(text string) string { return colored(text, greenColor) }

// Warning returns yellow-colored text for warning messages
func Warning(text string) string { return colored(text, yellowColor) }

// Error returns red-colored text for error messages
func Error(text string) string { return colored(text, redColor) }

// Highlight returns magenta-colored text for emphasized content
func Highlight(text string) string { return colored(text, magentaColor) }

// Debug returns cyan-colored text for debug info
func Debug(text string) string { return colored(text, cyanColor) }

// LogLevel represents the level of logging verbosity
type LogLevel int

const (
	// LevelQuiet suppresses all output except errors
	LevelQuiet LogLevel = iota
	// LevelNormal shows standard pipeline progress
	LevelNormal
	// LevelVerbose shows detailed information about each unit
	LevelVerbose
	// LevelDebug shows all debugging information
	LevelDebug
)

// CurrentLogLevel is the global log level setting
var CurrentLogLevel = LevelNormal

// SetLogLevel sets the global logging level
func SetLogLevel(level LogLevel) {
	CurrentLogLevel = level
}

// LogLevelFromString converts a string level name to LogLevel
func LogLevelFromString(level string) LogLevel {
	switch strings.ToLower(level) {
	case "quiet", "q":
		return LevelQuiet
	case "normal", "n":
		return LevelNormal
	case "verbose", "v":
		return LevelVerbose
	case "debug", "d":
		return LevelDebug
	default:
		return LevelNormal
	}
}

// LogError logs an error message (always shown)
func LogError(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "%s\n", Error(fmt.Sprintf(format, args...)))
}

// LogInfo logs an informational message at Normal+ level
func LogInfo(format string, args ...interface{}) {
	if CurrentLogLevel >= LevelNormal {
		fmt.Printf("%s\n", Info(fmt.Sprintf(format, args...)))
	}
}

// LogSuccess logs a success message at Normal+ level
func LogSuccess(format string, args ...interface{}) {
	if CurrentLogLevel >= LevelNormal {
		fmt.Printf("%s\n", Success(fmt.Sprintf(format, args...)))
	}
}

// LogWarning logs a warning message at Normal+ level
func LogWarning(format string, args ...interface{}) {
	if CurrentLogLevel >= LevelNormal {
		fmt.Printf("%s\n", Warning(fmt.Sprintf(format, args...)))
	}
}

// LogVerbose logs a message at Verbose+ level
func LogVerbose(format string, args ...interface{}) {
	if CurrentLogLevel >= LevelVerbose {
		fmt.Printf("\t%s\n", Info(fmt.Sprintf(format, args...)))
	}
}

// LogDebug logs a debug message at Debug level
func LogDebug(format string, args ...interface{}) {
	if CurrentLogLevel >= LevelDebug {
		fmt.Printf("\t%s\n", Debug(fmt.Sprintf(format, args...)))
	}
}
