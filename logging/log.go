package logging

import (
	"fmt"
	"io"
	"log"
	"os"

	"github.com/fatih/color"
)

type LogLevel int

const (
	LogLevelError   LogLevel = 0
	LogLevelWarning LogLevel = 1
	LogLevelInfo    LogLevel = 2
	LogLevelDebug   LogLevel = 3
)

var logLevel = LogLevelInfo

// Level prefixes are colored when stdout is a terminal; color turns
// itself off when it isn't.
var (
	errorPrefix = color.New(color.FgRed).Sprint("[ERROR]")
	warnPrefix  = color.New(color.FgYellow).Sprint("[WARN]")
	infoPrefix  = color.New(color.FgGreen).Sprint("[INFO]")
	debugPrefix = color.New(color.FgCyan).Sprint("[DEBUG]")
)

func SetLogLevel(newLevel int) {
	logLevel = LogLevel(newLevel)
}

// SetLogFile mirrors the log to logFile as well as stdout.
func SetLogFile(logFile io.Writer) {
	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds)
	log.SetOutput(io.MultiWriter(os.Stdout, logFile))
}

// SetLogFileOnly sends the log only to logFile, for non-verbose runs.
func SetLogFileOnly(logFile io.Writer) {
	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds)
	log.SetOutput(logFile)
}

func Fatal(args ...interface{}) {
	log.Fatal(args...)
}

func Fatalf(format string, args ...interface{}) {
	log.Fatalf(format, args...)
}

func Errorf(format string, args ...interface{}) {
	if logLevel >= LogLevelError {
		log.Printf(fmt.Sprintf("%s %s", errorPrefix, format), args...)
	}
}

func Warnf(format string, args ...interface{}) {
	if logLevel >= LogLevelWarning {
		log.Printf(fmt.Sprintf("%s %s", warnPrefix, format), args...)
	}
}

func Infof(format string, args ...interface{}) {
	if logLevel >= LogLevelInfo {
		log.Printf(fmt.Sprintf("%s %s", infoPrefix, format), args...)
	}
}

func Debugf(format string, args ...interface{}) {
	if logLevel >= LogLevelDebug {
		log.Printf(fmt.Sprintf("%s %s", debugPrefix, format), args...)
	}
}

func Errorln(args ...interface{}) {
	if logLevel >= LogLevelError {
		log.Println(append([]interface{}{errorPrefix}, args...)...)
	}
}

func Warnln(args ...interface{}) {
	if logLevel >= LogLevelWarning {
		log.Println(append([]interface{}{warnPrefix}, args...)...)
	}
}

func Infoln(args ...interface{}) {
	if logLevel >= LogLevelInfo {
		log.Println(append([]interface{}{infoPrefix}, args...)...)
	}
}

func Debugln(args ...interface{}) {
	if logLevel >= LogLevelDebug {
		log.Println(append([]interface{}{debugPrefix}, args...)...)
	}
}

func SetupTestLogs() {
	logLevel = LogLevelDebug
}
