package session

import (
	"fmt"
	"strings"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

// LevelLogger is the subset of a structured logger the paho bridge needs.
type LevelLogger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// pahoLogger adapts paho's Println/Printf logger to a structured logger.
type pahoLogger struct {
	emit func(msg string, args ...any)
}

func (p pahoLogger) Println(v ...any) {
	p.emit(strings.TrimSpace(fmt.Sprintln(v...)), "source", "paho")
}

func (p pahoLogger) Printf(format string, v ...any) {
	p.emit(strings.TrimSpace(fmt.Sprintf(format, v...)), "source", "paho")
}

// RoutePahoLogs sends paho's package-level error and warning output to
// logger. With debug set, paho's debug trace is routed too.
//
// paho's loggers are process-wide; call this once at startup.
func RoutePahoLogs(logger LevelLogger, debug bool) {
	pahomqtt.CRITICAL = pahoLogger{emit: logger.Error}
	pahomqtt.ERROR = pahoLogger{emit: logger.Error}
	pahomqtt.WARN = pahoLogger{emit: logger.Warn}
	if debug {
		pahomqtt.DEBUG = pahoLogger{emit: logger.Debug}
	} else {
		pahomqtt.DEBUG = pahomqtt.NOOPLogger{}
	}
}
