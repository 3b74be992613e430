package acquisition

import (
	"fmt"
	"log"
)

// Level is the severity of a status notification.
type Level int

const (
	Info Level = iota
	Warn
	Error
)

func (l Level) String() string {
	switch l {
	case Info:
		return "INFO"
	case Warn:
		return "WARN"
	case Error:
		return "ERROR"
	default:
		return fmt.Sprintf("Level(%d)", int(l))
	}
}

// StatusFunc receives status notifications meant for the user.
type StatusFunc func(level Level, msg string)

// LogStatus is the default StatusFunc.
func LogStatus(level Level, msg string) {
	log.Printf("[%s] %s", level, msg)
}
