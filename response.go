package noip

import (
	"strings"
	"time"

	"go.uber.org/zap/zapcore"
)

// Status is a No-IP response code.
type Status string

const (
	StatusGood         Status = "good"
	StatusNoChange     Status = "nochg"
	StatusNoHost       Status = "nohost"
	StatusBadAuth      Status = "badauth"
	StatusBadAgent     Status = "badagent"
	StatusNotDonator   Status = "!donator"
	StatusAbuse        Status = "abuse"
	StatusServerError  Status = "911"
	StatusUnrecognized Status = "unrecognized"
)

// ServerErrorBackoff is the minimum pause after a "911" reply.
const ServerErrorBackoff = 30 * time.Minute

// checked in order after the leading good/nochg token
var rejections = []Status{
	StatusNoHost,
	StatusBadAuth,
	StatusBadAgent,
	StatusNotDonator,
	StatusAbuse,
	StatusServerError,
}

// ParseResponse extracts the status code and the echoed address from a No-IP reply.
// Only the first line is considered.
func ParseResponse(text string) (Status, string) {
	line, _, _ := strings.Cut(strings.TrimSpace(text), "\n")
	line = strings.TrimSpace(line)

	fields := strings.Fields(line)
	if len(fields) > 0 {
		switch s := Status(fields[0]); s {
		case StatusGood, StatusNoChange:
			if len(fields) > 1 {
				return s, fields[1]
			}
			return s, ""
		}
	}
	for _, s := range rejections {
		if strings.HasPrefix(line, string(s)) {
			return s, ""
		}
	}
	return StatusUnrecognized, ""
}

// CoolDown says what happens to a device's schedule after a reply.
type CoolDown int

const (
	NoCoolDown CoolDown = iota
	// Suspend stops scheduled updates until the device is resumed or the process restarts.
	Suspend
	// Backoff pauses scheduled updates for ServerErrorBackoff.
	Backoff
)

// Decision is what a refresh cycle does with a No-IP reply.
type Decision struct {
	Status   Status
	IP       string
	Message  string
	Level    zapcore.Level
	CoolDown CoolDown

	// SetSensor is false when the sensor should keep its current state.
	SetSensor bool
	Sensor    SensorState
}

// Confirmed reports whether No-IP confirmed the address.
func (d Decision) Confirmed() bool {
	return d.Status == StatusGood || d.Status == StatusNoChange
}

var decisions = map[Status]Decision{
	StatusNoChange:     {Message: "IP address is already current", Level: zapcore.DebugLevel, SetSensor: true, Sensor: ContactDetected},
	StatusGood:         {Message: "IP address updated", Level: zapcore.WarnLevel, SetSensor: true, Sensor: ContactDetected},
	StatusNoHost:       {Message: "hostname does not exist under this account, updates suspended", Level: zapcore.ErrorLevel, CoolDown: Suspend, SetSensor: true, Sensor: ContactNotDetected},
	StatusBadAuth:      {Message: "invalid username or password, updates suspended", Level: zapcore.ErrorLevel, CoolDown: Suspend, SetSensor: true, Sensor: ContactNotDetected},
	StatusBadAgent:     {Message: "client disabled by No-IP, updates suspended", Level: zapcore.ErrorLevel, CoolDown: Suspend, SetSensor: true, Sensor: ContactNotDetected},
	StatusNotDonator:   {Message: "feature not available to this account, updates suspended", Level: zapcore.ErrorLevel, CoolDown: Suspend, SetSensor: true, Sensor: ContactNotDetected},
	StatusAbuse:        {Message: "hostname blocked for abuse, updates suspended", Level: zapcore.ErrorLevel, CoolDown: Suspend, SetSensor: true, Sensor: ContactNotDetected},
	StatusServerError:  {Message: "No-IP server error, pausing updates", Level: zapcore.ErrorLevel, CoolDown: Backoff, SetSensor: true, Sensor: ContactNotDetected},
	StatusUnrecognized: {Message: "unrecognized response", Level: zapcore.DebugLevel},
}

// Decide maps a parsed status to a Decision.
func Decide(status Status, ip string) Decision {
	d, ok := decisions[status]
	if !ok {
		d = decisions[StatusUnrecognized]
		status = StatusUnrecognized
	}
	d.Status = status
	d.IP = ip
	return d
}

// Interpret parses a raw No-IP reply and decides what to do with it.
func Interpret(text string) Decision {
	return Decide(ParseResponse(text))
}
