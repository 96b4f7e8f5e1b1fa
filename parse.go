package fdm

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Dialect maps raw reply text to typed results, one function per command
// family. The grammars differ between firmwares, so they are plain
// functions that can be swapped out without touching the client.
type Dialect struct {
	Temperature func(raw string) (Temperature, error)
	Progress    func(raw string) (Progress, error)
	Time        func(raw string) (time.Duration, error)
	Filename    func(raw string) (PrintingFile, error)
	State       func(raw string) (MachineState, error)
	Ack         func(raw string) (Ack, error)
}

// DefaultDialect speaks the Marlin-flavoured replies of the wifi boards
// this library targets.
var DefaultDialect = Dialect{
	Temperature: ParseTemperature,
	Progress:    ParseProgress,
	Time:        ParseDuration,
	Filename:    ParseFilename,
	State:       ParseState,
	Ack:         ParseAck,
}

// ParseTemperature reads a M105 reply. Typical formats:
//
//	"T:201.3 /210.0 B:59.8 /60.0 @:127 B@:64"
//	"T:201.3/210.0 B:59.8/60.0"
//
// The target of a pair may arrive as a separate "/210.0" field. Fields
// other than T/T0 and B are ignored.
func ParseTemperature(raw string) (Temperature, error) {
	fields := strings.Fields(raw)

	var tp Temperature
	var found bool

	for i := 0; i < len(fields); i++ {
		kv := strings.SplitN(fields[i], ":", 2)
		if len(kv) != 2 {
			continue
		}

		var r HeaterReading
		var err error

		val := kv[1]
		if slash := strings.IndexByte(val, '/'); slash >= 0 {
			r.Actual, err = strconv.ParseFloat(val[:slash], 64)
			if err != nil {
				continue
			}

			r.Target, _ = strconv.ParseFloat(val[slash+1:], 64)
		} else {
			r.Actual, err = strconv.ParseFloat(val, 64)
			if err != nil {
				continue
			}

			if i+1 < len(fields) && strings.HasPrefix(fields[i+1], "/") {
				r.Target, _ = strconv.ParseFloat(fields[i+1][1:], 64)
				i++
			}
		}

		switch kv[0] {
		case "T", "T0":
			tp.Extruder = r
			found = true

		case "B":
			tp.Bed = r
			found = true
		}
	}

	if !found {
		return Temperature{}, &ParseError{Cmd: cmdTemperature, Raw: raw}
	}

	return tp, nil
}

var progressRe = regexp.MustCompile(`(?i)byte\s+(\d+)\s*/\s*(\d+)`)

// ParseProgress reads a M27 reply, "SD printing byte 2134/23544". The idle
// reply "Not SD printing" yields a zero Progress, not an error.
func ParseProgress(raw string) (Progress, error) {
	if strings.Contains(strings.ToLower(raw), "not sd printing") {
		return Progress{}, nil
	}

	m := progressRe.FindStringSubmatch(raw)
	if m == nil {
		return Progress{}, &ParseError{Cmd: cmdProgress, Raw: raw}
	}

	printed, _ := strconv.ParseInt(m[1], 10, 64)
	total, _ := strconv.ParseInt(m[2], 10, 64)

	return Progress{Printing: true, Printed: printed, Total: total}, nil
}

var durationRe = regexp.MustCompile(`(\d+):(\d{2}):(\d{2})`)

// ParseDuration reads a M992 reply, "M992 12:34:56", as elapsed print time.
func ParseDuration(raw string) (time.Duration, error) {
	m := durationRe.FindStringSubmatch(raw)
	if m == nil {
		return 0, &ParseError{Cmd: cmdTime, Raw: raw}
	}

	h, _ := strconv.Atoi(m[1])
	min, _ := strconv.Atoi(m[2])
	s, _ := strconv.Atoi(m[3])

	return time.Duration(h)*time.Hour +
		time.Duration(min)*time.Minute +
		time.Duration(s)*time.Second, nil
}

// ParseFilename reads a M994 reply, "M994 1:/models/benchy.gcode;23544".
// The ";size" suffix is optional.
func ParseFilename(raw string) (PrintingFile, error) {
	s := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(raw), cmdFilename))

	var f PrintingFile
	if semi := strings.LastIndexByte(s, ';'); semi >= 0 {
		f.Size, _ = strconv.ParseInt(s[semi+1:], 10, 64)
		s = s[:semi]
	}

	f.Name = strings.TrimSpace(s)
	if f.Name == "" {
		return PrintingFile{}, &ParseError{Cmd: cmdFilename, Raw: raw}
	}

	return f, nil
}

// ParseState reads a M997 reply, "M997 PRINTING". The state keyword is
// matched field-wise so echo noise around it does not matter.
func ParseState(raw string) (MachineState, error) {
	for _, f := range strings.Fields(raw) {
		switch strings.ToUpper(f) {
		case "IDLE":
			return StateIdle, nil
		case "PRINTING":
			return StatePrinting, nil
		case "PAUSE", "PAUSED":
			return StatePaused, nil
		}
	}

	return 0, &ParseError{Cmd: cmdState, Raw: raw}
}

// ParseAck accepts any reply with a non-empty trimmed body. Firmwares pad
// the bare "ok" with echo noise often enough that matching the token alone
// would be too strict.
func ParseAck(raw string) (Ack, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return Ack{}, &ParseError{Cmd: "ack", Raw: raw}
	}

	return Ack{Raw: s}, nil
}
