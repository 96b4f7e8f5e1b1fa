package fdm

import "fmt"

// Wire commands of the dialect. Queries reply with data terminated by the
// ack token, actions reply with a bare ack line.
const (
	cmdTemperature = "M105"
	cmdProgress    = "M27"
	cmdTime        = "M992"
	cmdFilename    = "M994"
	cmdState       = "M997"

	cmdHome    = "G28"
	cmdAbort   = "M26"
	cmdPause   = "M25"
	cmdResume  = "M24"
	cmdStopFan = "M107"
)

func fanCommand(speed int) string {
	return fmt.Sprintf("M106 %d", speed)
}

func extruderTempCommand(temp float64, extruder int) string {
	return fmt.Sprintf("M104 T%d S%g", extruder, temp)
}

func bedTempCommand(temp float64) string {
	return fmt.Sprintf("M140 S%g", temp)
}

func beepCommand(freq, dur int) string {
	return fmt.Sprintf("M300 S%d P%d", freq, dur)
}

// TemperatureLimits bound the setpoints accepted by the temperature
// commands. They are checked locally before anything is transmitted and
// are never sent to the printer.
type TemperatureLimits struct {
	ExtruderMin float64
	ExtruderMax float64
	BedMin      float64
	BedMax      float64
}

// DefaultLimits covers PLA through most filaments on a stock hotend.
func DefaultLimits() TemperatureLimits {
	return TemperatureLimits{
		ExtruderMin: 0,
		ExtruderMax: 280,
		BedMin:      0,
		BedMax:      100,
	}
}
