package fdm

import "fmt"

// HeaterReading is one actual/target pair from an M105 reply.
type HeaterReading struct {
	Actual float64
	Target float64
}

// Temperature is the parsed result of a M105 query.
type Temperature struct {
	Extruder HeaterReading
	Bed      HeaterReading
}

func (t Temperature) String() string {
	return fmt.Sprintf("T:%g/%g B:%g/%g",
		t.Extruder.Actual, t.Extruder.Target,
		t.Bed.Actual, t.Bed.Target,
	)
}

// Progress is the parsed result of a M27 query. Printed and Total are in
// bytes of the gcode file; Printing is false when no SD print is running.
type Progress struct {
	Printing bool
	Printed  int64
	Total    int64
}

// Percent is in [0, 100]; 0 for an empty or idle job.
func (p Progress) Percent() float64 {
	if p.Total == 0 {
		return 0
	}

	return float64(p.Printed) / float64(p.Total) * 100
}

// PrintingFile is the parsed result of a M994 query. Size is in bytes and
// may be 0 when the firmware does not report it.
type PrintingFile struct {
	Name string
	Size int64
}

// MachineState is the parsed result of a M997 query.
type MachineState int

const (
	StateIdle MachineState = iota
	StatePrinting
	StatePaused
)

func (s MachineState) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StatePrinting:
		return "PRINTING"
	case StatePaused:
		return "PAUSE"
	}

	return fmt.Sprintf("MachineState(%d)", int(s))
}

// Ack is the reply to a pure side-effecting command. Raw keeps the trimmed
// reply text, ack token included.
type Ack struct {
	Raw string
}
