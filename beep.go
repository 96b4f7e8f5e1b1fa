package fdm

import "context"

// Tone is one note for the machine beeper.
type Tone struct {
	Freq int // in Hz
	Dur  int // in ms
}

// Beep plays notes on the machine beeper, one M300 per note. The firmware
// acks each tone after queueing it, so long tunes do not block the
// connection between notes.
func (p *Printer) Beep(ctx context.Context, notes ...Tone) (err error) {
	for i := 0; i < len(notes); i++ {
		err = p.ackExchange(ctx, beepCommand(notes[i].Freq, notes[i].Dur))
		if err != nil {
			return
		}
	}

	return
}
