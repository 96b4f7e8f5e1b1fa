package main

import (
	"bytes"
	"context"
	"io"
	"log"
	"math"

	"github.com/go-audio/midi"
	"github.com/rileys-trash-can/libfdm"
)

// PlayTune converts the longest track of a midi file to beeper tones and
// plays it on the printer. Only note-on events count; the tone length is
// the delta time until the matching note-off.
func PlayTune(ctx context.Context, p *fdm.Printer, r io.Reader) error {
	b, err := io.ReadAll(r)
	if err != nil {
		return err
	}

	d := midi.NewDecoder(bytes.NewReader(b))

	err = d.Decode()
	if err != nil {
		return err
	}

	var track *midi.Track
	var length int

	for _, t := range d.Tracks {
		if len(t.Events) > length {
			length = len(t.Events)
			track = t
		}
	}

	if track == nil {
		return nil
	}

	if *OptVerbose {
		log.Printf("playing longest track with %d events", len(track.Events))
	}

	const off = 0x8
	const on = 0x9

	var notes []fdm.Tone

	for i := 0; i < len(track.Events); i++ {
		e := track.Events[i]

		if e.MsgType != on {
			continue
		}

		note := e.Note

		var notelen uint32
		for ii := i; ii < len(track.Events); ii++ {
			notelen += track.Events[ii].TimeDelta

			if track.Events[ii].Note == note && track.Events[ii].MsgType == off {
				break
			}
		}

		notes = append(notes, fdm.Tone{
			Freq: int(440 * math.Pow(2, (float64(note)-69)/12)),
			Dur:  int(notelen),
		})
	}

	return p.Beep(ctx, notes...)
}
