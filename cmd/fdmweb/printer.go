package main

import (
	"context"
	"log"

	"github.com/rileys-trash-can/libfdm"
)

var printer *fdm.Printer

func OpenPrinter() *fdm.Printer {
	conf := GetConfig()

	addr := T(*PrinterAddress != "", *PrinterAddress, conf.Printer)
	if addr == "" {
		log.Fatalf("No printer specified; use -printer, FDM_PRINTER or printer.addr")
	}

	log.Printf("Dialing %s", addr)
	p, err := fdm.DialPrinter(addr,
		fdm.WithLimits(conf.Limits()),
		fdm.WithVerbose(*OptVerbose),
	)
	if err != nil {
		log.Fatalf("Printer %s", err)
	}

	if *OptBeep {
		err := p.Beep(context.Background(),
			fdm.Tone{Freq: 850, Dur: 200},
			fdm.Tone{Freq: 950, Dur: 200},
		)
		if err != nil {
			log.Fatalf("Failed to communicate with printer: Beep: %s", err)
		}
	}

	return p
}
