package main

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/rileys-trash-can/libfdm"
)

var getSnapshotCh = make(chan chan *Snapshot, 1)

// Snapshot is the latest polled state of the printer.
type Snapshot struct {
	At    time.Time `json:"at"`
	State string    `json:"state"`

	Temperature fdm.Temperature `json:"temperature"`
	Progress    fdm.Progress    `json:"progress"`

	Job *uuid.UUID `json:"job"`
}

// GetSnapshot returns the latest snapshot, nil before the first
// successful poll.
func GetSnapshot() *Snapshot {
	res := make(chan *Snapshot)
	getSnapshotCh <- res

	return <-res
}

func StartMonitor(p *fdm.Printer) {
	go goMonitor(p)
}

// goMonitor owns the poll loop and the snapshot; requests for the
// snapshot go through getSnapshotCh so there is no shared state.
func goMonitor(p *fdm.Printer) {
	conf := GetConfig()

	interval := time.Duration(conf.PollSeconds) * time.Second
	if interval == 0 {
		interval = 10 * time.Second
	}

	tick := time.NewTicker(interval)
	defer tick.Stop()

	var latest *Snapshot
	var job *JobRecord

	latest, job = poll(p, job)

	for {
		select {
		case <-tick.C:
			var s *Snapshot
			s, job = poll(p, job)
			if s != nil {
				latest = s
			}

		case res := <-getSnapshotCh:
			res <- latest
		}
	}
}

// poll runs the three status queries, persists a telemetry sample and
// keeps the job bookkeeping. Returns nil when the printer was not
// reachable this round.
func poll(p *fdm.Printer, job *JobRecord) (*Snapshot, *JobRecord) {
	ctx := context.Background()

	temp, err := p.GetTemperature(ctx)
	if err != nil {
		log.Printf("poll: temperature: %s", err)
		return nil, job
	}

	state, err := p.GetState(ctx)
	if err != nil {
		log.Printf("poll: state: %s", err)
		return nil, job
	}

	prog, err := p.GetPrintingProgress(ctx)
	if err != nil {
		log.Printf("poll: progress: %s", err)
		return nil, job
	}

	s := &Snapshot{
		At:          time.Now(),
		State:       state.String(),
		Temperature: temp,
		Progress:    prog,
	}

	GetDB().Create(&TelemetrySample{
		At:             s.At,
		ExtruderActual: temp.Extruder.Actual,
		ExtruderTarget: temp.Extruder.Target,
		BedActual:      temp.Bed.Actual,
		BedTarget:      temp.Bed.Target,
		State:          s.State,
		Printed:        prog.Printed,
		Total:          prog.Total,
	})

	switch {
	case state == fdm.StatePrinting && job == nil:
		job = &JobRecord{
			UUID:      uuid.New(),
			StartedAt: s.At,
			Result:    "printing",
		}

		if file, err := p.GetPrintingFilename(ctx); err != nil {
			log.Printf("poll: filename: %s", err)
		} else {
			job.Filename = file.Name
		}

		log.Printf("job %s started: %s", job.UUID, job.Filename)
		GetDB().Create(job)

	case state == fdm.StateIdle && job != nil:
		now := s.At
		job.FinishedAt = &now
		job.Result = "done"
		GetDB().Save(job)

		log.Printf("job %s finished", job.UUID)
		job = nil
	}

	if job != nil {
		s.Job = &job.UUID
	}

	return s, job
}
