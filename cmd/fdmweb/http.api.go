package main

import (
	"net/http"

	"encoding/json"
	"errors"
	"github.com/gorilla/mux"
	"io"
	"strconv"

	"github.com/rileys-trash-can/libfdm"
)

// requirePrinter panics into the error middleware when running -dry-run.
func requirePrinter() *fdm.Printer {
	if printer == nil {
		panic("no printer connected (dry-run)")
	}

	return printer
}

// apiError maps client errors to proper status codes; everything else
// panics into the 500 middleware.
func apiError(w http.ResponseWriter, err error) {
	var verr *fdm.ValidationError
	switch {
	case errors.As(err, &verr):
		w.WriteHeader(http.StatusBadRequest)

	case errors.Is(err, fdm.ErrBusy):
		w.WriteHeader(http.StatusServiceUnavailable)

	default:
		panic(err)
	}

	json.NewEncoder(w).Encode(&ErrorRes{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, v any) {
	err := json.NewEncoder(w).Encode(v)
	if err != nil {
		panic(err)
	}
}

func handleStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	requirePrinter()

	snap := GetSnapshot()
	if snap == nil {
		panic("no poll data yet")
	}

	writeJSON(w, snap)
}

func handleState(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	p := requirePrinter()

	state, err := p.GetState(r.Context())
	if err != nil {
		apiError(w, err)
		return
	}

	writeJSON(w, map[string]string{"state": state.String()})
}

func handleAction(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	p := requirePrinter()

	var err error
	switch mux.Vars(r)["action"] {
	case "home":
		err = p.Home(r.Context())
	case "pause":
		err = p.Pause(r.Context())
	case "resume":
		err = p.Resume(r.Context())
	case "abort":
		err = p.Abort(r.Context())
	default:
		panic("unknown action")
	}

	if err != nil {
		apiError(w, err)
		return
	}

	writeJSON(w, map[string]bool{"ok": true})
}

// POST /api/fan?speed=0..255 or speed=off
func handleFan(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	p := requirePrinter()

	speedstr := r.URL.Query().Get("speed")
	if speedstr == "" {
		panic("missing speed")
	}

	var err error
	if speedstr == "off" {
		err = p.StopFan(r.Context())
	} else {
		speed, perr := strconv.Atoi(speedstr)
		if perr != nil {
			panic(perr)
		}

		err = p.StartFan(r.Context(), speed)
	}

	if err != nil {
		apiError(w, err)
		return
	}

	writeJSON(w, map[string]bool{"ok": true})
}

// POST /api/temperature?target=extruder&e=0&s=205.5
// POST /api/temperature?target=bed&s=60
func handleTemperature(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	p := requirePrinter()

	q := r.URL.Query()

	temp, perr := strconv.ParseFloat(q.Get("s"), 64)
	if perr != nil {
		panic(perr)
	}

	var err error
	switch q.Get("target") {
	case "extruder":
		extruder := 0
		if estr := q.Get("e"); estr != "" {
			extruder, perr = strconv.Atoi(estr)
			if perr != nil {
				panic(perr)
			}
		}

		err = p.SetExtruderTemperature(r.Context(), temp, extruder)

	case "bed":
		err = p.SetBedTemperature(r.Context(), temp)

	default:
		panic("target has to be 'extruder' or 'bed'")
	}

	if err != nil {
		apiError(w, err)
		return
	}

	writeJSON(w, map[string]bool{"ok": true})
}

func handleHistory(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	q := r.URL.Query()

	var (
		offset uint64
		limit  uint64 = 100
		err    error
	)

	if s := q.Get("offset"); s != "" {
		offset, err = strconv.ParseUint(s, 10, 31)
		if err != nil {
			panic(err)
		}
	}

	if s := q.Get("limit"); s != "" {
		limit, err = strconv.ParseUint(s, 10, 31)
		if err != nil {
			panic(err)
		}
	}

	if limit > 1000 {
		panic("Invalid limit; limit > 1000")
	}

	var samples []TelemetrySample
	GetDB().Model(&TelemetrySample{}).
		Order("id desc").
		Offset(int(offset)).
		Limit(int(limit)).
		Find(&samples)

	writeJSON(w, samples)
}

func handleJobs(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	var jobs []JobRecord
	GetDB().Model(&JobRecord{}).
		Order("started_at desc").
		Limit(100).
		Find(&jobs)

	writeJSON(w, jobs)
}

// POST /api/tune with a midi file as body
func handleTune(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	p := requirePrinter()

	err := PlayTune(r.Context(), p, r.Body)
	if err != nil {
		apiError(w, err)
		return
	}

	writeJSON(w, map[string]bool{"ok": true})
}

// POST /api/raw with one gcode line as body; for debugging dialects
func handleRaw(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	p := requirePrinter()

	line, err := io.ReadAll(io.LimitReader(r.Body, 256))
	if err != nil {
		panic(err)
	}

	reply, err := p.SendRawCommand(r.Context(), string(line))
	if err != nil {
		apiError(w, err)
		return
	}

	writeJSON(w, map[string]string{"reply": reply})
}
