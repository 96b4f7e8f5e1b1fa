package main

import (
	"flag"
	"net/http"

	"github.com/gorilla/mux"
	"log"
	"time"
)

func main() {
	log.SetFlags(log.Flags() | log.Lshortfile)
	flag.Parse()
	conf := GetConfig()

	// verify DB is valid
	GetDB()

	if !*OptDryRun {
		printer = OpenPrinter()
		StartMonitor(printer)
	}

	gmux := mux.NewRouter()

	gmux.Path("/api/status").
		Methods("GET").
		Handler(ErrorHandlerMiddleware(http.HandlerFunc(handleStatus)))

	gmux.Path("/api/state").
		Methods("GET").
		Handler(ErrorHandlerMiddleware(http.HandlerFunc(handleState)))

	gmux.Path("/api/history").
		Methods("GET").
		Handler(ErrorHandlerMiddleware(http.HandlerFunc(handleHistory)))

	gmux.Path("/api/jobs").
		Methods("GET").
		Handler(ErrorHandlerMiddleware(http.HandlerFunc(handleJobs)))

	gmux.Path("/api/{action:home|pause|resume|abort}").
		Methods("POST").
		Handler(ErrorHandlerMiddleware(http.HandlerFunc(handleAction)))

	gmux.Path("/api/fan").
		Methods("POST").
		Handler(ErrorHandlerMiddleware(http.HandlerFunc(handleFan)))

	gmux.Path("/api/temperature").
		Methods("POST").
		Handler(ErrorHandlerMiddleware(http.HandlerFunc(handleTemperature)))

	gmux.Path("/api/tune").
		Methods("POST").
		Handler(ErrorHandlerMiddleware(http.HandlerFunc(handleTune)))

	gmux.Path("/api/raw").
		Methods("POST").
		Handler(ErrorHandlerMiddleware(http.HandlerFunc(handleRaw)))

	addr := T(*ListenAddr != "", *ListenAddr, conf.Listen)

	if addr == "" {
		addr = "[::]:8090"
	}

	go func() {
		// prevent logging anomaly where it says listening on and then failed to listen&serve
		time.Sleep(time.Millisecond * 500)

		log.Printf("Listening on %s", addr)
	}()

	log.Fatalf("Failed to ListenAndServe: %s",
		http.ListenAndServe(addr, gmux))
}

func T[K any](c bool, a, b K) K {
	if c {
		return a
	}

	return b
}
