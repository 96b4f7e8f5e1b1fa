// Package webconnect is a thin client for the fdmweb HTTP API.
package webconnect

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// Status mirrors fdmweb's snapshot JSON.
type Status struct {
	At    time.Time `json:"at"`
	State string    `json:"state"`

	Temperature struct {
		Extruder struct {
			Actual float64
			Target float64
		}
		Bed struct {
			Actual float64
			Target float64
		}
	} `json:"temperature"`

	Progress struct {
		Printing bool
		Printed  int64
		Total    int64
	} `json:"progress"`

	Job *uuid.UUID `json:"job"`
}

// Job mirrors fdmweb's job record JSON.
type Job struct {
	UUID uuid.UUID `json:"uuid"`

	Filename   string     `json:"filename"`
	StartedAt  time.Time  `json:"startedAt"`
	FinishedAt *time.Time `json:"finishedAt"`
	Result     string     `json:"result"`
}

// Sample mirrors fdmweb's telemetry JSON.
type Sample struct {
	ID uint      `json:"id"`
	At time.Time `json:"at"`

	ExtruderActual float64 `json:"extruderActual"`
	ExtruderTarget float64 `json:"extruderTarget"`
	BedActual      float64 `json:"bedActual"`
	BedTarget      float64 `json:"bedTarget"`

	State   string `json:"state"`
	Printed int64  `json:"printed"`
	Total   int64  `json:"total"`
}

type errorRes struct {
	Error string `json:"error"`
}

// apiURL builds host + /api/<parts>. host should only be the host,
// protocol and additional path part.
func apiURL(host string, parts ...string) (*url.URL, error) {
	partl, err := url.Parse(host)
	if err != nil {
		return nil, err
	}

	u := (&url.URL{
		Scheme: partl.Scheme,
		User:   partl.User,
		Host:   partl.Host,
		Path:   partl.Path,
	}).JoinPath(append([]string{"api"}, parts...)...)

	return u, nil
}

func decode(res *http.Response, v any) error {
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		var er errorRes
		if json.NewDecoder(res.Body).Decode(&er) == nil && er.Error != "" {
			return fmt.Errorf("fdmweb: %s", er.Error)
		}

		return fmt.Errorf("fdmweb: unexpected status %s", res.Status)
	}

	if v == nil {
		return nil
	}

	return json.NewDecoder(res.Body).Decode(v)
}

func get(host string, v any, parts ...string) error {
	u, err := apiURL(host, parts...)
	if err != nil {
		return err
	}

	res, err := http.Get(u.String())
	if err != nil {
		return err
	}

	return decode(res, v)
}

func post(host string, q url.Values, parts ...string) error {
	u, err := apiURL(host, parts...)
	if err != nil {
		return err
	}

	if q != nil {
		u.RawQuery = q.Encode()
	}

	res, err := http.Post(u.String(), "application/json", nil)
	if err != nil {
		return err
	}

	return decode(res, nil)
}

// GetStatus fetches the latest printer snapshot from host.
func GetStatus(host string) (*Status, error) {
	s := new(Status)

	err := get(host, s, "status")
	if err != nil {
		return nil, err
	}

	return s, nil
}

// GetJobs fetches the most recent print jobs.
func GetJobs(host string) (jobs []Job, err error) {
	err = get(host, &jobs, "jobs")

	return
}

// GetHistory fetches telemetry samples, newest first.
func GetHistory(host string, offset, limit int) (samples []Sample, err error) {
	u, err := apiURL(host, "history")
	if err != nil {
		return
	}

	u.RawQuery = url.Values{
		"offset": []string{strconv.Itoa(offset)},
		"limit":  []string{strconv.Itoa(limit)},
	}.Encode()

	res, err := http.Get(u.String())
	if err != nil {
		return
	}

	err = decode(res, &samples)

	return
}

func Home(host string) error   { return post(host, nil, "home") }
func Pause(host string) error  { return post(host, nil, "pause") }
func Resume(host string) error { return post(host, nil, "resume") }
func Abort(host string) error  { return post(host, nil, "abort") }

// SetFan sets the part cooling fan, speed 0 to 255.
func SetFan(host string, speed int) error {
	return post(host, url.Values{"speed": []string{strconv.Itoa(speed)}}, "fan")
}

// StopFan turns the part cooling fan off.
func StopFan(host string) error {
	return post(host, url.Values{"speed": []string{"off"}}, "fan")
}

// SetExtruderTemperature sets the target temperature of an extruder.
func SetExtruderTemperature(host string, temp float64, extruder int) error {
	return post(host, url.Values{
		"target": []string{"extruder"},
		"e":      []string{strconv.Itoa(extruder)},
		"s":      []string{strconv.FormatFloat(temp, 'f', -1, 64)},
	}, "temperature")
}

// SetBedTemperature sets the target temperature of the heated bed.
func SetBedTemperature(host string, temp float64) error {
	return post(host, url.Values{
		"target": []string{"bed"},
		"s":      []string{strconv.FormatFloat(temp, 'f', -1, 64)},
	}, "temperature")
}
