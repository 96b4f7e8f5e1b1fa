package fdm

import (
	"bufio"
	"context"
	"errors"
	"log"
	"strings"
	"sync"
	"time"
)

const (
	// DefaultPort is the TCP port the wifi boards listen on.
	DefaultPort = 8080

	// AckToken is appended by the firmware to confirm command receipt.
	AckToken = "ok"

	// DefaultTimeout bounds a single command/reply exchange.
	DefaultTimeout = 5 * time.Second
)

// ackPolicy selects how an exchange decides its reply is complete.
type ackPolicy int

const (
	// stripAck completes on a line carrying the ack token; the token is
	// removed from the returned text. Used by queries whose data arrives
	// inline with the ack.
	stripAck ackPolicy = iota

	// rawAck completes on the first non-blank line, token left intact.
	// Used by side-effecting commands whose whole reply is the ack.
	rawAck
)

// Printer is a client for one printer. It conducts strictly serialized
// command/reply exchanges over a single TCP connection; a second command
// issued while one is waiting for its reply fails with ErrBusy.
type Printer struct {
	address string
	dial    Dialer
	dialect Dialect
	limits  TemperatureLimits
	timeout time.Duration
	verbose bool

	mu        sync.Mutex
	transport Transport
	connected bool
	closing   bool
	busy      bool

	lines      chan string
	readErr    chan error
	readerDone chan struct{}
}

// Option configures a Printer at construction.
type Option func(*Printer)

// WithLimits replaces the default temperature limits.
func WithLimits(l TemperatureLimits) Option {
	return func(p *Printer) { p.limits = l }
}

// WithDialect replaces the default reply grammars.
func WithDialect(d Dialect) Option {
	return func(p *Printer) { p.dialect = d }
}

// WithTimeout replaces the default per-exchange timeout.
func WithTimeout(d time.Duration) Option {
	return func(p *Printer) { p.timeout = d }
}

// WithDialer replaces the TCP dialer, mostly for tests.
func WithDialer(d Dialer) Option {
	return func(p *Printer) { p.dial = d }
}

// WithVerbose toggles logging of wire traffic.
func WithVerbose(v bool) Option {
	return func(p *Printer) { p.verbose = v }
}

// NewPrinter creates a disconnected client for the printer at address
// (host:port). Call Connect before issuing commands.
func NewPrinter(address string, opts ...Option) *Printer {
	p := &Printer{
		address: address,
		dial:    netDial,
		dialect: DefaultDialect,
		limits:  DefaultLimits(),
		timeout: DefaultTimeout,
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// DialPrinter creates a client and connects it. address has to be
// specified with port.
func DialPrinter(address string, opts ...Option) (*Printer, error) {
	p := NewPrinter(address, opts...)

	err := p.Connect(context.Background())
	if err != nil {
		return nil, err
	}

	return p, nil
}

// Address returns the configured printer address.
func (p *Printer) Address() string { return p.address }

// Limits returns the configured temperature limits.
func (p *Printer) Limits() TemperatureLimits { return p.limits }

// IsConnected reports whether the connection is up.
func (p *Printer) IsConnected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connected
}

// Connect opens the connection and starts the reader. Fails with
// ErrAlreadyConnected on a live connection.
func (p *Printer) Connect(ctx context.Context) error {
	p.mu.Lock()
	if p.connected {
		p.mu.Unlock()
		return ErrAlreadyConnected
	}
	p.mu.Unlock()

	tr, err := p.dial(ctx, p.address)
	if err != nil {
		return &ConnectionError{Addr: p.address, Cause: err}
	}

	p.mu.Lock()
	if p.connected {
		p.mu.Unlock()
		tr.Close()
		return ErrAlreadyConnected
	}

	p.transport = tr
	p.connected = true
	p.closing = false
	p.lines = make(chan string, 16)
	p.readErr = make(chan error, 1)
	p.readerDone = make(chan struct{})

	go p.readLoop(tr, p.lines, p.readErr, p.readerDone)
	p.mu.Unlock()

	return nil
}

// Disconnect closes the connection. A command still waiting for its reply
// fails with ErrConnectionClosed. Calling Disconnect on a closed client is
// a no-op.
func (p *Printer) Disconnect() error {
	p.mu.Lock()
	if !p.connected {
		p.mu.Unlock()
		return nil
	}

	p.connected = false
	p.closing = true
	tr := p.transport
	p.transport = nil
	done := p.readerDone
	p.mu.Unlock()

	err := tr.Close()

	// reader exits once the closed transport errors out
	<-done

	if err != nil {
		return &DisconnectionError{Cause: err}
	}

	return nil
}

// readLoop delivers complete lines to the pending exchange. Firmware
// replies may arrive split across reads, so only a \n marks a line as
// complete; a trailing partial chunk is discarded with the connection.
func (p *Printer) readLoop(tr Transport, lines chan string, readErr chan error, done chan struct{}) {
	defer close(done)

	r := bufio.NewReader(tr)
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			p.mu.Lock()
			closing := p.closing
			if p.connected {
				p.connected = false
				if p.transport != nil {
					p.transport.Close()
					p.transport = nil
				}
			}
			p.mu.Unlock()

			if closing {
				err = ErrConnectionClosed
			} else {
				err = &ReceiveError{Cause: err}
			}

			select {
			case readErr <- err:
			default:
			}

			return
		}

		line = strings.TrimRight(line, "\r\n")
		if p.verbose {
			log.Printf("< %s", line)
		}

		select {
		case lines <- line:
		default:
			// nobody waiting and buffer full, drop
		}
	}
}

func hasAckToken(line string) bool {
	for _, f := range strings.Fields(line) {
		if f == AckToken {
			return true
		}
	}

	return false
}

// stripAckField removes the first field equal to the ack token. Matching
// whole fields keeps token-shaped substrings inside payloads intact, like
// the "ok" in a filename "tokyo.gcode".
func stripAckField(line string) string {
	fields := strings.Fields(line)

	for i, f := range fields {
		if f == AckToken {
			return strings.Join(append(fields[:i:i], fields[i+1:]...), " ")
		}
	}

	return line
}

// exchange writes one command line and accumulates reply lines until the
// policy's termination condition is met. It is the single primitive under
// every public operation.
func (p *Printer) exchange(ctx context.Context, cmd string, policy ackPolicy) (string, error) {
	p.mu.Lock()
	if !p.connected {
		p.mu.Unlock()
		return "", ErrNotConnected
	}
	if p.busy {
		p.mu.Unlock()
		return "", ErrBusy
	}

	p.busy = true
	tr := p.transport
	lines, readErr := p.lines, p.readErr
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		p.busy = false
		p.mu.Unlock()
	}()

	// drop stragglers of an earlier timed-out exchange
drain:
	for {
		select {
		case <-lines:
		default:
			break drain
		}
	}

	if p.verbose {
		log.Printf("> %s", cmd)
	}

	_, err := tr.Write([]byte(cmd + "\n"))
	if err != nil {
		return "", &SendError{Cause: err}
	}

	timer := time.NewTimer(p.timeout)
	defer timer.Stop()

	var buf strings.Builder
	for {
		select {
		case line := <-lines:
			switch policy {
			case stripAck:
				done := hasAckToken(line)
				if done {
					line = stripAckField(line)
				}

				if buf.Len() > 0 {
					buf.WriteByte('\n')
				}
				buf.WriteString(line)

				if done {
					return strings.TrimSpace(buf.String()), nil
				}

			case rawAck:
				if strings.TrimSpace(line) != "" {
					return strings.TrimSpace(line), nil
				}
			}

		case err := <-readErr:
			return "", err

		case <-timer.C:
			return "", ErrTimeout

		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return "", ErrTimeout
			}

			return "", ctx.Err()
		}
	}
}

// ackExchange runs a rawAck exchange and parses the reply as a bare ack.
func (p *Printer) ackExchange(ctx context.Context, cmd string) error {
	raw, err := p.exchange(ctx, cmd, rawAck)
	if err != nil {
		return err
	}

	_, err = p.dialect.Ack(raw)

	return err
}

// GetTemperature queries the current and target temperatures of the
// extruder and the heated bed.
func (p *Printer) GetTemperature(ctx context.Context) (Temperature, error) {
	raw, err := p.exchange(ctx, cmdTemperature, stripAck)
	if err != nil {
		return Temperature{}, err
	}

	return p.dialect.Temperature(raw)
}

// GetPrintingProgress queries how far the running SD print has come.
func (p *Printer) GetPrintingProgress(ctx context.Context) (Progress, error) {
	raw, err := p.exchange(ctx, cmdProgress, stripAck)
	if err != nil {
		return Progress{}, err
	}

	return p.dialect.Progress(raw)
}

// GetPrintingTime queries the elapsed time of the running print.
func (p *Printer) GetPrintingTime(ctx context.Context) (time.Duration, error) {
	raw, err := p.exchange(ctx, cmdTime, stripAck)
	if err != nil {
		return 0, err
	}

	return p.dialect.Time(raw)
}

// GetPrintingFilename queries the file name of the running print.
func (p *Printer) GetPrintingFilename(ctx context.Context) (PrintingFile, error) {
	raw, err := p.exchange(ctx, cmdFilename, stripAck)
	if err != nil {
		return PrintingFile{}, err
	}

	return p.dialect.Filename(raw)
}

// GetState queries the machine state.
func (p *Printer) GetState(ctx context.Context) (MachineState, error) {
	raw, err := p.exchange(ctx, cmdState, stripAck)
	if err != nil {
		return 0, err
	}

	return p.dialect.State(raw)
}

// Home homes all axes.
func (p *Printer) Home(ctx context.Context) error {
	return p.ackExchange(ctx, cmdHome)
}

// Abort aborts the running print.
func (p *Printer) Abort(ctx context.Context) error {
	return p.ackExchange(ctx, cmdAbort)
}

// Pause pauses the running print.
func (p *Printer) Pause(ctx context.Context) error {
	return p.ackExchange(ctx, cmdPause)
}

// Resume resumes a paused print.
func (p *Printer) Resume(ctx context.Context) error {
	return p.ackExchange(ctx, cmdResume)
}

// StartFan sets the part cooling fan to speed, 0 to 255.
func (p *Printer) StartFan(ctx context.Context, speed int) error {
	if speed < 0 || speed > 255 {
		return &ValidationError{Param: "speed", Value: float64(speed), Min: 0, Max: 255}
	}

	return p.ackExchange(ctx, fanCommand(speed))
}

// StopFan turns the part cooling fan off.
func (p *Printer) StopFan(ctx context.Context) error {
	return p.ackExchange(ctx, cmdStopFan)
}

// SetExtruderTemperature sets the target temperature of extruder 0 or 1.
// Out-of-range input fails before anything is transmitted.
func (p *Printer) SetExtruderTemperature(ctx context.Context, temp float64, extruder int) error {
	if extruder != 0 && extruder != 1 {
		return &ValidationError{Param: "extruder", Value: float64(extruder), Min: 0, Max: 1}
	}

	if temp < p.limits.ExtruderMin || temp > p.limits.ExtruderMax {
		return &ValidationError{
			Param: "extruder temperature",
			Value: temp,
			Min:   p.limits.ExtruderMin,
			Max:   p.limits.ExtruderMax,
		}
	}

	return p.ackExchange(ctx, extruderTempCommand(temp, extruder))
}

// SetBedTemperature sets the target temperature of the heated bed.
// Out-of-range input fails before anything is transmitted.
func (p *Printer) SetBedTemperature(ctx context.Context, temp float64) error {
	if temp < p.limits.BedMin || temp > p.limits.BedMax {
		return &ValidationError{
			Param: "bed temperature",
			Value: temp,
			Min:   p.limits.BedMin,
			Max:   p.limits.BedMax,
		}
	}

	return p.ackExchange(ctx, bedTempCommand(temp))
}

// SendRawCommand transmits a raw gcode line and returns the trimmed reply,
// ack token included. Escape hatch for commands this library has no typed
// operation for.
func (p *Printer) SendRawCommand(ctx context.Context, line string) (string, error) {
	return p.exchange(ctx, strings.TrimSpace(line), rawAck)
}
