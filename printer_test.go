package fdm

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/rileys-trash-can/libfdm/mocks"
	"go.uber.org/mock/gomock"
)

// pipePrinter returns a connected client whose transport is one end of a
// net.Pipe; the test plays firmware on the other end.
func pipePrinter(t *testing.T, opts ...Option) (*Printer, net.Conn) {
	t.Helper()

	client, server := net.Pipe()

	opts = append([]Option{
		WithDialer(func(ctx context.Context, address string) (Transport, error) {
			return client, nil
		}),
	}, opts...)

	p := NewPrinter("pipe", opts...)
	if err := p.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %s", err)
	}

	t.Cleanup(func() {
		p.Disconnect()
		server.Close()
	})

	return p, server
}

// serveOnce reads one command line off the firmware end, checks it, and
// writes back reply verbatim. The returned channel closes once the command
// was received.
func serveOnce(t *testing.T, server net.Conn, wantCmd, reply string) <-chan struct{} {
	t.Helper()

	received := make(chan struct{})

	go func() {
		br := bufio.NewReader(server)

		line, err := br.ReadString('\n')
		if err != nil {
			t.Errorf("firmware read: %s", err)
			return
		}

		if got := strings.TrimRight(line, "\n"); got != wantCmd {
			t.Errorf("printer got command %q, want %q", got, wantCmd)
		}
		close(received)

		if reply != "" {
			server.Write([]byte(reply))
		}
	}()

	return received
}

func TestGetTemperature(t *testing.T) {
	p, server := pipePrinter(t)
	serveOnce(t, server, "M105", "ok T:200.0/200.0 B:60.0/60.0\n")

	got, err := p.GetTemperature(context.Background())
	if err != nil {
		t.Fatalf("GetTemperature: %s", err)
	}

	want := Temperature{Extruder: HeaterReading{200, 200}, Bed: HeaterReading{60, 60}}
	if got != want {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

func TestGetTemperatureParseError(t *testing.T) {
	p, server := pipePrinter(t)
	serveOnce(t, server, "M105", "ok wait\n")

	_, err := p.GetTemperature(context.Background())

	var perr *ParseError
	if !errors.As(err, &perr) {
		t.Fatalf("got %v, want ParseError", err)
	}
}

// A reply split across transport reads must not complete the exchange
// before its line terminator arrives.
func TestReplySplitAcrossReads(t *testing.T) {
	p, server := pipePrinter(t)

	go func() {
		br := bufio.NewReader(server)
		if _, err := br.ReadString('\n'); err != nil {
			t.Errorf("firmware read: %s", err)
			return
		}

		server.Write([]byte("ok T:210.5/2"))
		time.Sleep(20 * time.Millisecond)
		server.Write([]byte("10.0 B:60.0/60.0\n"))
	}()

	got, err := p.GetTemperature(context.Background())
	if err != nil {
		t.Fatalf("GetTemperature: %s", err)
	}

	want := Temperature{Extruder: HeaterReading{210.5, 210}, Bed: HeaterReading{60, 60}}
	if got != want {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

// Noise lines before the ack line are accumulated, not returned early.
func TestStripAckAccumulatesUntilToken(t *testing.T) {
	p, server := pipePrinter(t)
	serveOnce(t, server, "M997", "echo:busy\nM997 IDLE ok\n")

	got, err := p.GetState(context.Background())
	if err != nil {
		t.Fatalf("GetState: %s", err)
	}

	if got != StateIdle {
		t.Errorf("got %s, want %s", got, StateIdle)
	}
}

// Only a whole "ok" field is the ack; an "ok" inside a payload word must
// survive the strip.
func TestStripAckKeepsTokenLikePayload(t *testing.T) {
	p, server := pipePrinter(t)
	serveOnce(t, server, "M994", "M994 1:/tokyo.gcode;2048 ok\n")

	got, err := p.GetPrintingFilename(context.Background())
	if err != nil {
		t.Fatalf("GetPrintingFilename: %s", err)
	}

	want := PrintingFile{Name: "1:/tokyo.gcode", Size: 2048}
	if got != want {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

func TestQueries(t *testing.T) {
	tests := []struct {
		name    string
		wantCmd string
		reply   string
		op      func(context.Context, *Printer) error
	}{
		{
			"progress", "M27", "ok SD printing byte 100/1000\n",
			func(ctx context.Context, p *Printer) error {
				got, err := p.GetPrintingProgress(ctx)
				if err != nil {
					return err
				}
				if got.Printed != 100 || got.Total != 1000 || !got.Printing {
					t.Errorf("progress %+v", got)
				}
				return nil
			},
		},
		{
			"time", "M992", "M992 1:02:03 ok\n",
			func(ctx context.Context, p *Printer) error {
				got, err := p.GetPrintingTime(ctx)
				if err != nil {
					return err
				}
				if want := time.Hour + 2*time.Minute + 3*time.Second; got != want {
					t.Errorf("time %s, want %s", got, want)
				}
				return nil
			},
		},
		{
			"filename", "M994", "M994 1:/benchy.gcode;2048 ok\n",
			func(ctx context.Context, p *Printer) error {
				got, err := p.GetPrintingFilename(ctx)
				if err != nil {
					return err
				}
				if got.Name != "1:/benchy.gcode" || got.Size != 2048 {
					t.Errorf("filename %+v", got)
				}
				return nil
			},
		},
		{
			"state", "M997", "M997 PRINTING ok\n",
			func(ctx context.Context, p *Printer) error {
				got, err := p.GetState(ctx)
				if err != nil {
					return err
				}
				if got != StatePrinting {
					t.Errorf("state %s, want %s", got, StatePrinting)
				}
				return nil
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, server := pipePrinter(t)
			serveOnce(t, server, tt.wantCmd, tt.reply)

			if err := tt.op(context.Background(), p); err != nil {
				t.Fatalf("unexpected error: %s", err)
			}
		})
	}
}

// Every side-effecting command succeeds on a bare "ok" reply.
func TestActionsAckRoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		wantCmd string
		op      func(*Printer, context.Context) error
	}{
		{"home", "G28", (*Printer).Home},
		{"abort", "M26", (*Printer).Abort},
		{"pause", "M25", (*Printer).Pause},
		{"resume", "M24", (*Printer).Resume},
		{"stop fan", "M107", (*Printer).StopFan},
		{"start fan", "M106 128", func(p *Printer, ctx context.Context) error {
			return p.StartFan(ctx, 128)
		}},
		{"extruder temp", "M104 T1 S205.5", func(p *Printer, ctx context.Context) error {
			return p.SetExtruderTemperature(ctx, 205.5, 1)
		}},
		{"bed temp", "M140 S60", func(p *Printer, ctx context.Context) error {
			return p.SetBedTemperature(ctx, 60)
		}},
		{"beep", "M300 S850 P200", func(p *Printer, ctx context.Context) error {
			return p.Beep(ctx, Tone{Freq: 850, Dur: 200})
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, server := pipePrinter(t)
			serveOnce(t, server, tt.wantCmd, "ok\n")

			if err := tt.op(p, context.Background()); err != nil {
				t.Fatalf("unexpected error: %s", err)
			}
		})
	}
}

func TestBeepSendsEveryNote(t *testing.T) {
	p, server := pipePrinter(t)

	go func() {
		br := bufio.NewReader(server)
		for _, want := range []string{"M300 S850 P200", "M300 S950 P200"} {
			line, err := br.ReadString('\n')
			if err != nil {
				t.Errorf("firmware read: %s", err)
				return
			}
			if got := strings.TrimRight(line, "\n"); got != want {
				t.Errorf("got %q, want %q", got, want)
			}
			server.Write([]byte("ok\n"))
		}
	}()

	err := p.Beep(context.Background(), Tone{850, 200}, Tone{950, 200})
	if err != nil {
		t.Fatalf("Beep: %s", err)
	}
}

// Out-of-range parameters must fail before a single byte reaches the
// transport. The mock has no Write expectation, so any transmission fails
// the test.
func TestValidationSendsNothing(t *testing.T) {
	tests := []struct {
		name string
		op   func(context.Context, *Printer) error
	}{
		{"fan speed low", func(ctx context.Context, p *Printer) error {
			return p.StartFan(ctx, -1)
		}},
		{"fan speed high", func(ctx context.Context, p *Printer) error {
			return p.StartFan(ctx, 256)
		}},
		{"extruder too hot", func(ctx context.Context, p *Printer) error {
			return p.SetExtruderTemperature(ctx, 300, 0)
		}},
		{"extruder too cold", func(ctx context.Context, p *Printer) error {
			return p.SetExtruderTemperature(ctx, -5, 0)
		}},
		{"extruder index", func(ctx context.Context, p *Printer) error {
			return p.SetExtruderTemperature(ctx, 200, 2)
		}},
		{"bed too hot", func(ctx context.Context, p *Printer) error {
			return p.SetBedTemperature(ctx, 150)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			tr := mocks.NewMockTransport(ctrl)

			closed := make(chan struct{})
			tr.EXPECT().Read(gomock.Any()).DoAndReturn(func([]byte) (int, error) {
				<-closed
				return 0, io.EOF
			}).AnyTimes()
			tr.EXPECT().Close().DoAndReturn(func() error {
				close(closed)
				return nil
			})

			p := NewPrinter("mock", WithDialer(func(ctx context.Context, address string) (Transport, error) {
				return tr, nil
			}))
			if err := p.Connect(context.Background()); err != nil {
				t.Fatalf("Connect: %s", err)
			}

			err := tt.op(context.Background(), p)

			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("got %v, want ValidationError", err)
			}

			if err := p.Disconnect(); err != nil {
				t.Fatalf("Disconnect: %s", err)
			}
		})
	}
}

// A second command while one is waiting for its reply fails fast and does
// not disturb the pending exchange.
func TestBusy(t *testing.T) {
	p, server := pipePrinter(t)

	received := make(chan struct{})
	rejected := make(chan struct{})
	go func() {
		br := bufio.NewReader(server)
		if _, err := br.ReadString('\n'); err != nil {
			t.Errorf("firmware read: %s", err)
			return
		}
		close(received)

		// hold the reply until the second command was rejected
		<-rejected
		server.Write([]byte("ok T:25.0/0.0 B:25.0/0.0\n"))
	}()

	errCh := make(chan error, 1)
	tempCh := make(chan Temperature, 1)
	go func() {
		temp, err := p.GetTemperature(context.Background())
		tempCh <- temp
		errCh <- err
	}()

	<-received

	if err := p.Home(context.Background()); !errors.Is(err, ErrBusy) {
		t.Errorf("second command got %v, want ErrBusy", err)
	}
	close(rejected)

	if err := <-errCh; err != nil {
		t.Fatalf("pending exchange failed: %s", err)
	}

	if temp := <-tempCh; temp.Extruder.Actual != 25 {
		t.Errorf("pending exchange reply corrupted: %+v", temp)
	}
}

func TestTimeout(t *testing.T) {
	p, server := pipePrinter(t, WithTimeout(50*time.Millisecond))

	br := bufio.NewReader(server)
	go func() {
		// swallow the command, never reply
		br.ReadString('\n')
	}()

	_, err := p.GetState(context.Background())
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("got %v, want ErrTimeout", err)
	}

	// the client is idle again and the next exchange works
	go func() {
		if _, err := br.ReadString('\n'); err != nil {
			t.Errorf("firmware read: %s", err)
			return
		}
		server.Write([]byte("M997 IDLE ok\n"))
	}()

	got, err := p.GetState(context.Background())
	if err != nil {
		t.Fatalf("GetState after timeout: %s", err)
	}
	if got != StateIdle {
		t.Errorf("got %s, want %s", got, StateIdle)
	}
}

// A context deadline fails the exchange like the built-in timeout does.
func TestContextDeadline(t *testing.T) {
	p, server := pipePrinter(t)

	go func() {
		// swallow the command, never reply
		bufio.NewReader(server).ReadString('\n')
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := p.GetState(ctx)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("got %v, want ErrTimeout", err)
	}
}

func TestDisconnectFailsPendingExchange(t *testing.T) {
	p, server := pipePrinter(t)

	received := serveOnce(t, server, "G28", "")

	errCh := make(chan error, 1)
	go func() {
		errCh <- p.Home(context.Background())
	}()

	<-received

	if err := p.Disconnect(); err != nil {
		t.Fatalf("Disconnect: %s", err)
	}

	if err := <-errCh; !errors.Is(err, ErrConnectionClosed) {
		t.Errorf("pending exchange got %v, want ErrConnectionClosed", err)
	}
}

func TestTransportFaultDuringExchange(t *testing.T) {
	p, server := pipePrinter(t)

	received := serveOnce(t, server, "M105", "")

	errCh := make(chan error, 1)
	go func() {
		_, err := p.GetTemperature(context.Background())
		errCh <- err
	}()

	<-received
	server.Close()

	var rerr *ReceiveError
	if err := <-errCh; !errors.As(err, &rerr) {
		t.Errorf("got %v, want ReceiveError", err)
	}

	if p.IsConnected() {
		t.Error("client still connected after transport fault")
	}
}

func TestTransportWriteFault(t *testing.T) {
	ctrl := gomock.NewController(t)
	tr := mocks.NewMockTransport(ctrl)

	closed := make(chan struct{})
	tr.EXPECT().Read(gomock.Any()).DoAndReturn(func([]byte) (int, error) {
		<-closed
		return 0, io.EOF
	}).AnyTimes()
	tr.EXPECT().Write(gomock.Any()).Return(0, io.ErrClosedPipe)
	tr.EXPECT().Close().DoAndReturn(func() error {
		close(closed)
		return nil
	})

	p := NewPrinter("mock", WithDialer(func(ctx context.Context, address string) (Transport, error) {
		return tr, nil
	}))
	if err := p.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %s", err)
	}

	_, err := p.GetTemperature(context.Background())

	var serr *SendError
	if !errors.As(err, &serr) {
		t.Fatalf("got %v, want SendError", err)
	}

	if err := p.Disconnect(); err != nil {
		t.Fatalf("Disconnect: %s", err)
	}
}

func TestConnectionLifecycle(t *testing.T) {
	p, _ := pipePrinter(t)

	if !p.IsConnected() {
		t.Fatal("not connected after Connect")
	}

	if err := p.Connect(context.Background()); !errors.Is(err, ErrAlreadyConnected) {
		t.Errorf("second Connect got %v, want ErrAlreadyConnected", err)
	}

	if err := p.Disconnect(); err != nil {
		t.Fatalf("Disconnect: %s", err)
	}

	// idempotent
	if err := p.Disconnect(); err != nil {
		t.Errorf("second Disconnect got %v, want nil", err)
	}

	if _, err := p.GetState(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("command on closed client got %v, want ErrNotConnected", err)
	}
}

func TestDialPrinterConnectError(t *testing.T) {
	_, err := DialPrinter("127.0.0.1:1", WithDialer(func(ctx context.Context, address string) (Transport, error) {
		return nil, io.ErrClosedPipe
	}))

	var cerr *ConnectionError
	if !errors.As(err, &cerr) {
		t.Fatalf("got %v, want ConnectionError", err)
	}
}
