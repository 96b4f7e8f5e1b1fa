package fdm

import (
	"context"
	"io"
	"net"
)

//go:generate go tool mockgen -destination mocks/mock_transport.go -package mocks github.com/rileys-trash-can/libfdm Transport

// Transport is the duplex byte stream the client drives. The real thing is
// a net.Conn; tests substitute pipes or mocks. The stream delivers bytes in
// order with no framing, the client does its own line accumulation.
type Transport interface {
	io.Reader
	io.Writer
	io.Closer
}

// Dialer opens a Transport to a printer address.
type Dialer func(ctx context.Context, address string) (Transport, error)

func netDial(ctx context.Context, address string) (Transport, error) {
	var d net.Dialer

	conn, err := d.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, err
	}

	return conn, nil
}
