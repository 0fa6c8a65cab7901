package network

import (
	"context"
	"fmt"
	"net"

	"github.com/rs/zerolog/log"
)

// ConnHandler processes a single accepted connection. It owns all reads on
// the connection and returns when the peer disconnects; the listener closes
// the connection afterwards.
type ConnHandler func(ctx context.Context, conn *Connection)

// TCPListener accepts client connections on one port and hands each to a
// dedicated worker goroutine. The accept loop never blocks on any
// individual connection's traffic.
type TCPListener struct {
	name     string
	addr     string
	handler  ConnHandler
	listener net.Listener
}

// NewTCPListener creates a listener bound to the given address once Start
// is called. The name is used only for logging.
func NewTCPListener(name, addr string, handler ConnHandler) *TCPListener {
	return &TCPListener{
		name:    name,
		addr:    addr,
		handler: handler,
	}
}

// Start begins accepting connections. Blocks until the context is cancelled
// or the listener fails.
func (l *TCPListener) Start(ctx context.Context) error {
	// SO_REUSEADDR allows immediate rebinding after an unclean exit.
	lc := ReuseAddrListenConfig()
	var err error
	l.listener, err = lc.Listen(ctx, "tcp", l.addr)
	if err != nil {
		return fmt.Errorf("failed to start %s listener on %s: %w", l.name, l.addr, err)
	}

	log.Info().Str("listener", l.name).Str("addr", l.addr).Msg("TCP listener started")

	go func() {
		<-ctx.Done()
		l.listener.Close()
	}()

	for {
		raw, err := l.listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				log.Info().Str("listener", l.name).Msg("TCP listener stopping")
				return nil
			default:
				log.Error().Err(err).Str("listener", l.name).Msg("failed to accept connection")
				continue
			}
		}

		log.Debug().
			Str("listener", l.name).
			Str("remote", raw.RemoteAddr().String()).
			Msg("new client connection")

		conn := NewConnection(raw)
		go func() {
			defer conn.Close()
			l.handler(ctx, conn)
		}()
	}
}

// Stop closes the listening socket.
func (l *TCPListener) Stop() error {
	if l.listener != nil {
		return l.listener.Close()
	}
	return nil
}
