// Package dispatch routes inbound packets to their handlers. Handlers are
// the only code that touches the session/room registries, the supervisor,
// and the catalog store; they receive those dependencies by injection.
package dispatch

import (
	"context"
	"encoding/json"
	"net"

	"github.com/rs/zerolog"

	"github.com/parlor-project/parlor/internal/network"
	"github.com/parlor-project/parlor/internal/protocol"
	"github.com/parlor-project/parlor/internal/util"
)

// HandlerFunc processes one inbound packet. Response writing is the
// handler's responsibility; a handler never returns an error across the
// wire except as an {ok:false, msg} payload.
type HandlerFunc func(ctx context.Context, conn *network.Connection, data json.RawMessage)

// DisconnectFunc runs after a connection's read loop exits, for
// session/room cleanup. The peer is gone; nothing is sent.
type DisconnectFunc func(ctx context.Context, conn *network.Connection)

// Dispatcher maps packet types to handlers and runs the per-connection
// read loop. One dispatcher serves one listener; the table is fixed before
// serving starts and never mutated afterwards.
type Dispatcher struct {
	name         string
	handlers     map[protocol.PacketType]HandlerFunc
	onConnect    func(conn *network.Connection)
	onDisconnect DisconnectFunc
	unknownMsg   string
	logger       zerolog.Logger
}

// NewDispatcher creates an empty dispatcher. The name is used for logging
// and the unknown-command error message.
func NewDispatcher(name, unknownMsg string) *Dispatcher {
	return &Dispatcher{
		name:       name,
		handlers:   make(map[protocol.PacketType]HandlerFunc),
		unknownMsg: unknownMsg,
		logger:     util.ComponentLogger("dispatch").With().Str("listener", name).Logger(),
	}
}

// Handle registers the handler for a packet type.
func (d *Dispatcher) Handle(t protocol.PacketType, fn HandlerFunc) {
	d.handlers[t] = fn
}

// OnConnect registers a callback run when a connection's worker starts.
func (d *Dispatcher) OnConnect(fn func(conn *network.Connection)) {
	d.onConnect = fn
}

// OnDisconnect registers the cleanup callback run when a connection's
// worker exits.
func (d *Dispatcher) OnDisconnect(fn DisconnectFunc) {
	d.onDisconnect = fn
}

// ServeConn is the worker loop for one connection: it reads frames until
// the peer closes or a read fails, dispatching each to its handler. A
// malformed frame is fatal for the connection. Implements
// network.ConnHandler.
func (d *Dispatcher) ServeConn(ctx context.Context, conn *network.Connection) {
	logger := d.logger.With().Str("remote", conn.RemoteAddr().String()).Logger()
	logger.Debug().Msg("client worker started")

	if d.onConnect != nil {
		d.onConnect(conn)
	}

	for {
		select {
		case <-ctx.Done():
			logger.Debug().Msg("context cancelled, closing connection")
			d.disconnect(ctx, conn)
			return
		default:
		}

		pkt, err := conn.ReadPacket(0)
		if err != nil {
			if conn.IsClosed() {
				d.disconnect(ctx, conn)
				return
			}
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				continue
			}
			logger.Debug().Err(err).Msg("read failed, client disconnected")
			d.disconnect(ctx, conn)
			return
		}

		d.dispatch(ctx, conn, pkt)
	}
}

// dispatch routes one packet. A handler panic is recovered here and
// converted to an error response; it never takes the worker down.
func (d *Dispatcher) dispatch(ctx context.Context, conn *network.Connection, pkt protocol.Packet) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error().
				Int("type", int(pkt.Type)).
				Interface("panic", r).
				Msg("handler panicked")
			conn.WritePacket(protocol.Error("Internal server error."))
		}
	}()

	handler, ok := d.handlers[pkt.Type]
	if !ok {
		d.logger.Warn().Int("type", int(pkt.Type)).Msg("unknown packet type")
		conn.WritePacket(protocol.Error(d.unknownMsg))
		return
	}

	handler(ctx, conn, pkt.Data)
}

func (d *Dispatcher) disconnect(ctx context.Context, conn *network.Connection) {
	if d.onDisconnect != nil {
		d.onDisconnect(ctx, conn)
	}
}
