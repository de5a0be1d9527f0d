package broadcast

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"

	"github.com/alecbass/jdp-htmx-chat/internal/metrics"
)

const (
	commandTimeout = 5 * time.Second  // actor command timeout
	stopTimeout    = 10 * time.Second // graceful shutdown timeout
)

// hubCmd is the command interface for the Hub actor.
type hubCmd interface{ isHubCmd() }

type baseHubCmd struct{}

func (baseHubCmd) isHubCmd() {}

type registerCmd struct {
	baseHubCmd
	connection   *websocket.Conn
	errorChannel chan error
}

type unregisterCmd struct {
	baseHubCmd
	connection *websocket.Conn
}

type broadcastCmd struct {
	baseHubCmd
	payload []byte
}

type clientCountCmd struct {
	baseHubCmd
	replyChannel chan int
}

type stopCmd struct {
	baseHubCmd
}

// client is one registered live connection and its write goroutine.
type client struct {
	connection *websocket.Conn
	writer     *clientWriter
}

// Hub owns all live connections. Registration order is preserved so every
// broadcast fans out in the order connections were accepted. All state is
// confined to the actor goroutine; Register and Broadcast from any number
// of request goroutines are serialized through the command channel.
type Hub struct {
	cmdCh          chan hubCmd
	clock          clockwork.Clock
	clients        []*client
	byConn         map[*websocket.Conn]*client
	greeting       []byte
	maxConnections int
	done           chan struct{}
	stopTimeout    time.Duration
}

// NewHub creates and starts a hub.
// greeting is sent once to every connection immediately after registration.
// maxConnections caps registered connections; zero means unlimited.
func NewHub(clock clockwork.Clock, greeting []byte, maxConnections int) *Hub {
	h := &Hub{
		cmdCh:          make(chan hubCmd, 256),
		clock:          clock,
		byConn:         make(map[*websocket.Conn]*client),
		greeting:       greeting,
		maxConnections: maxConnections,
		done:           make(chan struct{}),
		stopTimeout:    stopTimeout,
	}
	go h.run()
	return h
}

// Register adds a live connection and starts its write goroutine.
// Returns an error only if the connection cap is reached.
func (h *Hub) Register(conn *websocket.Conn) error {
	errCh := make(chan error, 1)
	h.cmdCh <- registerCmd{connection: conn, errorChannel: errCh}

	timer := h.clock.NewTimer(commandTimeout)
	defer timer.Stop()

	select {
	case err := <-errCh:
		return err
	case <-timer.Chan():
		return fmt.Errorf("register command timed out after %v", commandTimeout)
	}
}

// Unregister removes a connection. Safe to call for connections the hub has
// already pruned.
func (h *Hub) Unregister(conn *websocket.Conn) {
	h.cmdCh <- unregisterCmd{connection: conn}
}

// Broadcast fans payload out to every registered connection in registration
// order. It never reports per-connection failures to the caller: a connection
// that refuses the send is pruned, logged, and counted, nothing more.
func (h *Hub) Broadcast(payload []byte) {
	h.cmdCh <- broadcastCmd{payload: payload}
}

// ClientCount returns the number of registered connections.
// Returns -1 if the command times out.
func (h *Hub) ClientCount() int {
	replyCh := make(chan int, 1)
	h.cmdCh <- clientCountCmd{replyChannel: replyCh}

	timer := h.clock.NewTimer(commandTimeout)
	defer timer.Stop()

	select {
	case count := <-replyCh:
		return count
	case <-timer.Chan():
		slog.Warn("ClientCount timed out", "timeout", commandTimeout)
		return -1
	}
}

// Stop shuts the hub down, closing all client connections.
// Blocks until the actor goroutine has exited or the stop timeout is reached.
func (h *Hub) Stop() {
	h.cmdCh <- stopCmd{}

	timeout := h.clock.NewTimer(h.stopTimeout)
	defer timeout.Stop()

	select {
	case <-h.done:
		slog.Info("Hub stopped gracefully")
	case <-timeout.Chan():
		slog.Warn("Hub stop timeout exceeded, forcing exit", "timeout", h.stopTimeout)
		metrics.HubStopTimeoutsTotal.Inc()
		close(h.done)
	}
}

func (h *Hub) run() {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Hub panic recovered", "panic", r)
			h.closeAllClients("hub panic")
		}
	}()
	defer close(h.done)

	// Track command channel depth every second
	depthTicker := h.clock.NewTicker(1 * time.Second)
	defer depthTicker.Stop()

	for {
		select {
		case <-depthTicker.Chan():
			depth := len(h.cmdCh)
			metrics.HubCommandChannelDepth.Set(float64(depth))
			if depth > 200 { // 80% of 256
				slog.Warn("Hub command channel near capacity", "depth", depth, "capacity", cap(h.cmdCh))
			}

		case cmd := <-h.cmdCh:
			switch c := cmd.(type) {
			case registerCmd:
				h.handleRegister(c)
			case unregisterCmd:
				h.handleUnregister(c.connection)
			case broadcastCmd:
				h.handleBroadcast(c.payload)
			case clientCountCmd:
				c.replyChannel <- len(h.clients)
			case stopCmd:
				h.handleStop()
				return
			default:
				slog.Warn("Hub received unknown command type", "command_type", fmt.Sprintf("%T", cmd))
			}
		}
	}
}

func (h *Hub) handleRegister(c registerCmd) {
	if h.maxConnections > 0 && len(h.clients) >= h.maxConnections {
		slog.Warn("Rejecting connection: max connections reached", "max_connections", h.maxConnections)
		c.connection.Close()
		c.errorChannel <- fmt.Errorf("max connections (%d) reached", h.maxConnections)
		return
	}

	cl := &client{
		connection: c.connection,
		writer:     newClientWriter(c.connection, h.clock),
	}
	h.clients = append(h.clients, cl)
	h.byConn[c.connection] = cl

	if len(h.greeting) > 0 {
		cl.writer.trySend(h.greeting)
	}

	metrics.HubConnectedClients.Set(float64(len(h.clients)))

	slog.Debug("Connection registered", "total_clients", len(h.clients))
	c.errorChannel <- nil
}

func (h *Hub) handleUnregister(conn *websocket.Conn) {
	cl, exists := h.byConn[conn]
	if !exists {
		return
	}

	cl.writer.stop()
	delete(h.byConn, conn)

	for i, other := range h.clients {
		if other == cl {
			h.clients = append(h.clients[:i], h.clients[i+1:]...)
			break
		}
	}

	metrics.HubConnectedClients.Set(float64(len(h.clients)))
	slog.Debug("Connection unregistered", "remaining_clients", len(h.clients))
}

func (h *Hub) handleBroadcast(payload []byte) {
	start := h.clock.Now()

	// First pass: attempt every send in registration order, collecting the
	// indices of connections that refuse the payload (dead writer or full
	// buffer). Removal happens afterwards so iteration indices stay valid.
	var dead []int
	for i, cl := range h.clients {
		if !cl.writer.trySend(payload) {
			dead = append(dead, i)
		}
	}

	// Second pass: remove in reverse order.
	for i := len(dead) - 1; i >= 0; i-- {
		cl := h.clients[dead[i]]
		slog.Warn("Pruning unresponsive connection")
		metrics.HubPrunedConnectionsTotal.Inc()
		cl.writer.stop()
		delete(h.byConn, cl.connection)
		h.clients = append(h.clients[:dead[i]], h.clients[dead[i]+1:]...)
	}

	if len(dead) > 0 {
		metrics.HubConnectedClients.Set(float64(len(h.clients)))
	}

	metrics.HubBroadcastsTotal.Inc()
	metrics.HubBroadcastDuration.Observe(h.clock.Since(start).Seconds())
}

func (h *Hub) handleStop() {
	slog.Info("Hub shutting down", "clients", len(h.clients))
	h.closeAllClients("Server shutting down")
	slog.Info("Hub shutdown complete")
}

// closeAllClients closes every connection with the given reason.
// Used during panic recovery and graceful shutdown.
func (h *Hub) closeAllClients(reason string) {
	for _, cl := range h.clients {
		cl.writer.stopGraceful(reason)
	}
	h.clients = nil
	h.byConn = make(map[*websocket.Conn]*client)
	metrics.HubConnectedClients.Set(0)
}
