package transport

import (
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gobwas/ws"
	"github.com/rs/zerolog"

	"github.com/ifreecarve/mccibus/internal/admission"
	"github.com/ifreecarve/mccibus/internal/mcci"
	"github.com/ifreecarve/mccibus/internal/metrics"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	sendBuffer = 256
)

// Forwarder pushes locally-accepted remote subscriptions and locally
// produced data out to peer nodes. Implemented by *peer.Publisher; a nil
// Forwarder on a Listener disables peer forwarding entirely.
type Forwarder interface {
	ForwardRequest(localRequestorID uint32, req mcci.RequestPacket) error
	PublishData(pkt mcci.DataPacket) error
}

// Listener accepts WebSocket connections and serialises every call into
// the bound mcci.Server through a single core goroutine: the server's
// banks carry no internal locking, so exactly one goroutine may call into
// them (§5).
type Listener struct {
	server    *mcci.Server
	guard     *admission.Guard
	forwarder Forwarder
	logger    zerolog.Logger

	connSem chan struct{}
	core    chan func()

	mu      sync.Mutex
	clients map[uint32]*client
	nextID  uint32

	shuttingDown int32
}

// NewListener returns a Listener bound to server, accepting at most
// maxConnections concurrent clients. guard may be nil, in which case
// every request is admitted to the quota ledger unconditionally.
func NewListener(server *mcci.Server, guard *admission.Guard, logger zerolog.Logger, maxConnections int) *Listener {
	return &Listener{
		server:  server,
		guard:   guard,
		logger:  logger,
		connSem: make(chan struct{}, maxConnections),
		core:    make(chan func(), 1024),
		clients: make(map[uint32]*client),
	}
}

// Run drains the core queue on the calling goroutine until done is
// closed. Callers must invoke Run exactly once, from the single goroutine
// that is allowed to touch the bound mcci.Server.
func (l *Listener) Run(done <-chan struct{}) {
	for {
		select {
		case fn := <-l.core:
			fn()
		case <-done:
			return
		}
	}
}

func (l *Listener) submit(fn func()) {
	l.core <- fn
}

// Submit queues fn to run on the core goroutine. Exported so other
// ingest sources — peer forwarding (§3.2), production ingestion (§3.3) —
// can serialise their calls into the same mcci.Server through this
// Listener's core loop instead of running one of their own.
func (l *Listener) Submit(fn func()) {
	l.submit(fn)
}

// Deliver pushes a dispatched data packet to the given recipients. Like
// Submit, exported so collaborators outside this package (peer
// forwarding, production ingestion) can reuse this Listener's client
// registry instead of keeping a second one.
func (l *Listener) Deliver(clientIDs []uint32, nodeAddress, variableID, revision uint32, payload json.RawMessage) {
	l.deliver(clientIDs, wirePush{Kind: kindData, NodeAddress: nodeAddress, VariableID: variableID, Revision: revision, Payload: payload})
}

// SetForwarder binds a peer Forwarder after construction, since peer
// forwarding dials NATS independently of the Listener and may fail to
// come up at all (§3.2).
func (l *Listener) SetForwarder(f Forwarder) {
	l.forwarder = f
}

// Shutdown stops admitting new connections. In-flight connections are
// left to drain on their own read/write deadlines.
func (l *Listener) Shutdown() {
	atomic.StoreInt32(&l.shuttingDown, 1)
}

// ServeHTTP upgrades the request to a WebSocket connection.
func (l *Listener) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if atomic.LoadInt32(&l.shuttingDown) == 1 {
		http.Error(w, "server is shutting down", http.StatusServiceUnavailable)
		return
	}

	select {
	case l.connSem <- struct{}{}:
	default:
		http.Error(w, "too many connections", http.StatusServiceUnavailable)
		return
	}

	conn, _, _, err := ws.UpgradeHTTP(r, w)
	if err != nil {
		<-l.connSem
		l.logger.Error().Err(err).Str("remote_addr", r.RemoteAddr).Msg("websocket upgrade failed")
		return
	}

	id := atomic.AddUint32(&l.nextID, 1)
	c := &client{
		id:       id,
		conn:     conn,
		listener: l,
		send:     make(chan []byte, sendBuffer),
	}

	l.mu.Lock()
	l.clients[id] = c
	l.mu.Unlock()
	metrics.ConnectionsActive.Inc()

	l.logger.Info().Uint32("client_id", id).Str("remote_addr", r.RemoteAddr).Msg("client connected")

	go c.writePump()
	go c.readPump()
}

func (l *Listener) removeClient(id uint32) {
	l.mu.Lock()
	c, ok := l.clients[id]
	if ok {
		delete(l.clients, id)
	}
	l.mu.Unlock()
	if !ok {
		return
	}
	close(c.send)
	<-l.connSem
	metrics.ConnectionsActive.Dec()
}

// deliver pushes a dispatched data packet to every recipient client,
// dropping rather than blocking on a client whose send buffer is full: a
// slow subscriber must never stall the core goroutine (§5).
func (l *Listener) deliver(clientIDs []uint32, push wirePush) {
	if len(clientIDs) == 0 {
		return
	}
	body, err := json.Marshal(push)
	if err != nil {
		l.logger.Error().Err(err).Msg("failed to marshal push envelope")
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	for _, id := range clientIDs {
		c, ok := l.clients[id]
		if !ok {
			continue
		}
		select {
		case c.send <- body:
		default:
			l.logger.Warn().Uint32("client_id", id).Msg("dropping push: client send buffer full")
		}
	}
}
