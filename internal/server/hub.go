package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"tradedesk/internal/domain"
	"tradedesk/internal/ports"
)

const (
	writeWait      = 10 * time.Second
	clientSendSize = 16
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The dashboard is served from a different origin in development.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Hub fans exchange ticker streams out to websocket clients. One upstream
// stream is held per symbol and started lazily on the first subscriber;
// when the last subscriber leaves the upstream stream is stopped.
type Hub struct {
	exchange ports.ExchangeClient
	logger   ports.Logger

	// streamCtx outlives any single request. Upstream exchange streams are
	// tied to the hub's lifetime, not to the subscriber that happened to
	// start them: the HTTP request context is canceled as soon as the
	// handler returns, which is long before the last subscriber leaves.
	streamCtx    context.Context
	cancelStream context.CancelFunc

	mu      sync.Mutex
	streams map[string]*tickerStream
}

type tickerStream struct {
	clients map[*hubClient]struct{}
	stopCh  chan struct{}
}

type hubClient struct {
	conn *websocket.Conn
	send chan *domain.Ticker
}

// NewHub creates a ticker fan-out hub.
func NewHub(exchange ports.ExchangeClient, logger ports.Logger) (*Hub, error) {
	if exchange == nil || logger == nil {
		return nil, fmt.Errorf("missing required dependencies for Hub")
	}
	streamCtx, cancel := context.WithCancel(context.Background())
	return &Hub{
		exchange:     exchange,
		logger:       logger,
		streamCtx:    streamCtx,
		cancelStream: cancel,
		streams:      make(map[string]*tickerStream),
	}, nil
}

// Serve upgrades the request to a websocket and streams ticker updates for
// the symbol until the client disconnects.
func (h *Hub) Serve(ctx context.Context, w http.ResponseWriter, r *http.Request, symbol string) error {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("websocket upgrade failed: %w", err)
	}

	client := &hubClient{conn: conn, send: make(chan *domain.Ticker, clientSendSize)}
	if err := h.subscribe(ctx, symbol, client); err != nil {
		conn.Close()
		return err
	}
	h.logger.Debug(ctx, "Ticker subscriber connected", map[string]interface{}{"symbol": symbol})

	go h.writePump(ctx, symbol, client)
	go h.readPump(ctx, symbol, client)
	return nil
}

func (h *Hub) subscribe(ctx context.Context, symbol string, client *hubClient) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	s, ok := h.streams[symbol]
	if !ok {
		handler := func(t *domain.Ticker) { h.broadcast(symbol, t) }
		errHandler := func(err error) {
			h.logger.Warn(h.streamCtx, "Ticker stream error", map[string]interface{}{"symbol": symbol, "error": err.Error()})
		}
		// The hub's own context here, not the request's: the request
		// context dies when the subscribing handler returns.
		_, stopCh, err := h.exchange.StreamTicker(h.streamCtx, symbol, handler, errHandler)
		if err != nil {
			return fmt.Errorf("failed to start ticker stream for %s: %w", symbol, err)
		}
		s = &tickerStream{clients: make(map[*hubClient]struct{}), stopCh: stopCh}
		h.streams[symbol] = s
		h.logger.Info(ctx, "Ticker stream started", map[string]interface{}{"symbol": symbol})
	}
	s.clients[client] = struct{}{}
	return nil
}

func (h *Hub) unsubscribe(ctx context.Context, symbol string, client *hubClient) {
	h.mu.Lock()
	defer h.mu.Unlock()

	s, ok := h.streams[symbol]
	if !ok {
		return
	}
	if _, present := s.clients[client]; !present {
		return
	}
	delete(s.clients, client)
	close(client.send)

	if len(s.clients) == 0 {
		close(s.stopCh)
		delete(h.streams, symbol)
		h.logger.Info(ctx, "Ticker stream stopped, no subscribers left", map[string]interface{}{"symbol": symbol})
	}
}

func (h *Hub) broadcast(symbol string, ticker *domain.Ticker) {
	h.mu.Lock()
	defer h.mu.Unlock()

	s, ok := h.streams[symbol]
	if !ok {
		return
	}
	for client := range s.clients {
		select {
		case client.send <- ticker:
		default:
			// Slow consumer: drop the update rather than block the stream.
		}
	}
}

func (h *Hub) writePump(ctx context.Context, symbol string, client *hubClient) {
	defer client.conn.Close()
	for ticker := range client.send {
		client.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := client.conn.WriteJSON(ticker); err != nil {
			h.logger.Debug(ctx, "Ticker subscriber write failed", map[string]interface{}{"symbol": symbol, "error": err.Error()})
			h.unsubscribe(ctx, symbol, client)
			return
		}
	}
}

func (h *Hub) readPump(ctx context.Context, symbol string, client *hubClient) {
	// Reads are only used to detect the client going away.
	for {
		if _, _, err := client.conn.ReadMessage(); err != nil {
			h.unsubscribe(ctx, symbol, client)
			return
		}
	}
}

// Close stops all upstream streams and disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.cancelStream()
	for symbol, s := range h.streams {
		for client := range s.clients {
			close(client.send)
			client.conn.Close()
		}
		close(s.stopCh)
		delete(h.streams, symbol)
	}
}
