// Package ws is the spectator gateway: a websocket fan-out of the
// unfiltered tick batches, used by debug clients and match observers.
package ws

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"warlane/server/internal/telemetry"
)

const writeWait = 10 * time.Second

// Gateway upgrades spectator connections and broadcasts each tick's batch.
type Gateway struct {
	upgrader websocket.Upgrader
	logger   telemetry.Logger

	mu      sync.Mutex
	clients map[string]*client
}

type client struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

// NewGateway constructs an empty gateway.
func NewGateway(logger telemetry.Logger) *Gateway {
	return &Gateway{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// Spectator feed is read-only diagnostics; any origin may watch.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		logger:  logger,
		clients: make(map[string]*client),
	}
}

// ServeHTTP upgrades one spectator session.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.Printf("spectator upgrade failed: %v", err)
		return
	}
	id := uuid.NewString()
	g.mu.Lock()
	g.clients[id] = &client{conn: conn}
	g.mu.Unlock()

	// Reader loop: spectators send nothing meaningful; exit on close.
	go func() {
		defer g.drop(id)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (g *Gateway) drop(id string) {
	g.mu.Lock()
	c, ok := g.clients[id]
	delete(g.clients, id)
	g.mu.Unlock()
	if ok {
		c.conn.Close()
	}
}

// ClientCount reports connected spectators.
func (g *Gateway) ClientCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.clients)
}

// Broadcast sends one payload to every spectator; slow or broken clients
// are dropped rather than allowed to stall the tick.
func (g *Gateway) Broadcast(payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		g.logger.Printf("spectator marshal failed: %v", err)
		return
	}

	g.mu.Lock()
	snapshot := make(map[string]*client, len(g.clients))
	for id, c := range g.clients {
		snapshot[id] = c
	}
	g.mu.Unlock()

	for id, c := range snapshot {
		c.mu.Lock()
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		err := c.conn.WriteMessage(websocket.TextMessage, data)
		c.mu.Unlock()
		if err != nil {
			g.drop(id)
		}
	}
}

// Close disconnects every spectator.
func (g *Gateway) Close() {
	g.mu.Lock()
	clients := g.clients
	g.clients = make(map[string]*client)
	g.mu.Unlock()
	for _, c := range clients {
		c.conn.Close()
	}
}
