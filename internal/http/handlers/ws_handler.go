package handlers

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/collateral-pay/backend/internal/config"
	"github.com/collateral-pay/backend/internal/events"
	"github.com/collateral-pay/backend/internal/keys"
	"github.com/collateral-pay/backend/internal/middleware"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// wsClient сериализует запись: websocket.Conn не допускает параллельных writer'ов.
type wsClient struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

// wsWriteTimeout: зависший клиент не должен держать очередь событий hub'а.
const wsWriteTimeout = 5 * time.Second

func (c *wsClient) send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout)); err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// WSHub pushes channel events to the connections of the channel's buyer and
// seller. Invariant violations go to admins.
type WSHub struct {
	cfg         *config.Config
	subscriber  events.Subscriber
	log         *zap.Logger
	mu          sync.RWMutex
	connections map[keys.Address][]*wsClient
}

func NewWSHub(cfg *config.Config, subscriber events.Subscriber, log *zap.Logger) *WSHub {
	return &WSHub{
		cfg:         cfg,
		subscriber:  subscriber,
		log:         log,
		connections: make(map[keys.Address][]*wsClient),
	}
}

func (h *WSHub) Start(ctx context.Context) error {
	return h.subscriber.Subscribe(ctx, events.StreamChannel, h.route)
}

func (h *WSHub) route(event events.Event) {
	for _, addr := range h.recipients(event) {
		h.SendTo(addr, event)
	}
}

// recipients: стороны канала без повторов, для invariant_violation - админы.
func (h *WSHub) recipients(event events.Event) []keys.Address {
	if event.Type == events.EventInvariantViolation {
		return h.cfg.AdminAddresses
	}

	var out []keys.Address
	for _, field := range []string{"buyer", "seller"} {
		s, _ := event.Payload[field].(string)
		addr, err := keys.ParseAddress(s)
		if err != nil || addr.IsZero() {
			continue
		}
		if len(out) == 1 && out[0] == addr {
			continue
		}
		out = append(out, addr)
	}
	return out
}

func (h *WSHub) SendTo(addr keys.Address, event events.Event) {
	data, err := json.Marshal(event)
	if err != nil {
		return
	}

	h.mu.RLock()
	clients := append([]*wsClient(nil), h.connections[addr]...)
	h.mu.RUnlock()

	for _, c := range clients {
		if err := c.send(data); err != nil {
			h.log.Debug("ws send failed", zap.String("identity", addr.String()), zap.Error(err))
		}
	}
}

// ConnectionCount - число открытых соединений identity.
func (h *WSHub) ConnectionCount(addr keys.Address) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections[addr])
}

// WSUpgradeMiddleware checks for websocket upgrade
func WSUpgradeMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	}
}

// HandleWS runs behind AuthMiddleware, identity comes from Locals.
func (h *WSHub) HandleWS(conn *websocket.Conn) {
	addr, _ := conn.Locals(middleware.CtxIdentity).(keys.Address)
	if addr.IsZero() {
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"unauthenticated"}`))
		conn.Close()
		return
	}

	client := &wsClient{conn: conn}
	h.register(addr, client)
	defer func() {
		h.unregister(addr, client)
		conn.Close()
	}()

	// Read loop (keep alive / pings)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}

func (h *WSHub) register(addr keys.Address, c *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.connections[addr] = append(h.connections[addr], c)
}

func (h *WSHub) unregister(addr keys.Address, c *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	conns := h.connections[addr]
	for i, cc := range conns {
		if cc == c {
			h.connections[addr] = append(conns[:i], conns[i+1:]...)
			break
		}
	}
	if len(h.connections[addr]) == 0 {
		delete(h.connections, addr)
	}
}
