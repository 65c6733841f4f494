package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/rzbill/coedit/internal/collab"
	"github.com/rzbill/coedit/internal/fanout"
	"github.com/rzbill/coedit/internal/metrics"
	"github.com/rzbill/coedit/internal/ot"
	"github.com/rzbill/coedit/internal/store"
	logpkg "github.com/rzbill/coedit/pkg/log"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	outBuffer  = 16
)

// WSOptions tunes websocket connections.
type WSOptions struct {
	// RateLimit is the sustained actions per second per connection; 0
	// disables limiting.
	RateLimit float64
	RateBurst int
	// MaxFrame bounds an incoming message in bytes.
	MaxFrame int64
}

// WSController runs the collaboration protocol over websockets: the client
// sends actions, the server relays document events.
type WSController struct {
	svc      *collab.Service
	bus      fanout.Broadcaster
	metrics  *metrics.Metrics
	log      logpkg.Logger
	opts     WSOptions
	upgrader websocket.Upgrader
}

func NewWSController(svc *collab.Service, bus fanout.Broadcaster, m *metrics.Metrics, logger logpkg.Logger, opts WSOptions) *WSController {
	if logger == nil {
		logger = logpkg.NewNopLogger()
	}
	return &WSController{
		svc:     svc,
		bus:     bus,
		metrics: m,
		log:     logger.With(logpkg.Component("ws")),
		opts:    opts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

func (c *WSController) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/v1/ws/global", c.handleWS).Methods(http.MethodGet)
	r.HandleFunc("/v1/ws/{room:[0-9]+}/{path:.+}", c.handleWS).Methods(http.MethodGet)
}

func (c *WSController) handleWS(w http.ResponseWriter, r *http.Request) {
	key, err := docKey(r)
	if err != nil {
		writeErr(w, err)
		return
	}
	clientID := r.URL.Query().Get("client_id")
	if clientID == "" {
		clientID = uuid.NewString()
	}
	conn, err := c.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// the upgrader already replied
		return
	}
	c.metrics.ConnOpened()
	defer c.metrics.ConnClosed()

	lim := rate.NewLimiter(rate.Inf, 0)
	if c.opts.RateLimit > 0 {
		lim = rate.NewLimiter(rate.Limit(c.opts.RateLimit), max(c.opts.RateBurst, 1))
	}
	wc := &wsConn{
		ctl:      c,
		conn:     conn,
		key:      key,
		clientID: clientID,
		out:      make(chan any, outBuffer),
		limiter:  lim,
		log:      c.log.With(logpkg.Str("doc", key.String()), logpkg.Str("client", clientID)),
	}
	wc.run(r.Context())
}

// wsConn is one client connection. Only the write loop writes to conn.
type wsConn struct {
	ctl      *WSController
	conn     *websocket.Conn
	key      store.DocKey
	clientID string
	out      chan any
	limiter  *rate.Limiter
	log      logpkg.Logger
}

func (c *wsConn) run(parent context.Context) {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()
	defer c.conn.Close()

	// subscribe before taking the snapshot so no operation falls between
	sub, err := c.ctl.bus.Subscribe(ctx, c.key.Channel())
	if err != nil {
		c.closeWith(websocket.CloseInternalServerErr, err.Error())
		return
	}
	defer sub.Close()
	doc, err := c.ctl.svc.Join(ctx, c.key, c.clientID)
	if err != nil {
		c.log.Warn("join failed", logpkg.Err(err))
		c.closeWith(websocket.ClosePolicyViolation, err.Error())
		return
	}
	c.log.Debug("client joined")
	defer func() {
		lctx, lcancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer lcancel()
		if err := c.ctl.svc.Leave(lctx, c.key, c.clientID); err != nil {
			c.log.Warn("leave failed", logpkg.Err(err))
		}
		c.log.Debug("client left")
	}()
	c.out <- doc

	done := make(chan struct{})
	go func() {
		defer close(done)
		c.writeLoop(ctx, sub)
	}()
	c.readLoop(ctx)
	cancel()
	<-done
}

func (c *wsConn) closeWith(code int, text string) {
	msg := websocket.FormatCloseMessage(code, text)
	_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
}

func (c *wsConn) writeLoop(ctx context.Context, sub *fanout.Subscription) {
	// unblocks the reader when the writer gives up
	defer c.conn.Close()
	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()
	for {
		select {
		case <-ctx.Done():
			c.closeWith(websocket.CloseNormalClosure, "")
			return
		case ev, ok := <-sub.Events():
			if !ok {
				// dropped for lagging; the client reconnects and resyncs
				c.log.Warn("subscriber lagged, closing")
				c.closeWith(websocket.CloseTryAgainLater, "lagged")
				return
			}
			if !ev.ShouldDeliver(c.clientID) {
				continue
			}
			if err := c.write(ev); err != nil {
				return
			}
		case v := <-c.out:
			if err := c.write(v); err != nil {
				return
			}
		case <-ping.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *wsConn) write(v any) error {
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(v)
}

func (c *wsConn) send(ctx context.Context, v any) {
	select {
	case c.out <- v:
	case <-ctx.Done():
	}
}

func (c *wsConn) readLoop(ctx context.Context) {
	if c.ctl.opts.MaxFrame > 0 {
		c.conn.SetReadLimit(c.ctl.opts.MaxFrame)
	}
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, buf, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.log.Debug("read failed", logpkg.Err(err))
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		var msg clientMsg
		if err := json.Unmarshal(buf, &msg); err != nil {
			c.send(ctx, errorMsg{Type: "error", Error: "malformed message"})
			continue
		}
		if !c.limiter.Allow() {
			c.ctl.metrics.ObserveRejected("rate")
			c.send(ctx, errorMsg{Type: "error", Error: "rate limited"})
			if msg.Action == "operation" {
				c.resync(ctx)
			}
			continue
		}
		if err := c.handle(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return
			}
			c.log.Debug("action failed", logpkg.Str("action", msg.Action), logpkg.Err(err))
			c.send(ctx, errorMsg{Type: "error", Error: err.Error()})
		}
	}
}

var errUnknownAction = errors.New("unknown action")

func (c *wsConn) handle(ctx context.Context, msg clientMsg) error {
	svc := c.ctl.svc
	switch msg.Action {
	case "operation":
		_, err := svc.Submit(ctx, c.key, c.clientID, collab.Submission{
			Revision:  msg.Revision,
			Operation: msg.Operation,
			Selection: msg.Selection,
		})
		if err != nil {
			// the client waits for an ack that will never come
			c.send(ctx, errorMsg{Type: "error", Error: err.Error()})
			c.resync(ctx)
		}
		return nil
	case "selection":
		sel, err := ot.ParseSelection(msg.Selection)
		if err != nil {
			return err
		}
		return svc.UpdateSelection(ctx, c.key, c.clientID, sel)
	case "set_name":
		return svc.SetName(ctx, c.key, c.clientID, msg.Name)
	case "resync":
		c.resync(ctx)
		return nil
	}
	return errUnknownAction
}

func (c *wsConn) resync(ctx context.Context) {
	doc, err := c.ctl.svc.Resync(ctx, c.key, c.clientID)
	if err != nil {
		c.send(ctx, errorMsg{Type: "error", Error: err.Error()})
		return
	}
	c.send(ctx, doc)
}
