package controllers

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"visitor-kiosk/realtime"
	"visitor-kiosk/roster"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  4096,
	WriteBufferSize: 64 * 1024,
}

// frame is every server -> client websocket message.
type frame struct {
	Type  string      `json:"type"`
	ID    int64       `json:"id,omitempty"`
	Data  interface{} `json:"data,omitempty"`
	Error string      `json:"error,omitempty"`
}

// wsConn serialises writes; gorilla allows one concurrent writer.
type wsConn struct {
	id string
	ws *websocket.Conn
	mu sync.Mutex
}

func newWSConn(ws *websocket.Conn) *wsConn {
	return &wsConn{id: uuid.New().String(), ws: ws}
}

func (c *wsConn) send(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ws.WriteJSON(v)
}

func (c *wsConn) ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

// keepAlive pings until ctx ends. The read side extends its deadline on
// every pong.
func (c *wsConn) keepAlive(ctx context.Context) {
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})
	t := time.NewTicker(pingPeriod)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if err := c.ping(); err != nil {
				return
			}
		}
	}
}

// ----------------------------------------------------------------------
// Kiosk channel
// ----------------------------------------------------------------------

// KioskChannel pushes ready-to-print signals to every connected kiosk.
type KioskChannel struct {
	logger *zap.Logger

	mu    sync.RWMutex
	conns map[*wsConn]struct{}
}

func NewKioskChannel(logger *zap.Logger) *KioskChannel {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &KioskChannel{logger: logger, conns: make(map[*wsConn]struct{})}
}

func (k *KioskChannel) Len() int {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return len(k.conns)
}

// ReadyToPrint sends {"type":"print","id":..}. A kiosk that cannot be
// written to is dropped.
func (k *KioskChannel) ReadyToPrint(_ context.Context, id int64) {
	k.mu.RLock()
	conns := make([]*wsConn, 0, len(k.conns))
	for c := range k.conns {
		conns = append(conns, c)
	}
	k.mu.RUnlock()

	for _, c := range conns {
		if err := c.send(frame{Type: "print", ID: id}); err != nil {
			k.logger.Warn("kiosk print signal failed", zap.String("conn", c.id), zap.Error(err))
			k.remove(c)
		}
	}
}

func (k *KioskChannel) remove(c *wsConn) {
	k.mu.Lock()
	_, ok := k.conns[c]
	delete(k.conns, c)
	k.mu.Unlock()
	if ok {
		_ = c.ws.Close()
	}
}

// GET /ws/kiosk
func (k *KioskChannel) Handle(c *gin.Context) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		k.logger.Error("kiosk websocket upgrade failed", zap.Error(err))
		return
	}
	conn := newWSConn(ws)
	k.mu.Lock()
	k.conns[conn] = struct{}{}
	k.mu.Unlock()
	k.logger.Info("kiosk connected", zap.String("conn", conn.id))

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()
	go conn.keepAlive(ctx)

	// kiosks never send anything meaningful; reading only detects close
	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			break
		}
	}
	k.remove(conn)
	k.logger.Info("kiosk disconnected", zap.String("conn", conn.id))
}

// ----------------------------------------------------------------------
// Dashboard channel
// ----------------------------------------------------------------------

// dashboardRequest is a client -> server message.
type dashboardRequest struct {
	Type   string `json:"type"`
	Filter string `json:"filter"`
	From   string `json:"from"`
	To     string `json:"to"`
	Name   string `json:"name"`
	Limit  int    `json:"limit"`
}

type DashboardController struct {
	Roster   roster.Querier
	Feed     realtime.Feed
	Loc      *time.Location
	PageSize int
	Logger   *zap.Logger

	sessions  prometheus.Gauge
	autoPrint prometheus.Counter
}

func NewDashboardController(q roster.Querier, feed realtime.Feed, loc *time.Location, pageSize int, reg prometheus.Registerer, logger *zap.Logger) *DashboardController {
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &DashboardController{
		Roster:   q,
		Feed:     feed,
		Loc:      loc,
		PageSize: pageSize,
		Logger:   logger,
		sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "kiosk_dashboard_sessions",
			Help: "Open dashboard websocket sessions.",
		}),
		autoPrint: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kiosk_autoprint_total",
			Help: "Print frames pushed to dashboards for new check-ins.",
		}),
	}
	if reg != nil {
		reg.MustRegister(d.sessions, d.autoPrint)
	}
	return d
}

type dashboardSink struct{ conn *wsConn }

func (s dashboardSink) Snapshot(_ context.Context, snap roster.Snapshot) error {
	return s.conn.send(frame{Type: "snapshot", Data: snap})
}

type dashboardPrinter struct {
	conn    *wsConn
	counter prometheus.Counter
}

func (p dashboardPrinter) Print(_ context.Context, id int64) error {
	if err := p.conn.send(frame{Type: "print", ID: id}); err != nil {
		return err
	}
	p.counter.Inc()
	return nil
}

func (d *DashboardController) parseRequest(req dashboardRequest) (roster.Filter, error) {
	preset, err := roster.ParsePreset(req.Filter)
	if err != nil {
		return roster.Filter{}, err
	}
	f := roster.Filter{Preset: preset, Name: strings.TrimSpace(req.Name), Limit: req.Limit}
	for _, pair := range []struct {
		raw string
		dst **time.Time
	}{{req.From, &f.From}, {req.To, &f.To}} {
		if strings.TrimSpace(pair.raw) == "" {
			continue
		}
		t, err := time.ParseInLocation("2006-01-02", strings.TrimSpace(pair.raw), d.Loc)
		if err != nil {
			return f, err
		}
		*pair.dst = &t
	}
	return f, nil
}

// GET /ws/dashboard
// One roster projection per connection. The initial filter may be given on
// the query string, the same keys as GET /api/visitors.
func (d *DashboardController) Handle(c *gin.Context) {
	initial, err := d.parseRequest(dashboardRequest{
		Filter: c.Query("filter"),
		From:   c.Query("from"),
		To:     c.Query("to"),
		Name:   c.Query("name"),
	})
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	}

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		d.Logger.Error("dashboard websocket upgrade failed", zap.Error(err))
		return
	}
	defer ws.Close()
	conn := newWSConn(ws)
	log := d.Logger.With(zap.String("conn", conn.id))

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	proj := roster.New(d.Roster, d.Feed, dashboardSink{conn: conn},
		roster.WithPrinter(dashboardPrinter{conn: conn, counter: d.autoPrint}, roster.NewPrintedSet()),
		roster.WithLocation(d.Loc),
		roster.WithPageSize(d.PageSize),
		roster.WithLogger(log),
	)
	defer proj.Close()
	if err := proj.SetFilter(ctx, initial); err != nil {
		_ = conn.send(frame{Type: "error", Error: err.Error()})
		return
	}
	if err := proj.Start(ctx); err != nil {
		log.Error("dashboard projection start failed", zap.Error(err))
		_ = conn.send(frame{Type: "error", Error: err.Error()})
		return
	}

	d.sessions.Inc()
	defer d.sessions.Dec()
	log.Info("dashboard connected")
	go conn.keepAlive(ctx)

	for {
		var req dashboardRequest
		if err := ws.ReadJSON(&req); err != nil {
			log.Info("dashboard disconnected", zap.Error(err))
			return
		}
		if req.Type != "filter" {
			continue
		}
		f, err := d.parseRequest(req)
		if err == nil {
			err = proj.SetFilter(ctx, f)
		}
		if err != nil {
			if sendErr := conn.send(frame{Type: "error", Error: err.Error()}); sendErr != nil {
				return
			}
		}
	}
}
