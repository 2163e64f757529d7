package main

import (
	"crypto/rand"
	_ "embed"
	"encoding/hex"
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/skip2/go-qrcode"
)

type Client struct {
	conn     *websocket.Conn
	send     chan any
	playerID string
}

type clientEvent struct {
	client *Client
	msg    ClientMessage
}

// Hub owns one game session and its connected clients. All session
// mutation happens on the run goroutine; the mutex exists for the
// read-only snapshots taken by the reaper and the debug endpoint.
type Hub struct {
	id      string
	cfg     *Config
	clients map[*Client]bool
	session *Session

	register chan *Client
	unreg    chan *Client
	events   chan clientEvent
	timers   chan timerEvent

	mu sync.RWMutex

	lastActive   time.Time
	hostPlayerID string // cookie/playerID of the first connection
}

func newHub(cfg *Config, gameID string) *Hub {
	h := &Hub{
		id:         gameID,
		cfg:        cfg,
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unreg:      make(chan *Client),
		events:     make(chan clientEvent),
		timers:     make(chan timerEvent, 16),
		lastActive: time.Now(),
	}
	h.session = newSession(cfg, h, h.scheduleTimer)
	return h
}

// scheduleTimer posts a stamped timerEvent back into the run loop after d.
// Stale events are filtered by generation there, so a timer that lost the
// race to a fresher one is harmless.
func (h *Hub) scheduleTimer(kind timerKind, d time.Duration, gen uint64) {
	time.AfterFunc(d, func() {
		select {
		case h.timers <- timerEvent{kind: kind, gen: gen}:
		default:
		}
	})
}

// sendTo delivers a message to every client bound to playerID. Callers
// hold h.mu via the run loop.
func (h *Hub) sendTo(playerID string, msg any) {
	for client := range h.clients {
		if client.playerID != playerID {
			continue
		}
		select {
		case client.send <- msg:
		default:
			delete(h.clients, client)
			close(client.send)
		}
	}
}

// broadcast delivers a message to all clients, dropping any too slow to
// keep up.
func (h *Hub) broadcast(msg any) {
	for client := range h.clients {
		select {
		case client.send <- msg:
		default:
			delete(h.clients, client)
			close(client.send)
		}
	}
}

func (h *Hub) run() {
	dedupe := time.NewTicker(h.cfg.dedupeInterval)
	defer dedupe.Stop()

	for {
		select {
		case c := <-h.register:
			h.mu.Lock()
			h.lastActive = time.Now()

			// First connection becomes the host.
			if h.hostPlayerID == "" {
				h.hostPlayerID = c.playerID
			}

			h.clients[c] = true

			// Catch the new connection up before any further events.
			h.sendTo(c.playerID, RosterMessage{
				Type:    "roster",
				Players: h.session.rosterInfo(),
			})
			h.sendTo(c.playerID, h.session.projectedState())
			h.mu.Unlock()

		case c := <-h.unreg:
			h.mu.Lock()
			h.lastActive = time.Now()

			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}

			// Another tab with the same cookie keeps the player alive.
			stillConnected := false
			for client := range h.clients {
				if client.playerID == c.playerID {
					stillConnected = true
					break
				}
			}
			if c.playerID != "" && !stillConnected {
				h.session.disconnect(c.playerID)
			}
			h.mu.Unlock()

		case ev := <-h.events:
			h.mu.Lock()
			h.lastActive = time.Now()
			h.dispatch(ev)
			h.mu.Unlock()

		case ev := <-h.timers:
			h.mu.Lock()
			h.session.onTimer(ev)
			h.mu.Unlock()

		case <-dedupe.C:
			h.mu.Lock()
			h.session.dedupe()
			h.mu.Unlock()
		}
	}
}

// dispatch is the single entry point for inbound client messages; events
// invalid for the current phase are rejected inside the session, not here.
func (h *Hub) dispatch(ev clientEvent) {
	c := ev.client
	msg := ev.msg

	switch msg.Type {
	case "join":
		h.session.join(c.playerID, strings.TrimSpace(msg.Name))
		logf(h.cfg, "GAMES: Player %q joined %s", msg.Name, h.id)

	case "start_game":
		h.session.startGame(c.playerID)

	case "submit_answer":
		h.session.submitAnswer(c.playerID, msg.Prompt, msg.Text)

	case "vote":
		h.session.vote(c.playerID, msg.Target)

	case "get_roster":
		h.sendTo(c.playerID, RosterMessage{
			Type:    "roster",
			Players: h.session.rosterInfo(),
		})

	case "get_state":
		h.sendTo(c.playerID, h.session.projectedState())

	case "reset_all":
		if c.playerID != h.hostPlayerID {
			return
		}
		h.session.reset()
		logf(h.cfg, "GAMES: Game %s reset by host", h.id)

	case "set_prompts":
		if c.playerID != h.hostPlayerID {
			return
		}
		h.session.setPrompts(msg.Prompts)

	case "force_voting":
		if c.playerID != h.hostPlayerID {
			return
		}
		h.session.forceVoting()

	case "next_question":
		if c.playerID != h.hostPlayerID {
			return
		}
		h.session.forceNextQuestion()
	}
}

// closeAll disconnects all clients of this hub (used by reaper).
func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for c := range h.clients {
		close(c.send)
		_ = c.conn.Close()
		delete(h.clients, c)
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

const playerCookieName = "quipbox_id"

func getOrSetPlayerID(w http.ResponseWriter, r *http.Request) string {
	if c, err := r.Cookie(playerCookieName); err == nil && c.Value != "" {
		return c.Value
	}

	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		log.Println("rand.Read error:", err)
		return ""
	}
	id := hex.EncodeToString(buf)

	http.SetCookie(w, &http.Cookie{
		Name:     playerCookieName,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	return id
}

// GameManager holds a set of hubs keyed by game ID, so each $path/$gameid
// is its own isolated session.
type GameManager struct {
	mu          sync.Mutex
	cfg         *Config
	hubs        map[string]*Hub
	idleTimeout time.Duration
}

func newGameManager(cfg *Config, idleTimeout time.Duration) *GameManager {
	gm := &GameManager{
		cfg:         cfg,
		hubs:        make(map[string]*Hub),
		idleTimeout: idleTimeout,
	}
	if idleTimeout > 0 {
		go gm.reaperLoop()
	}
	return gm
}

func (gm *GameManager) getHub(gameID string) *Hub {
	gm.mu.Lock()
	defer gm.mu.Unlock()

	if hub, ok := gm.hubs[gameID]; ok {
		return hub
	}

	hub := newHub(gm.cfg, gameID)
	gm.hubs[gameID] = hub
	go hub.run()
	return hub
}

func (gm *GameManager) lookupHub(gameID string) *Hub {
	gm.mu.Lock()
	defer gm.mu.Unlock()

	return gm.hubs[gameID]
}

// newGameID generates a crypto-random game ID and ensures it doesn't
// collide with existing games.
func (gm *GameManager) newGameID() string {
	const letters = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	for {
		buf := make([]byte, 8)
		if _, err := rand.Read(buf); err != nil {
			panic("crypto/rand failure: " + err.Error())
		}
		out := make([]byte, 8)
		for i := range out {
			out[i] = letters[int(buf[i])%len(letters)]
		}
		id := string(out)

		gm.mu.Lock()
		_, exists := gm.hubs[id]
		gm.mu.Unlock()

		if !exists {
			return id
		}
	}
}

// reaperLoop periodically removes hubs that have been idle longer than idleTimeout.
func (gm *GameManager) reaperLoop() {
	ticker := time.NewTicker(gm.idleTimeout / 2)
	for range ticker.C {
		cutoff := time.Now().Add(-gm.idleTimeout)

		gm.mu.Lock()
		for id, hub := range gm.hubs {
			hub.mu.RLock()
			last := hub.lastActive
			hub.mu.RUnlock()

			if last.Before(cutoff) {
				delete(gm.hubs, id)
				go hub.closeAll()
			}
		}
		gm.mu.Unlock()
	}
}

// WebSocket handler that picks the hub based on :gameid
func serveWSForManager(cfg *Config, gm *GameManager) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		gameID := ps.ByName("gameid")
		if gameID == "" {
			http.Error(w, "missing game id", http.StatusBadRequest)
			return
		}

		playerID := getOrSetPlayerID(w, r)
		if playerID == "" {
			http.Error(w, "unable to assign player id", http.StatusInternalServerError)
			return
		}

		hub := gm.getHub(gameID)

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Println("upgrade error:", err)
			return
		}

		client := &Client{
			conn:     conn,
			send:     make(chan any, 8),
			playerID: playerID,
		}

		hub.register <- client

		go client.writePump()
		client.readPump(hub)
	}
}

func (c *Client) readPump(h *Hub) {
	defer func() {
		h.unreg <- c
		_ = c.conn.Close()
	}()

	for {
		var msg ClientMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			return
		}

		h.events <- clientEvent{
			client: c,
			msg:    msg,
		}
	}
}

func (c *Client) writePump() {
	defer c.conn.Close()

	for msg := range c.send {
		if err := c.conn.WriteJSON(msg); err != nil {
			return
		}
	}
}

// QR handler: generates a PNG QR code for the current game URL using go-qrcode.
func qrHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	gameID := ps.ByName("gameid")
	if gameID == "" {
		http.Error(w, "missing game id", http.StatusBadRequest)
		return
	}

	// Derive scheme (respecting TLS and X-Forwarded-Proto if present).
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}

	// We are at /.../:gameid/qr; strip trailing "/qr" to get the game URL.
	path := strings.TrimSuffix(r.URL.Path, "/qr")

	url := scheme + "://" + r.Host + path

	const qrSize = 320 // mobile-friendly size
	png, err := qrcode.Encode(url, qrcode.Medium, qrSize)
	if err != nil {
		http.Error(w, "qr generation failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(png)
}

// debugHandler exposes a read-only diagnostic snapshot of one session.
func debugHandler(gm *GameManager) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		hub := gm.lookupHub(ps.ByName("gameid"))
		if hub == nil {
			http.Error(w, "no such game", http.StatusNotFound)
			return
		}

		hub.mu.RLock()
		info := hub.session.debugSnapshot()
		hub.mu.RUnlock()

		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		_ = json.NewEncoder(w).Encode(info)
	}
}

// ---- Static file paths ----

//go:embed quip/index.html
var indexHTML []byte

//go:embed quip/app.css
var quipboxCSS []byte

//go:embed quip/app.js
var quipboxJS []byte

func getIndexHandler(cfg *Config) func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", "public, max-age=3600")
		w.Header().Set("Expires", time.Now().Add(time.Hour).UTC().Format(http.TimeFormat))
		securityHeaders(cfg, w)

		_ = getOrSetPlayerID(w, r)

		_, _ = w.Write(indexHTML)
	}
}

func getCssHandler(cfg *Config) func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		w.Header().Set("Content-Type", "text/css; charset=utf-8")
		w.Header().Set("Cache-Control", "public, max-age=3600")
		w.Header().Set("Expires", time.Now().Add(time.Hour).UTC().Format(http.TimeFormat))
		securityHeaders(cfg, w)

		_, _ = w.Write(quipboxCSS)
	}
}

func getJsHandler(cfg *Config) func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		w.Header().Set("Content-Type", "application/javascript; charset=utf-8")
		w.Header().Set("Cache-Control", "public, max-age=3600")
		w.Header().Set("Expires", time.Now().Add(time.Hour).UTC().Format(http.TimeFormat))
		securityHeaders(cfg, w)

		_, _ = w.Write(quipboxJS)
	}
}

// redirectNewGame handles GET /path by generating a new random game ID
// (with server-side collision detection) and redirecting to /path/:gameid.
func redirectNewGame(cfg *Config, path string, gm *GameManager) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		gameID := gm.newGameID()
		logf(cfg, "GAMES: Created game %s/%s", path, gameID)
		http.Redirect(w, r, path+"/"+gameID, http.StatusTemporaryRedirect)
	}
}

// registerQuipGame sets up routes so that:
//   - $path                  → redirects to new random game (8-char ID)
//   - $path/:gameid          → HTML client
//   - $path/:gameid/ws       → WebSocket for that game
//   - $path/:gameid/qr       → PNG QR code for that game URL
//   - $path/:gameid/debug    → diagnostic JSON snapshot
func registerQuipGame(cfg *Config, path string, mux *httprouter.Router) {
	gm := newGameManager(cfg, cfg.sessionTimeout)

	// Root path → redirect to new random game
	mux.GET(path, redirectNewGame(cfg, path, gm))

	// Per-game client view (HTML)
	mux.GET(cfg.prefix+path+"/:gameid", getIndexHandler(cfg))

	// Shared assets (no gameid in route)
	mux.GET(cfg.prefix+"/assets/quip/app.css", getCssHandler(cfg))
	mux.GET(cfg.prefix+"/assets/quip/app.js", getJsHandler(cfg))

	// Per-game websocket
	mux.GET(cfg.prefix+path+"/:gameid/ws", serveWSForManager(cfg, gm))

	// Per-game QR code
	mux.GET(cfg.prefix+path+"/:gameid/qr", qrHandler)

	// Per-game diagnostics
	mux.GET(cfg.prefix+path+"/:gameid/debug", debugHandler(gm))
}
