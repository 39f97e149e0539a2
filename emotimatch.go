// EmotiMatch
//
// Players gather in a room, and the room's owner starts a game. Each round
// every player is dealt a card of emoji. Exactly one emoji is on every card,
// and the first player to click it wins the round and gets a bigger card
// next time. Wrong clicks block the player for a short penalty.
//
// Features:
// - One websocket per browser tab at /ws; rooms are addressed by id in messages
// - Rooms get random hex ids sized to the configured room limit
// - The player who creates a room owns it: only they can start games or close it
// - The room closes when its owner leaves
// - Players are identified by cookie, so a reload re-enters with the same standing
// - Disconnected players are removed after a configurable timeout
// - Idle rooms are reaped after a configurable timeout
// - QR code per room, backed by go-qrcode

package main

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/Seednode/emotimatch/games/emotimatch"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/skip2/go-qrcode"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 1024

	maxNameLength = 32
)

// Messages coming from clients
type ClientMessage struct {
	Type     string  `json:"type"`               // "createRoom", "enterRoom", "destructRoom", "leaveRoom", "startGame", "checkSolution"
	Name     string  `json:"name,omitempty"`     // createRoom / enterRoom
	RoomID   string  `json:"roomId,omitempty"`   // everything but createRoom
	Solution *string `json:"solution,omitempty"` // checkSolution
}

// Envelope carries one event to a client. The payload holds the event's
// arguments in order.
type Envelope struct {
	Event   string `json:"event"`
	Payload []any  `json:"payload"`
}

// RoomMessage is the room view, plus the player who just joined or left.
type RoomMessage struct {
	emotimatch.RoomView
	NewPlayer    *emotimatch.PlayerView `json:"newPlayer,omitempty"`
	FormerPlayer *emotimatch.PlayerView `json:"formerPlayer,omitempty"`
}

// RoomClosedMessage confirms a room is gone, for rooms that no longer exist.
type RoomClosedMessage struct {
	ID string `json:"id"`
}

type Client struct {
	conn *websocket.Conn
	send chan Envelope
	id   emotimatch.ConnID

	mu     sync.Mutex
	closed bool
}

// Emit queues an event for the client. A client that cannot keep up is
// disconnected.
func (c *Client) Emit(event string, payload ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}

	select {
	case c.send <- Envelope{Event: event, Payload: payload}:
	default:
		c.closed = true
		close(c.send)
	}
}

func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

type clientRequest struct {
	client *Client
	msg    ClientMessage
}

// MatchServer routes client actions to rooms and games. All room mutations
// happen on the run goroutine.
type MatchServer struct {
	cfg   *Config
	rooms *emotimatch.Registry
	opts  emotimatch.Options

	register chan *Client
	unreg    chan *Client
	requests chan clientRequest
	removals chan emotimatch.ConnID

	clients map[*Client]bool
	rosters map[string][]emotimatch.Participant
}

func newMatchServer(cfg *Config, rooms *emotimatch.Registry) *MatchServer {
	return &MatchServer{
		cfg:      cfg,
		rooms:    rooms,
		opts:     cfg.gameOptions(),
		register: make(chan *Client),
		unreg:    make(chan *Client),
		requests: make(chan clientRequest),
		removals: make(chan emotimatch.ConnID),
		clients:  make(map[*Client]bool),
		rosters:  make(map[string][]emotimatch.Participant),
	}
}

func (ms *MatchServer) run(ctx context.Context) {
	var reap <-chan time.Time
	if ms.cfg.sessionTimeout > 0 {
		ticker := time.NewTicker(ms.cfg.sessionTimeout / 2)
		defer ticker.Stop()

		reap = ticker.C
	}

	for {
		select {
		case c := <-ms.register:
			ms.clients[c] = true

		case c := <-ms.unreg:
			if _, ok := ms.clients[c]; ok {
				delete(ms.clients, c)
				c.close()
			}

			if ms.cfg.playerTimeout > 0 {
				id := c.id
				time.AfterFunc(ms.cfg.playerTimeout, func() {
					select {
					case ms.removals <- id:
					case <-ctx.Done():
					}
				})
			}

		case id := <-ms.removals:
			ms.removeDisconnected(id)

		case req := <-ms.requests:
			ms.handle(ctx, req.client, req.msg)

		case <-reap:
			ms.reapIdleRooms()

		case <-ctx.Done():
			for _, room := range ms.rooms.Rooms() {
				if game := room.UnbindGame(); game != nil {
					game.Abort()
				}
			}
			for c := range ms.clients {
				c.close()
				_ = c.conn.Close()
			}
			return
		}
	}
}

func (ms *MatchServer) handle(ctx context.Context, c *Client, msg ClientMessage) {
	switch msg.Type {
	case "createRoom":
		ms.onCreateRoom(c, msg)
	case "enterRoom":
		ms.onEnterRoom(c, msg)
	case "destructRoom":
		ms.onDestructRoom(c, msg)
	case "leaveRoom":
		ms.onLeaveRoom(c, msg)
	case "startGame":
		ms.onStartGame(ctx, c, msg)
	case "checkSolution":
		ms.onCheckSolution(c, msg)
	default:
		// ignore unknown types
	}
}

func (ms *MatchServer) processError(c *Client, category, kind string) {
	message := errorMessage(category, kind)

	c.Emit(category, ErrorMessage{Type: kind, Message: message})

	logf(ms.cfg, "ROOMS: %s %s %s", category, kind, message)
}

func validName(name string) bool {
	name = strings.TrimSpace(name)

	return name != "" && len(name) <= maxNameLength
}

func (ms *MatchServer) onCreateRoom(c *Client, msg ClientMessage) {
	if !validName(msg.Name) {
		ms.processError(c, errCreateRoom, errPlayerName)

		return
	}

	room, err := ms.rooms.CreateRoom(ms.cfg.maxPlayers)
	switch {
	case errors.Is(err, emotimatch.ErrRegistryFull):
		ms.processError(c, errCreateRoom, errMaxRooms)

		return
	case err != nil:
		errorf("create room: %v", err)
		ms.processError(c, errCreateRoom, errUnknown)

		return
	}

	player := emotimatch.NewParticipant(c.id, strings.TrimSpace(msg.Name), c)
	room.AddParticipant(player)

	c.Emit("roomCreated", room.PublicView())

	logf(ms.cfg, "ROOMS: %s created room %s", player, room.ID())
}

func (ms *MatchServer) onEnterRoom(c *Client, msg ClientMessage) {
	if !validName(msg.Name) {
		ms.processError(c, errEnterRoom, errPlayerName)

		return
	}

	room, ok := ms.rooms.GetRoom(msg.RoomID)
	if !ok {
		ms.processError(c, errEnterRoom, errRoomID)

		return
	}

	player := emotimatch.NewParticipant(c.id, strings.TrimSpace(msg.Name), c)
	if !room.Rejoin(player) && !room.AddParticipant(player) {
		ms.processError(c, errEnterRoom, errMaxPlayers)

		return
	}

	info := player.PublicInfo()
	roomInfo := RoomMessage{RoomView: room.PublicView(), NewPlayer: &info}

	for _, p := range room.Participants() {
		if p.ID() == player.ID() {
			p.Emit("roomEntered", roomInfo)
		} else {
			p.Emit("newPlayer", roomInfo)
		}
	}

	logf(ms.cfg, "ROOMS: %s entered room %s", player, room.ID())
}

func (ms *MatchServer) destructRoom(room *emotimatch.Room) {
	ms.rooms.RemoveRoom(room.ID())
	delete(ms.rosters, room.ID())

	if game := room.UnbindGame(); game != nil {
		game.Abort()
	}

	roomInfo := room.PublicView()
	for _, p := range room.Participants() {
		p.Emit("roomDestructed", roomInfo)
	}
}

func (ms *MatchServer) onDestructRoom(c *Client, msg ClientMessage) {
	room, ok := ms.rooms.GetRoom(msg.RoomID)
	if !ok {
		// confirm anyway, e.g. after the server restarted
		c.Emit("roomDestructed", RoomClosedMessage{ID: msg.RoomID})

		return
	}

	pid, player, _ := room.FindByConnection(c.id)
	if pid != 0 {
		ms.processError(c, errDestructRoom, errPermission)

		return
	}

	ms.destructRoom(room)

	logf(ms.cfg, "ROOMS: %s destructed room %s", player, room.ID())
}

func (ms *MatchServer) onLeaveRoom(c *Client, msg ClientMessage) {
	room, ok := ms.rooms.GetRoom(msg.RoomID)
	if !ok {
		c.Emit("leftRoom", RoomClosedMessage{ID: msg.RoomID})

		return
	}

	ms.leave(room, c.id, c)
}

// leave removes the participant holding id from room, closing the room if
// they own it. reply, if set, receives the confirmation.
func (ms *MatchServer) leave(room *emotimatch.Room, id emotimatch.ConnID, reply emotimatch.Emitter) {
	pid, former, ok := room.FindByConnection(id)

	switch {
	case !ok:
		if reply != nil {
			reply.Emit("leftRoom", RoomClosedMessage{ID: room.ID()})
		}
	case pid == 0:
		ms.destructRoom(room)

		logf(ms.cfg, "ROOMS: %s left and destructed room %s", former, room.ID())
	default:
		room.RemoveParticipant(former)

		info := former.PublicInfo()
		roomInfo := RoomMessage{RoomView: room.PublicView(), FormerPlayer: &info}

		if reply != nil {
			reply.Emit("leftRoom", roomInfo)
		}
		for _, p := range room.Participants() {
			p.Emit("playerLeft", roomInfo)
		}

		logf(ms.cfg, "ROOMS: %s left room %s", former, room.ID())
	}
}

func (ms *MatchServer) onStartGame(ctx context.Context, c *Client, msg ClientMessage) {
	room, ok := ms.rooms.GetRoom(msg.RoomID)
	if !ok {
		ms.processError(c, errStartGame, errRoomID)

		return
	}

	if !room.IsGameFinished() {
		ms.processError(c, errStartGame, errGameOngoing)

		return
	}

	if pid, _, _ := room.FindByConnection(c.id); pid != 0 {
		ms.processError(c, errStartGame, errPermission)

		return
	}

	roster := room.Participants()

	game, err := emotimatch.NewEngine(len(roster), ms.opts)
	if err != nil {
		errorf("start game in room %s: %v", room.ID(), err)
		ms.processError(c, errStartGame, errUnknown)

		return
	}

	if !room.BindGame(game) {
		ms.processError(c, errStartGame, errGameOngoing)

		return
	}

	ms.rosters[room.ID()] = roster

	go ms.play(ctx, room, roster, game)

	logf(ms.cfg, "GAMES: Started game with %d players in room %s", len(roster), room.ID())
}

// play runs game to completion, forwarding its events to the players of
// roster who are still in room.
func (ms *MatchServer) play(ctx context.Context, room *emotimatch.Room, roster []emotimatch.Participant, game *emotimatch.Engine) {
	send := func(status string) func([]emotimatch.PlayerInfo) {
		return func(infos []emotimatch.PlayerInfo) {
			ms.sendGameStatus(room, roster, status, infos)
		}
	}

	cb := emotimatch.Callbacks{
		GameStarted:   send("gameStarted"),
		RoundPrepared: send("roundPrepared"),
		RoundStarted:  send("roundStarted"),
		RoundFinished: send("roundFinished"),
		GameFinished: func(infos []emotimatch.PlayerInfo) {
			if len(infos) > 0 {
				room.RecordGame(roster, infos[0].Scores)
			}
			ms.sendGameStatus(room, roster, "gameFinished", infos)
		},
	}

	err := game.Run(ctx, cb)
	switch {
	case err == nil:
		logf(ms.cfg, "GAMES: Finished game in room %s with scores %v", room.ID(), game.Scores())
	case errors.Is(err, emotimatch.ErrAborted):
		logf(ms.cfg, "GAMES: Aborted game in room %s", room.ID())
	default:
		errorf("game in room %s: %v", room.ID(), err)
	}
}

func (ms *MatchServer) sendGameStatus(room *emotimatch.Room, roster []emotimatch.Participant, status string, infos []emotimatch.PlayerInfo) {
	room.Touch()

	roomInfo := room.PublicView()

	for pid, p := range roster {
		if pid >= len(infos) {
			break
		}

		// deliver to the current connection, in case the player reconnected
		if _, current, ok := room.FindByConnection(p.ID()); ok {
			current.Emit(status, roomInfo, infos[pid])
		}
	}
}

func (ms *MatchServer) onCheckSolution(c *Client, msg ClientMessage) {
	room, ok := ms.rooms.GetRoom(msg.RoomID)
	if !ok {
		ms.processError(c, errCheckSolution, errRoomID)

		return
	}

	if room.IsGameFinished() {
		ms.processError(c, errCheckSolution, errGameFinished)

		return
	}

	if _, _, ok := room.FindByConnection(c.id); !ok {
		ms.processError(c, errCheckSolution, errPlayerNotFound)

		return
	}

	pid := -1
	for i, p := range ms.rosters[room.ID()] {
		if p.ID() == c.id {
			pid = i

			break
		}
	}
	if pid < 0 {
		ms.processError(c, errCheckSolution, errPlayerNotFound)

		return
	}

	// anything but a solution proposal is ignored
	if msg.Solution == nil {
		return
	}

	game := room.Game()
	if game == nil {
		return
	}

	if result, ok := game.SubmitAnswer(pid, *msg.Solution); ok {
		c.Emit("solutionChecked", result)
	}
}

// removeDisconnected removes the participant holding id from every room,
// unless they have reconnected in the meantime.
func (ms *MatchServer) removeDisconnected(id emotimatch.ConnID) {
	for c := range ms.clients {
		if c.id == id {
			return
		}
	}

	for _, room := range ms.rooms.Rooms() {
		if _, _, ok := room.FindByConnection(id); ok {
			ms.leave(room, id, nil)
		}
	}
}

func (ms *MatchServer) reapIdleRooms() {
	for _, room := range ms.rooms.ReapIdle(ms.cfg.sessionTimeout) {
		delete(ms.rosters, room.ID())

		if game := room.UnbindGame(); game != nil {
			game.Abort()
		}

		for _, p := range room.Participants() {
			p.Emit("roomDestructed", room.PublicView())
		}

		logf(ms.cfg, "ROOMS: Reaped idle room %s", room.ID())
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

const playerCookieName = "emotimatch_id"

func getOrSetPlayerID(w http.ResponseWriter, r *http.Request) string {
	if c, err := r.Cookie(playerCookieName); err == nil && c.Value != "" {
		return c.Value
	}

	id := uuid.NewString()

	http.SetCookie(w, &http.Cookie{
		Name:     playerCookieName,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	return id
}

func serveWS(ctx context.Context, cfg *Config, ms *MatchServer) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		playerID := getOrSetPlayerID(w, r)

		conn, err := upgrader.Upgrade(w, r, w.Header())
		if err != nil {
			logf(cfg, "SERVE: Websocket upgrade for %s failed: %v", realIP(r), err)

			return
		}

		client := &Client{
			conn: conn,
			send: make(chan Envelope, 32),
			id:   emotimatch.ConnID(playerID),
		}

		select {
		case ms.register <- client:
		case <-ctx.Done():
			_ = conn.Close()

			return
		}

		logf(cfg, "SERVE: Websocket connected for %s", realIP(r))

		go client.writePump()
		client.readPump(ctx, ms)
	}
}

func (c *Client) readPump(ctx context.Context, ms *MatchServer) {
	defer func() {
		select {
		case ms.unreg <- c:
		case <-ctx.Done():
		}
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg ClientMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			return
		}

		select {
		case ms.requests <- clientRequest{client: c, msg: msg}:
		case <-ctx.Done():
			return
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// QR handler: generates a PNG QR code linking to a room's page.
func qrHandler(cfg *Config, rooms *emotimatch.Registry, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		roomID := ps.ByName("roomid")
		if !rooms.HasRoom(roomID) {
			http.NotFound(w, r)

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

		url := scheme + "://" + r.Host + cfg.prefix + "/room/" + roomID

		const qrSize = 320 // mobile-friendly size
		png, err := qrcode.Encode(url, qrcode.Medium, qrSize)
		if err != nil {
			http.Error(w, "qr generation failed", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Cache-Control", "no-store")
		securityHeaders(cfg, w)

		if _, err := w.Write(png); err != nil {
			errs <- err
		}
	}
}

// registerEmotiMatch sets up routes so that:
//   - /ws                → websocket for all room and game events
//   - /room/:roomid      → HTML client, pre-filled to enter the room
//   - /room/:roomid/qr   → PNG QR code for the room page
func registerEmotiMatch(ctx context.Context, cfg *Config, mux *httprouter.Router, errs chan<- error) *MatchServer {
	ms := newMatchServer(cfg, emotimatch.NewRegistry(cfg.maxRooms, cfg.maxPlayers))

	go ms.run(ctx)

	mux.GET(cfg.prefix+"/ws", serveWS(ctx, cfg, ms))

	mux.GET(cfg.prefix+"/room/:roomid", serveHomePage(cfg, errs))

	mux.GET(cfg.prefix+"/room/:roomid/qr", qrHandler(cfg, ms.rooms, errs))

	return ms
}
