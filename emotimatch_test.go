package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/Seednode/emotimatch/games/emotimatch"
	"github.com/gorilla/websocket"
)

type testClient struct {
	t    *testing.T
	conn *websocket.Conn
}

type testEnvelope struct {
	Event   string            `json:"event"`
	Payload []json.RawMessage `json:"payload"`
}

func dial(t *testing.T, srv *httptest.Server, playerID string) *testClient {
	t.Helper()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"

	header := http.Header{}
	header.Set("Cookie", playerCookieName+"="+playerID)

	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	if err != nil {
		t.Fatalf("dial %s: %v", url, err)
	}
	t.Cleanup(func() { _ = conn.Close() })

	return &testClient{t: t, conn: conn}
}

func (c *testClient) send(msg ClientMessage) {
	c.t.Helper()

	if err := c.conn.WriteJSON(msg); err != nil {
		c.t.Fatalf("send %s: %v", msg.Type, err)
	}
}

// expect reads events until one named event arrives, skipping the rest.
// Each payload argument is decoded into the matching target.
func (c *testClient) expect(event string, targets ...any) {
	c.t.Helper()

	_ = c.conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	for {
		var env testEnvelope
		if err := c.conn.ReadJSON(&env); err != nil {
			c.t.Fatalf("waiting for %s: %v", event, err)
		}

		if env.Event != event {
			continue
		}

		if len(env.Payload) < len(targets) {
			c.t.Fatalf("%s carries %d arguments, want %d", event, len(env.Payload), len(targets))
		}

		for i, target := range targets {
			if err := json.Unmarshal(env.Payload[i], target); err != nil {
				c.t.Fatalf("decode %s argument %d: %v", event, i, err)
			}
		}

		return
	}
}

func (c *testClient) expectError(category, kind string) {
	c.t.Helper()

	var msg ErrorMessage
	c.expect(category, &msg)

	if msg.Type != kind {
		c.t.Errorf("%s type = %q, want %q", category, msg.Type, kind)
	}
	if msg.Message != errorMessage(category, kind) {
		c.t.Errorf("%s message = %q", category, msg.Message)
	}
}

func ptr[T any](v T) *T {
	return &v
}

func createRoom(t *testing.T, c *testClient, name string) emotimatch.RoomView {
	t.Helper()

	c.send(ClientMessage{Type: "createRoom", Name: name})

	var room emotimatch.RoomView
	c.expect("roomCreated", &room)

	return room
}

func TestFullGame(t *testing.T) {
	srv := newTestServer(t, testConfig())

	alice := dial(t, srv, "alice-id")
	bob := dial(t, srv, "bob-id")

	alice.send(ClientMessage{Type: "createRoom", Name: "   "})
	alice.expectError(errCreateRoom, errPlayerName)

	room := createRoom(t, alice, "alice")
	if len(room.ID) != 8 {
		t.Errorf("room id %q has length %d, want 8", room.ID, len(room.ID))
	}
	if len(room.Players) != 1 || room.Players[0].Name != "alice" {
		t.Errorf("roomCreated players = %+v, want alice", room.Players)
	}

	bob.send(ClientMessage{Type: "enterRoom", Name: "bob", RoomID: "00000000"})
	bob.expectError(errEnterRoom, errRoomID)

	bob.send(ClientMessage{Type: "enterRoom", Name: "bob", RoomID: room.ID})

	var entered RoomMessage
	bob.expect("roomEntered", &entered)
	if len(entered.Players) != 2 || entered.NewPlayer == nil || entered.NewPlayer.Name != "bob" {
		t.Errorf("roomEntered = %+v, want bob as second player", entered)
	}

	var joined RoomMessage
	alice.expect("newPlayer", &joined)
	if joined.NewPlayer == nil || joined.NewPlayer.Name != "bob" {
		t.Errorf("newPlayer = %+v, want bob", joined)
	}

	bob.send(ClientMessage{Type: "startGame", RoomID: room.ID})
	bob.expectError(errStartGame, errPermission)

	alice.send(ClientMessage{Type: "startGame", RoomID: room.ID})

	var (
		view       emotimatch.RoomView
		aliceRound emotimatch.PlayerInfo
		bobRound   emotimatch.PlayerInfo
	)
	alice.expect("roundStarted", &view, &aliceRound)
	bob.expect("roundStarted", &view, &bobRound)

	if aliceRound.PlayerID != 0 || bobRound.PlayerID != 1 {
		t.Fatalf("player ids = %d, %d, want 0, 1", aliceRound.PlayerID, bobRound.PlayerID)
	}
	if aliceRound.Round == nil || aliceRound.Round.Status != emotimatch.StatusStarted {
		t.Fatalf("roundStarted round = %+v, want started round", aliceRound.Round)
	}

	var solution, wrong string
	for _, symbol := range aliceRound.Card {
		if slices.Contains(bobRound.Card, symbol) {
			solution = symbol
		}
	}
	for _, symbol := range bobRound.Card {
		if symbol != solution {
			wrong = symbol
		}
	}
	if solution == "" || wrong == "" {
		t.Fatalf("cards %v and %v do not share exactly one symbol", aliceRound.Card, bobRound.Card)
	}

	var result emotimatch.AnswerResult

	bob.send(ClientMessage{Type: "checkSolution", RoomID: room.ID, Solution: ptr(wrong)})
	bob.expect("solutionChecked", &result)
	if result.Solution != emotimatch.VerdictIncorrect || result.Action != "penalty" {
		t.Errorf("wrong answer result = %+v, want incorrect with penalty", result)
	}

	bob.send(ClientMessage{Type: "checkSolution", RoomID: room.ID, Solution: ptr(solution)})
	bob.expect("solutionChecked", &result)
	if result.Solution != emotimatch.VerdictRejected || result.Reason != "penalty" {
		t.Errorf("answer during penalty result = %+v, want rejected", result)
	}

	alice.send(ClientMessage{Type: "checkSolution", RoomID: room.ID, Solution: ptr(solution)})
	alice.expect("solutionChecked", &result)
	if result.Solution != emotimatch.VerdictCorrect {
		t.Errorf("correct answer result = %+v, want correct", result)
	}

	var finished emotimatch.PlayerInfo
	bob.expect("roundFinished", &view, &finished)
	if finished.Round.Solution != solution {
		t.Errorf("roundFinished solution = %q, want %q", finished.Round.Solution, solution)
	}
	if finished.Round.WinnerID == nil || *finished.Round.WinnerID != 0 {
		t.Errorf("roundFinished winner = %v, want 0", finished.Round.WinnerID)
	}

	var final emotimatch.PlayerInfo
	alice.expect("gameFinished", &view, &final)
	if !slices.Equal(final.Scores, []int{1, 0}) {
		t.Errorf("final scores = %v, want [1 0]", final.Scores)
	}
	if !slices.Equal(final.Ranks, []int{1, 2}) {
		t.Errorf("final ranks = %v, want [1 2]", final.Ranks)
	}
	if view.GamesPlayed != 1 || !slices.Equal(view.Scores, []int{1, 0}) {
		t.Errorf("room after game = %+v, want one game played with scores [1 0]", view)
	}

	bob.send(ClientMessage{Type: "checkSolution", RoomID: room.ID, Solution: ptr(solution)})
	bob.expectError(errCheckSolution, errGameFinished)

	bob.send(ClientMessage{Type: "leaveRoom", RoomID: room.ID})

	var left RoomMessage
	bob.expect("leftRoom", &left)
	if left.FormerPlayer == nil || left.FormerPlayer.Name != "bob" || len(left.Players) != 1 {
		t.Errorf("leftRoom = %+v, want bob gone", left)
	}
	alice.expect("playerLeft", &left)

	alice.send(ClientMessage{Type: "leaveRoom", RoomID: room.ID})
	alice.expect("roomDestructed", &view)
	if view.ID != room.ID {
		t.Errorf("roomDestructed id = %q, want %q", view.ID, room.ID)
	}

	var closed RoomClosedMessage
	alice.send(ClientMessage{Type: "destructRoom", RoomID: room.ID})
	alice.expect("roomDestructed", &closed)
	if closed.ID != room.ID {
		t.Errorf("repeated roomDestructed id = %q, want %q", closed.ID, room.ID)
	}
}

func TestOwnerClosesRoom(t *testing.T) {
	srv := newTestServer(t, testConfig())

	alice := dial(t, srv, "alice-id")
	bob := dial(t, srv, "bob-id")

	room := createRoom(t, alice, "alice")

	bob.send(ClientMessage{Type: "enterRoom", Name: "bob", RoomID: room.ID})
	bob.expect("roomEntered")

	bob.send(ClientMessage{Type: "destructRoom", RoomID: room.ID})
	bob.expectError(errDestructRoom, errPermission)

	alice.send(ClientMessage{Type: "destructRoom", RoomID: room.ID})

	var view emotimatch.RoomView
	bob.expect("roomDestructed", &view)
	if view.ID != room.ID {
		t.Errorf("roomDestructed id = %q, want %q", view.ID, room.ID)
	}

	bob.send(ClientMessage{Type: "startGame", RoomID: room.ID})
	bob.expectError(errStartGame, errRoomID)
}

func TestRoomLimits(t *testing.T) {
	cfg := testConfig()
	cfg.maxRooms = 1
	cfg.maxPlayers = 1

	srv := newTestServer(t, cfg)

	alice := dial(t, srv, "alice-id")
	bob := dial(t, srv, "bob-id")

	room := createRoom(t, alice, "alice")

	bob.send(ClientMessage{Type: "createRoom", Name: "bob"})
	bob.expectError(errCreateRoom, errMaxRooms)

	bob.send(ClientMessage{Type: "enterRoom", Name: "bob", RoomID: room.ID})
	bob.expectError(errEnterRoom, errMaxPlayers)
}

func TestReconnectKeepsSeat(t *testing.T) {
	srv := newTestServer(t, testConfig())

	first := dial(t, srv, "alice-id")
	room := createRoom(t, first, "alice")
	_ = first.conn.Close()

	second := dial(t, srv, "alice-id")
	second.send(ClientMessage{Type: "enterRoom", Name: "alice", RoomID: room.ID})

	var entered RoomMessage
	second.expect("roomEntered", &entered)
	if len(entered.Players) != 1 {
		t.Errorf("players after reconnect = %+v, want one", entered.Players)
	}

	// still the owner, so starting a game is allowed
	second.send(ClientMessage{Type: "startGame", RoomID: room.ID})
	second.expect("gameStarted")

	second.send(ClientMessage{Type: "startGame", RoomID: room.ID})
	second.expectError(errStartGame, errGameOngoing)
}

func TestQRCode(t *testing.T) {
	srv := newTestServer(t, testConfig())

	alice := dial(t, srv, "alice-id")
	room := createRoom(t, alice, "alice")

	resp, body := get(t, srv.URL+"/room/"+room.ID+"/qr")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if got := resp.Header.Get("Content-Type"); got != "image/png" {
		t.Errorf("Content-Type = %q, want image/png", got)
	}
	if !strings.HasPrefix(body, "\x89PNG") {
		t.Error("body is not a PNG")
	}

	if resp, _ := get(t, srv.URL+"/room/ffffffff/qr"); resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown room status = %d, want 404", resp.StatusCode)
	}
}

func TestDisconnectedPlayerIsRemoved(t *testing.T) {
	cfg := testConfig()
	cfg.playerTimeout = 20 * time.Millisecond

	srv := newTestServer(t, cfg)

	alice := dial(t, srv, "alice-id")
	bob := dial(t, srv, "bob-id")

	room := createRoom(t, alice, "alice")

	bob.send(ClientMessage{Type: "enterRoom", Name: "bob", RoomID: room.ID})
	bob.expect("roomEntered")
	alice.expect("newPlayer")

	_ = bob.conn.Close()

	var left RoomMessage
	alice.expect("playerLeft", &left)
	if left.FormerPlayer == nil || left.FormerPlayer.Name != "bob" || len(left.Players) != 1 {
		t.Errorf("playerLeft = %+v, want bob removed", left)
	}
}

func TestIdleRoomIsReaped(t *testing.T) {
	cfg := testConfig()
	cfg.sessionTimeout = 40 * time.Millisecond

	srv := newTestServer(t, cfg)

	alice := dial(t, srv, "alice-id")
	room := createRoom(t, alice, "alice")

	var view emotimatch.RoomView
	alice.expect("roomDestructed", &view)
	if view.ID != room.ID {
		t.Errorf("roomDestructed id = %q, want %q", view.ID, room.ID)
	}

	alice.send(ClientMessage{Type: "enterRoom", Name: "alice", RoomID: room.ID})
	alice.expectError(errEnterRoom, errRoomID)
}

func TestReconnectIntoFullRoom(t *testing.T) {
	cfg := testConfig()
	cfg.maxPlayers = 2

	srv := newTestServer(t, cfg)

	alice := dial(t, srv, "alice-id")
	bob := dial(t, srv, "bob-id")

	room := createRoom(t, alice, "alice")

	bob.send(ClientMessage{Type: "enterRoom", Name: "bob", RoomID: room.ID})
	bob.expect("roomEntered")
	alice.expect("newPlayer")

	_ = bob.conn.Close()

	again := dial(t, srv, "bob-id")
	again.send(ClientMessage{Type: "enterRoom", Name: "bob", RoomID: room.ID})

	var entered RoomMessage
	again.expect("roomEntered", &entered)
	if len(entered.Players) != 2 {
		t.Errorf("players after reconnect = %+v, want two", entered.Players)
	}

	alice.send(ClientMessage{Type: "startGame", RoomID: room.ID})

	var info emotimatch.PlayerInfo
	again.expect("gameStarted", &emotimatch.RoomView{}, &info)
	if info.PlayerID != 1 {
		t.Errorf("reconnected player id = %d, want 1", info.PlayerID)
	}
}

func TestCreateRoomIDSpaceExhausted(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rooms := emotimatch.NewRegistry(4, 4, emotimatch.WithRandom(bytes.NewReader(make([]byte, 1024))))
	ms := newMatchServer(testConfig(), rooms)

	alice := &Client{send: make(chan Envelope, 4), id: "alice-id"}
	ms.handle(ctx, alice, ClientMessage{Type: "createRoom", Name: "alice"})

	if env := <-alice.send; env.Event != "roomCreated" {
		t.Fatalf("first createRoom event = %s, want roomCreated", env.Event)
	}

	bob := &Client{send: make(chan Envelope, 4), id: "bob-id"}
	ms.handle(ctx, bob, ClientMessage{Type: "createRoom", Name: "bob"})

	env := <-bob.send
	if env.Event != errCreateRoom {
		t.Fatalf("second createRoom event = %s, want %s", env.Event, errCreateRoom)
	}

	msg, ok := env.Payload[0].(ErrorMessage)
	if !ok || msg.Type != errUnknown {
		t.Errorf("second createRoom error = %+v, want %s", env.Payload[0], errUnknown)
	}
}
