/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package emotimatch

import (
	"sync"
	"time"
)

// Room is a roster of participants sharing one game session. The participant
// at index 0 owns the room.
type Room struct {
	id       string
	capacity int

	mu           sync.RWMutex
	participants []Participant
	scores       []int
	game         *Engine
	gamesPlayed  int
	lastActive   time.Time
}

// RoomView is the public snapshot of a room. It never carries connection ids.
type RoomView struct {
	ID          string       `json:"id"`
	Players     []PlayerView `json:"players"`
	Scores      []int        `json:"scores"`
	GamesPlayed int          `json:"gamesPlayed"`
}

func NewRoom(id string, capacity int) *Room {
	return &Room{
		id:         id,
		capacity:   capacity,
		lastActive: time.Now(),
	}
}

func (r *Room) ID() string {
	return r.id
}

func (r *Room) Capacity() int {
	return r.capacity
}

// AddParticipant appends p with a fresh score, or replaces the participant
// holding the same connection id in place. It returns false if the room is
// already full.
func (r *Room) AddParticipant(p Participant) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.participants) >= r.capacity {
		return false
	}

	r.lastActive = time.Now()

	if i := r.indexLocked(p.ID()); i >= 0 {
		r.participants[i] = p

		return true
	}

	r.participants = append(r.participants, p)
	r.scores = append(r.scores, 0)

	return true
}

// Rejoin replaces the participant holding p's connection id in place,
// keeping its seat and score. Capacity is not checked since the seat is
// already taken. It returns false if p holds no seat.
func (r *Room) Rejoin(p Participant) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.indexLocked(p.ID())
	if i < 0 {
		return false
	}

	r.participants[i] = p
	r.lastActive = time.Now()

	return true
}

// RemoveParticipant removes p and its score slot.
func (r *Room) RemoveParticipant(p Participant) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.indexLocked(p.ID())
	if i < 0 {
		return false
	}

	r.participants = append(r.participants[:i], r.participants[i+1:]...)
	r.scores = append(r.scores[:i], r.scores[i+1:]...)
	r.lastActive = time.Now()

	return true
}

// FindByConnection returns the index and participant holding id, or -1.
func (r *Room) FindByConnection(id ConnID) (int, Participant, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	i := r.indexLocked(id)
	if i < 0 {
		return -1, Participant{}, false
	}

	return i, r.participants[i], true
}

func (r *Room) indexLocked(id ConnID) int {
	for i, p := range r.participants {
		if p.ID() == id {
			return i
		}
	}

	return -1
}

// Owner returns the participant at index 0.
func (r *Room) Owner() (Participant, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.participants) == 0 {
		return Participant{}, false
	}

	return r.participants[0], true
}

// Participants returns a snapshot of the roster in join order.
func (r *Room) Participants() []Participant {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Participant, len(r.participants))
	copy(out, r.participants)

	return out
}

func (r *Room) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.participants)
}

func (r *Room) IsFull() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.participants) >= r.capacity
}

// BindGame binds e unless an unfinished game is already bound.
func (r *Room) BindGame(e *Engine) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.game != nil && !r.game.IsFinished() {
		return false
	}

	r.game = e
	r.lastActive = time.Now()

	return true
}

// UnbindGame detaches the bound game and returns it.
func (r *Room) UnbindGame() *Engine {
	r.mu.Lock()
	defer r.mu.Unlock()

	e := r.game
	r.game = nil

	return e
}

func (r *Room) Game() *Engine {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.game
}

// IsGameFinished reports whether no game is running. A room without a
// game counts as finished.
func (r *Room) IsGameFinished() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.game == nil || r.game.IsFinished()
}

// RecordGame adds the scores of a finished game to the room. Scores are
// matched to the current roster by connection id, so participants who left
// mid-game are skipped.
func (r *Room) RecordGame(roster []Participant, scores []int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for pid, p := range roster {
		if pid >= len(scores) {
			break
		}

		if i := r.indexLocked(p.ID()); i >= 0 {
			r.scores[i] += scores[pid]
		}
	}

	r.gamesPlayed++
	r.lastActive = time.Now()
}

// Touch marks the room as active.
func (r *Room) Touch() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.lastActive = time.Now()
}

func (r *Room) LastActive() time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.lastActive
}

func (r *Room) PublicView() RoomView {
	r.mu.RLock()
	defer r.mu.RUnlock()

	players := make([]PlayerView, 0, len(r.participants))
	for _, p := range r.participants {
		players = append(players, p.PublicInfo())
	}

	scores := make([]int, len(r.scores))
	copy(scores, r.scores)

	return RoomView{
		ID:          r.id,
		Players:     players,
		Scores:      scores,
		GamesPlayed: r.gamesPlayed,
	}
}
