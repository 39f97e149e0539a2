/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package emotimatch

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"math"
	"sync"
	"time"
)

const (
	// Added to the id length so ids stay hard to guess with few rooms.
	roomIDExtraBytes = 3
	roomIDTries      = 10
)

var (
	ErrRegistryFull     = errors.New("maximum number of rooms reached")
	ErrIDSpaceExhausted = errors.New("cannot create new room (room id space too small for capacity)")
)

// Registry issues room ids and owns the rooms created with them.
type Registry struct {
	capacity            int
	defaultRoomCapacity int
	idBytes             int
	random              io.Reader

	mu    sync.RWMutex
	rooms map[string]*Room
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithRandom sets the source room ids are read from. Defaults to
// crypto/rand.Reader.
func WithRandom(r io.Reader) RegistryOption {
	return func(rg *Registry) {
		rg.random = r
	}
}

// NewRegistry creates a registry holding at most capacity rooms, each with
// defaultRoomCapacity participants unless overridden on creation.
func NewRegistry(capacity, defaultRoomCapacity int, opts ...RegistryOption) *Registry {
	rg := &Registry{
		capacity:            capacity,
		defaultRoomCapacity: defaultRoomCapacity,
		idBytes:             roomIDBytes(capacity),
		random:              rand.Reader,
		rooms:               make(map[string]*Room),
	}

	for _, opt := range opts {
		opt(rg)
	}

	return rg
}

// roomIDBytes is the number of bytes needed to count capacity rooms, plus
// roomIDExtraBytes.
func roomIDBytes(capacity int) int {
	bits := 0.0
	if capacity > 1 {
		bits = math.Log2(float64(capacity))
	}

	return int(math.Ceil(bits/8)) + roomIDExtraBytes
}

// IDLength returns the length of room id strings.
func (rg *Registry) IDLength() int {
	return rg.idBytes * 2
}

func (rg *Registry) generateID() (string, error) {
	buf := make([]byte, rg.idBytes)
	if _, err := io.ReadFull(rg.random, buf); err != nil {
		return "", fmt.Errorf("read room id: %w", err)
	}

	return hex.EncodeToString(buf), nil
}

func (rg *Registry) Len() int {
	rg.mu.RLock()
	defer rg.mu.RUnlock()

	return len(rg.rooms)
}

func (rg *Registry) IsFull() bool {
	rg.mu.RLock()
	defer rg.mu.RUnlock()

	return len(rg.rooms) >= rg.capacity
}

// CreateRoom creates a room with the given participant capacity, or the
// default one if capacity is not positive. It returns ErrRegistryFull when no
// more rooms are allowed, and ErrIDSpaceExhausted if no unused id was found.
func (rg *Registry) CreateRoom(capacity int) (*Room, error) {
	rg.mu.Lock()
	defer rg.mu.Unlock()

	if len(rg.rooms) >= rg.capacity {
		return nil, ErrRegistryFull
	}

	if capacity <= 0 {
		capacity = rg.defaultRoomCapacity
	}

	for range roomIDTries {
		id, err := rg.generateID()
		if err != nil {
			return nil, err
		}

		if _, exists := rg.rooms[id]; exists {
			continue
		}

		room := NewRoom(id, capacity)
		rg.rooms[id] = room

		return room, nil
	}

	return nil, ErrIDSpaceExhausted
}

func (rg *Registry) HasRoom(id string) bool {
	rg.mu.RLock()
	defer rg.mu.RUnlock()

	_, ok := rg.rooms[id]

	return ok
}

func (rg *Registry) GetRoom(id string) (*Room, bool) {
	rg.mu.RLock()
	defer rg.mu.RUnlock()

	room, ok := rg.rooms[id]

	return room, ok
}

func (rg *Registry) RemoveRoom(id string) bool {
	rg.mu.Lock()
	defer rg.mu.Unlock()

	if _, ok := rg.rooms[id]; !ok {
		return false
	}

	delete(rg.rooms, id)

	return true
}

// Rooms returns a snapshot of all rooms.
func (rg *Registry) Rooms() []*Room {
	rg.mu.RLock()
	defer rg.mu.RUnlock()

	out := make([]*Room, 0, len(rg.rooms))
	for _, room := range rg.rooms {
		out = append(out, room)
	}

	return out
}

// ReapIdle removes rooms idle for longer than maxIdle and returns them.
func (rg *Registry) ReapIdle(maxIdle time.Duration) []*Room {
	cutoff := time.Now().Add(-maxIdle)

	rg.mu.Lock()
	defer rg.mu.Unlock()

	var reaped []*Room
	for id, room := range rg.rooms {
		if room.LastActive().Before(cutoff) {
			delete(rg.rooms, id)
			reaped = append(reaped, room)
		}
	}

	return reaped
}
