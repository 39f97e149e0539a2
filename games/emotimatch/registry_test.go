package emotimatch

import (
	"bytes"
	"errors"
	"regexp"
	"testing"
	"time"
)

func TestRoomIDBytes(t *testing.T) {
	tests := []struct {
		capacity int
		want     int
	}{
		{1, 3},
		{2, 4},
		{9, 4},
		{256, 4},
		{257, 5},
		{65536, 5},
		{65537, 6},
	}

	for _, tt := range tests {
		if got := roomIDBytes(tt.capacity); got != tt.want {
			t.Errorf("roomIDBytes(%d) = %d, want %d", tt.capacity, got, tt.want)
		}
	}
}

func TestRegistryCreateRoom(t *testing.T) {
	rg := NewRegistry(9, 5)

	hexID := regexp.MustCompile(`^[0-9a-f]+$`)
	seen := make(map[string]bool)

	for range 9 {
		room, err := rg.CreateRoom(0)
		if err != nil {
			t.Fatalf("CreateRoom() error = %v", err)
		}

		if len(room.ID()) != rg.IDLength() {
			t.Errorf("room id %q has length %d, want %d", room.ID(), len(room.ID()), rg.IDLength())
		}
		if !hexID.MatchString(room.ID()) {
			t.Errorf("room id %q is not lowercase hex", room.ID())
		}
		if seen[room.ID()] {
			t.Errorf("room id %q issued twice", room.ID())
		}
		seen[room.ID()] = true

		if room.Capacity() != 5 {
			t.Errorf("room capacity = %d, want default 5", room.Capacity())
		}
	}

	if !rg.IsFull() {
		t.Error("IsFull() = false after creating capacity rooms")
	}

	if _, err := rg.CreateRoom(0); !errors.Is(err, ErrRegistryFull) {
		t.Errorf("CreateRoom() on full registry error = %v, want ErrRegistryFull", err)
	}

	if rg.Len() != 9 {
		t.Errorf("Len() = %d, want 9", rg.Len())
	}
}

func TestRegistryCreateRoomCapacityOverride(t *testing.T) {
	rg := NewRegistry(2, 5)

	room, err := rg.CreateRoom(2)
	if err != nil {
		t.Fatalf("CreateRoom(2) error = %v", err)
	}

	if room.Capacity() != 2 {
		t.Errorf("room capacity = %d, want 2", room.Capacity())
	}
}

func TestRegistryIDSpaceExhausted(t *testing.T) {
	rg := NewRegistry(4, 5, WithRandom(bytes.NewReader(make([]byte, 1024))))

	first, err := rg.CreateRoom(0)
	if err != nil {
		t.Fatalf("first CreateRoom() error = %v", err)
	}
	if first.ID() != "00000000" {
		t.Errorf("first room id = %q, want 00000000", first.ID())
	}

	_, err = rg.CreateRoom(0)
	if !errors.Is(err, ErrIDSpaceExhausted) {
		t.Fatalf("CreateRoom() with colliding ids error = %v, want ErrIDSpaceExhausted", err)
	}

	if rg.Len() != 1 {
		t.Errorf("Len() = %d after failed creation, want 1", rg.Len())
	}
}

func TestRegistryLookupAndRemove(t *testing.T) {
	rg := NewRegistry(3, 3)

	room, err := rg.CreateRoom(0)
	if err != nil {
		t.Fatalf("CreateRoom() error = %v", err)
	}

	if !rg.HasRoom(room.ID()) {
		t.Error("HasRoom() = false for created room")
	}
	if got, ok := rg.GetRoom(room.ID()); !ok || got != room {
		t.Error("GetRoom() did not return the created room")
	}
	if _, ok := rg.GetRoom("nope"); ok {
		t.Error("GetRoom(nope) found a room")
	}

	if !rg.RemoveRoom(room.ID()) {
		t.Error("RemoveRoom() = false for existing room")
	}
	if rg.RemoveRoom(room.ID()) {
		t.Error("second RemoveRoom() = true")
	}
	if rg.HasRoom(room.ID()) {
		t.Error("HasRoom() = true after removal")
	}
}

func TestRegistryReapIdle(t *testing.T) {
	rg := NewRegistry(3, 3)

	stale, err := rg.CreateRoom(0)
	if err != nil {
		t.Fatalf("CreateRoom() error = %v", err)
	}
	fresh, err := rg.CreateRoom(0)
	if err != nil {
		t.Fatalf("CreateRoom() error = %v", err)
	}

	stale.mu.Lock()
	stale.lastActive = time.Now().Add(-time.Hour)
	stale.mu.Unlock()

	reaped := rg.ReapIdle(time.Minute)
	if len(reaped) != 1 || reaped[0] != stale {
		t.Fatalf("ReapIdle() = %v, want only the stale room", reaped)
	}

	if rg.HasRoom(stale.ID()) {
		t.Error("stale room still registered")
	}
	if !rg.HasRoom(fresh.ID()) {
		t.Error("fresh room was reaped")
	}
	if len(rg.Rooms()) != 1 {
		t.Errorf("Rooms() = %d rooms, want 1", len(rg.Rooms()))
	}
}
