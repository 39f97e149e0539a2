/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package emotimatch

import "fmt"

// ConnID identifies a participant's connection. It is only ever compared.
type ConnID string

// Emitter delivers a named event to one remote participant.
type Emitter interface {
	Emit(event string, payload ...any)
}

// Participant binds a connection to a display name. It is never mutated
// after creation.
type Participant struct {
	id   ConnID
	name string
	conn Emitter
}

// PlayerView is the public part of a participant.
type PlayerView struct {
	Name string `json:"name"`
}

func NewParticipant(id ConnID, name string, conn Emitter) Participant {
	return Participant{
		id:   id,
		name: name,
		conn: conn,
	}
}

func (p Participant) ID() ConnID {
	return p.id
}

func (p Participant) Name() string {
	return p.name
}

// Emit forwards an event to the participant's connection, if it has one.
func (p Participant) Emit(event string, payload ...any) {
	if p.conn == nil {
		return
	}

	p.conn.Emit(event, payload...)
}

func (p Participant) PublicInfo() PlayerView {
	return PlayerView{Name: p.name}
}

func (p Participant) String() string {
	return fmt.Sprintf("Player %q", p.name)
}
