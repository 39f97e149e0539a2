// Package emotimatch implements the session layer of an emoji matching game.
//
// A Registry hands out Rooms under short random hex ids. Participants join a
// Room, and the room's owner (the first participant) starts an Engine, which
// plays a fixed number of timed rounds. In each round every participant gets
// a card of symbols; exactly one symbol is on every card, and the first to
// name it scores a point. Wrong answers block the participant for a short
// penalty window.
package emotimatch
