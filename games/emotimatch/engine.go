/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package emotimatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

const roundTask = "match emotis"

var (
	ErrAborted        = errors.New("game aborted")
	ErrAlreadyStarted = errors.New("game already started")
)

// Status is the state of a single round.
type Status int

const (
	StatusPrepared Status = iota + 1
	StatusStarted
	StatusFinished
)

func (s Status) String() string {
	switch s {
	case StatusPrepared:
		return "prepared"
	case StatusStarted:
		return "started"
	case StatusFinished:
		return "finished"
	default:
		return "unknown"
	}
}

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Status) UnmarshalText(text []byte) error {
	for _, status := range []Status{StatusPrepared, StatusStarted, StatusFinished} {
		if string(text) == status.String() {
			*s = status

			return nil
		}
	}

	return fmt.Errorf("unknown round status %q", text)
}

// Verdict is the outcome of a submitted answer.
type Verdict string

const (
	VerdictCorrect   Verdict = "correct"
	VerdictIncorrect Verdict = "incorrect"
	VerdictRejected  Verdict = "rejected"
)

// AnswerResult is sent back to the participant who submitted an answer.
type AnswerResult struct {
	Solution Verdict `json:"solution"`
	Reason   string  `json:"reason,omitempty"`
	Action   string  `json:"action,omitempty"`
}

// RoundInfo describes the current round. Cards are only present once the
// round has started, the solution and winner only once it has finished.
type RoundInfo struct {
	Number   int        `json:"number"`
	Rounds   int        `json:"rounds"`
	Status   Status     `json:"status"`
	Task     string     `json:"task"`
	Scores   []int      `json:"scores"`
	Cards    [][]string `json:"cards,omitempty"`
	Solution string     `json:"solution,omitempty"`
	WinnerID *int       `json:"winnerId,omitempty"`
}

// PlayerInfo is the per-participant payload handed to every callback.
type PlayerInfo struct {
	PlayerID int        `json:"playerId"`
	Scores   []int      `json:"scores"`
	Round    *RoundInfo `json:"roundInfo,omitempty"`
	CardSize int        `json:"cardSize,omitempty"`
	Card     []string   `json:"card,omitempty"`
	Ranks    []int      `json:"ranks,omitempty"`
}

// Callbacks receive one PlayerInfo per participant, indexed by participant
// id. Nil callbacks are skipped.
type Callbacks struct {
	GameStarted   func([]PlayerInfo)
	RoundPrepared func([]PlayerInfo)
	RoundStarted  func([]PlayerInfo)
	RoundFinished func([]PlayerInfo)
	GameFinished  func([]PlayerInfo)
}

type round struct {
	number      int
	status      Status
	solution    string
	cards       [][]string
	penaltyEnds []time.Time
	scores      []int
	winner      int
	answered    chan struct{}
}

// Engine drives one game through its rounds.
type Engine struct {
	players int
	symbols []string
	opts    Options

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	roundID   int
	round     *round
	scores    []int
	cardSizes []float64
	started   bool
	finished  bool
	aborted   bool
}

// NewEngine creates a game for the given number of participants.
func NewEngine(players int, opts Options) (*Engine, error) {
	if players < 1 {
		return nil, fmt.Errorf("invalid number of players (must be at least 1): %d", players)
	}

	if err := opts.Validate(); err != nil {
		return nil, err
	}

	cardSizes := make([]float64, players)
	for pid := range cardSizes {
		cardSizes[pid] = float64(opts.CardSize)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Engine{
		players:   players,
		symbols:   opts.Symbols(),
		opts:      opts,
		ctx:       ctx,
		cancel:    cancel,
		roundID:   1,
		scores:    make([]int, players),
		cardSizes: cardSizes,
	}, nil
}

func (e *Engine) Players() int {
	return e.players
}

func (e *Engine) IsFinished() bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.finished
}

// Scores returns a copy of the cumulative scores.
func (e *Engine) Scores() []int {
	e.mu.Lock()
	defer e.mu.Unlock()

	return cloneInts(e.scores)
}

// Abort stops the game. Pending delays return immediately and no further
// callbacks are invoked. An aborted game counts as finished.
func (e *Engine) Abort() {
	e.mu.Lock()
	e.aborted = true
	e.finished = true
	e.mu.Unlock()

	e.cancel()
}

// Run plays the whole game, invoking cb as it goes. It blocks until the game
// has finished, and returns ErrAborted if ctx was cancelled or Abort was
// called before that.
func (e *Engine) Run(ctx context.Context, cb Callbacks) error {
	e.mu.Lock()
	if e.started {
		e.mu.Unlock()

		return ErrAlreadyStarted
	}
	e.started = true
	infos := e.infosLocked(nil)
	e.mu.Unlock()

	defer e.cancel()

	stop := context.AfterFunc(ctx, e.Abort)
	defer stop()

	if err := e.notify(cb.GameStarted, infos); err != nil {
		return err
	}

	for e.nextRound() <= e.opts.Rounds {
		if err := e.sleep(e.opts.RoundPrepareDelay); err != nil {
			return err
		}

		r, infos, err := e.prepareRound()
		if err != nil {
			return err
		}

		if err := e.notify(cb.RoundPrepared, infos); err != nil {
			return err
		}

		if err := e.sleep(e.opts.RoundStartDelay); err != nil {
			return err
		}

		infos, err = e.startRound(r)
		if err != nil {
			return err
		}

		if err := e.notify(cb.RoundStarted, infos); err != nil {
			return err
		}

		if err := e.awaitAnswer(r); err != nil {
			return err
		}

		infos, err = e.finishRound(r)
		if err != nil {
			return err
		}

		if err := e.notify(cb.RoundFinished, infos); err != nil {
			return err
		}
	}

	if err := e.sleep(e.opts.GameFinishDelay); err != nil {
		return err
	}

	infos, err := e.finishGame()
	if err != nil {
		return err
	}

	return e.notify(cb.GameFinished, infos)
}

func (e *Engine) nextRound() int {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.roundID
}

func (e *Engine) notify(fn func([]PlayerInfo), infos []PlayerInfo) error {
	e.mu.Lock()
	aborted := e.aborted
	e.mu.Unlock()

	if aborted {
		return ErrAborted
	}

	if fn != nil {
		fn(infos)
	}

	return nil
}

func (e *Engine) sleep(d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C:
		return nil
	case <-e.ctx.Done():
		return ErrAborted
	}
}

// awaitAnswer waits until someone solves r or the round times out.
func (e *Engine) awaitAnswer(r *round) error {
	t := time.NewTimer(e.opts.RoundMaxTime)
	defer t.Stop()

	select {
	case <-t.C:
		return nil
	case <-r.answered:
		return nil
	case <-e.ctx.Done():
		return ErrAborted
	}
}

func (e *Engine) prepareRound() (*round, []PlayerInfo, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.aborted {
		return nil, nil, ErrAborted
	}

	sizes := make([]int, e.players)
	for pid, size := range e.cardSizes {
		sizes[pid] = cardSize(size)
	}

	solution, cards := generateCards(e.symbols, sizes)

	r := &round{
		number:      e.roundID,
		status:      StatusPrepared,
		solution:    solution,
		cards:       cards,
		penaltyEnds: make([]time.Time, e.players),
		scores:      make([]int, e.players),
		winner:      -1,
	}
	e.round = r

	return r, e.infosLocked(r), nil
}

func (e *Engine) startRound(r *round) ([]PlayerInfo, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.aborted {
		return nil, ErrAborted
	}

	r.status = StatusStarted
	r.answered = make(chan struct{})

	return e.infosLocked(r), nil
}

func (e *Engine) finishRound(r *round) ([]PlayerInfo, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.aborted {
		return nil, ErrAborted
	}

	r.status = StatusFinished

	for pid, points := range r.scores {
		e.scores[pid] += points
		e.cardSizes[pid] += float64(points) * e.opts.WinCardSizeAdd
	}

	e.roundID++

	return e.infosLocked(r), nil
}

func (e *Engine) finishGame() ([]PlayerInfo, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.aborted {
		return nil, ErrAborted
	}

	ranks := ComputeRanks(e.scores)
	e.finished = true

	infos := e.infosLocked(nil)
	for pid := range infos {
		infos[pid].Ranks = ranks
	}

	return infos, nil
}

// SubmitAnswer checks a proposed solution for the running round. The second
// return value is false if the answer was ignored, which happens outside a
// started round or for an unknown participant.
//
// Only the first correct answer of a round scores; later ones are rejected.
func (e *Engine) SubmitAnswer(pid int, symbol string) (AnswerResult, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	r := e.round
	if e.finished || r == nil || r.status != StatusStarted || pid < 0 || pid >= e.players {
		return AnswerResult{}, false
	}

	now := e.opts.now()

	switch {
	case now.Before(r.penaltyEnds[pid]):
		return AnswerResult{Solution: VerdictRejected, Reason: "penalty"}, true
	case r.winner >= 0:
		return AnswerResult{Solution: VerdictRejected, Reason: "solved"}, true
	case symbol == r.solution:
		r.winner = pid
		r.scores[pid]++
		close(r.answered)

		return AnswerResult{Solution: VerdictCorrect}, true
	default:
		r.penaltyEnds[pid] = now.Add(e.opts.PenaltyTime)

		return AnswerResult{Solution: VerdictIncorrect, Action: "penalty"}, true
	}
}

// infosLocked snapshots the state for all participants. r may be nil
// outside of a round.
func (e *Engine) infosLocked(r *round) []PlayerInfo {
	var ri *RoundInfo
	if r != nil {
		ri = &RoundInfo{
			Number: r.number,
			Rounds: e.opts.Rounds,
			Status: r.status,
			Task:   roundTask,
			Scores: cloneInts(r.scores),
		}

		if r.status >= StatusStarted {
			ri.Cards = make([][]string, len(r.cards))
			for pid, card := range r.cards {
				ri.Cards[pid] = cloneStrings(card)
			}
		}

		if r.status == StatusFinished {
			ri.Solution = r.solution

			if r.winner >= 0 {
				winner := r.winner
				ri.WinnerID = &winner
			}
		}
	}

	scores := cloneInts(e.scores)

	infos := make([]PlayerInfo, e.players)
	for pid := range infos {
		infos[pid] = PlayerInfo{
			PlayerID: pid,
			Scores:   scores,
			Round:    ri,
		}

		if r == nil {
			continue
		}

		infos[pid].CardSize = len(r.cards[pid])
		if r.status >= StatusStarted {
			infos[pid].Card = cloneStrings(r.cards[pid])
		}
	}

	return infos
}

func cloneInts(s []int) []int {
	out := make([]int, len(s))
	copy(out, s)

	return out
}

func cloneStrings(s []string) []string {
	out := make([]string, len(s))
	copy(out, s)

	return out
}
