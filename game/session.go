package game

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cyberinferno/sudokunet/logger"
	"github.com/cyberinferno/sudokunet/protocol"
	"github.com/cyberinferno/sudokunet/results"
	"github.com/cyberinferno/sudokunet/sudoku"
)

// State is a session's lifecycle stage.
type State int

const (
	Forming State = iota
	Running
	Over
	Closed
)

func (s State) String() string {
	switch s {
	case Forming:
		return "forming"
	case Running:
		return "running"
	case Over:
		return "over"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

// JoinResult tells a joining player whether to wait or play.
type JoinResult int

const (
	// Waiting means the session still has free seats.
	Waiting JoinResult = iota
	// Started means this join filled the session and the game began. The
	// table broadcast already answered the joiner.
	Started
)

// Closing reasons used in game-over broadcasts and result records.
const (
	ReasonSolved       = "Puzzle solved"
	ReasonTooFewPlayer = "Too few players"
)

// Session is one game: a fixed number of seats, the players in join order
// and a shared puzzle.
//
// Lock order is Registry.mu, then Session.mu, then Player.mu. While holding
// mu a session touches only the registry's lobby set, whose lock is a leaf;
// every other registry call happens after mu is released. Frames are never
// sent while mu is held.
type Session struct {
	id       uuid.UUID
	name     string
	capacity int
	reg      *Registry
	log      logger.Logger

	mu      sync.Mutex
	members []*Player
	puzzle  *sudoku.Puzzle
	state   State
}

func newSession(reg *Registry, name string, capacity int, puzzle *sudoku.Puzzle) *Session {
	id := uuid.New()
	return &Session{
		id:       id,
		name:     name,
		capacity: capacity,
		reg:      reg,
		log:      reg.log.With(logger.Field{Key: "session", Value: name}, logger.Field{Key: "session_id", Value: id.String()}),
		puzzle:   puzzle,
		state:    Forming,
	}
}

func (s *Session) ID() uuid.UUID { return s.id }
func (s *Session) Name() string  { return s.name }
func (s *Session) Capacity() int { return s.capacity }

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Members returns member nicknames in join order.
func (s *Session) Members() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	names := make([]string, len(s.members))
	for i, p := range s.members {
		names[i] = p.Nickname()
	}
	return names
}

// Board returns the current grid as 81 digits, or "" once the session has
// been torn down.
func (s *Session) Board() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.puzzle == nil {
		return ""
	}
	return s.puzzle.String()
}

// Info renders the lobby line "name-members/capacity".
func (s *Session) Info() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.name + "-" + strconv.Itoa(len(s.members)) + "/" + strconv.Itoa(s.capacity)
}

// AddMember seats p if a seat is free. Current members, p included, are
// told about the join, the lobby gets a fresh listing, and the capacity-th
// join of a forming session starts the game by sending the table to every
// member. A seat freed in a running game can be refilled; the newcomer alone
// gets the table and plays straight away.
//
// Parameters:
//   - p: A named player currently in the lobby
//
// Returns:
//   - Waiting, or Started when p is seated in a running game
//   - ErrSessionFull when no seat is free, ErrSessionNotFound when the
//     session has already ended, ErrAlreadyInSession if p sits elsewhere
func (s *Session) AddMember(p *Player) (JoinResult, error) {
	s.mu.Lock()
	switch {
	case s.state == Over || s.state == Closed:
		s.mu.Unlock()
		return Waiting, ErrSessionNotFound
	case len(s.members) >= s.capacity:
		s.mu.Unlock()
		return Waiting, ErrSessionFull
	case p.Session() != nil:
		s.mu.Unlock()
		return Waiting, ErrAlreadyInSession
	}

	s.members = append(s.members, p)
	p.enter(s)
	s.reg.RemoveFromLobby(p)

	count := len(s.members)
	late := s.state == Running
	started := s.state == Forming && count == s.capacity
	if started {
		s.state = Running
	}
	recipients := slices.Clone(s.members)
	board := s.puzzle.String()
	s.mu.Unlock()

	nick := p.Nickname()
	s.log.Info("player joined", logger.Field{Key: "player", Value: nick}, logger.Field{Key: "members", Value: count})
	broadcast(recipients, protocol.TagNotify, fmt.Sprintf("%s joined game\nPlayer numbers %d/%d", nick, count, s.capacity))

	s.reg.listingChanged()
	s.reg.NotifyLobby()

	switch {
	case started:
		s.log.Info("game started")
		broadcast(recipients, protocol.TagTable, board)
		return Started, nil
	case late:
		p.send(protocol.TagTable, board)
		return Started, nil
	}

	return Waiting, nil
}

// RemoveMember takes p out of the session and back to the lobby. If nobody is left, or fewer than
// two remain in a running game, the session closes: survivors get a
// game-over naming the top scorers and go back to the lobby.
func (s *Session) RemoveMember(p *Player) {
	s.mu.Lock()
	idx := slices.Index(s.members, p)
	if idx < 0 {
		s.mu.Unlock()
		return
	}

	s.members = slices.Delete(s.members, idx, idx+1)
	s.reg.returnToLobby(p)

	remaining := slices.Clone(s.members)
	closing := len(s.members) == 0 || (len(s.members) < 2 && s.state == Running)
	var outcome closeOutcome
	if closing {
		outcome = s.teardownLocked(ReasonTooFewPlayer)
	}
	s.mu.Unlock()

	nick := p.Nickname()
	s.log.Info("player left", logger.Field{Key: "player", Value: nick}, logger.Field{Key: "members", Value: len(remaining)})
	broadcast(remaining, protocol.TagNotify, nick+" left game")

	if closing {
		s.finish(outcome)
		return
	}

	s.reg.listingChanged()
	s.reg.NotifyLobby()
}

// SubmitMove applies p's move at 1-indexed (col, row). Correct moves score
// +1, wrong ones -1, a cell that already holds its solution scores nothing
// and is left alone. Any change to the board is followed by a scoreboard
// and a grid notification; the move that completes the grid closes the
// session.
//
// Parameters:
//   - p: The moving player
//   - col: Column 1-9
//   - row: Row 1-9
//   - value: Value 1-9
//
// Returns:
//   - The move outcome
//   - ErrBadMove, ErrGameNotRunning or ErrNotInSession
func (s *Session) SubmitMove(p *Player, col, row, value int) (sudoku.Outcome, error) {
	s.mu.Lock()
	switch {
	case s.state == Forming:
		s.mu.Unlock()
		return sudoku.AlreadyFilled, ErrGameNotRunning
	case s.state != Running || !slices.Contains(s.members, p):
		s.mu.Unlock()
		return sudoku.AlreadyFilled, ErrNotInSession
	}

	out, err := s.puzzle.SetNumber(col-1, row-1, value)
	if err != nil {
		s.mu.Unlock()
		return out, fmt.Errorf("%w: %v", ErrBadMove, err)
	}

	switch out {
	case sudoku.Correct:
		p.addScore(1)
	case sudoku.Incorrect:
		p.addScore(-1)
	}

	recipients := slices.Clone(s.members)
	scores := s.scoreboardLocked()
	board := s.puzzle.String()
	solved := out == sudoku.Correct && s.puzzle.IsOver()
	var outcome closeOutcome
	if solved {
		outcome = s.teardownLocked(ReasonSolved)
	}
	s.mu.Unlock()

	s.log.Debug("move", logger.Field{Key: "player", Value: p.Nickname()}, logger.Field{Key: "col", Value: col},
		logger.Field{Key: "row", Value: row}, logger.Field{Key: "value", Value: value}, logger.Field{Key: "outcome", Value: out.String()})

	if out.Mutates() {
		broadcast(recipients, protocol.TagNotify, "Scores: "+scores)
		broadcast(recipients, protocol.TagNotify, "Sudoku table\n"+board)
	}

	if solved {
		s.finish(outcome)
	}

	return out, nil
}

// closeOutcome carries what finish needs after the lock is dropped.
type closeOutcome struct {
	reason    string
	survivors []*Player
	winners   []string
	top       int
	scores    []results.Score
}

// teardownLocked moves the session through Over to Closed: it computes the
// winners, returns every member to the lobby and drops the puzzle. Callers
// hold s.mu.
func (s *Session) teardownLocked(reason string) closeOutcome {
	s.state = Over

	out := closeOutcome{reason: reason, survivors: slices.Clone(s.members)}
	out.winners, out.top = winners(s.members)
	for _, p := range s.members {
		out.scores = append(out.scores, results.Score{Nickname: p.Nickname(), Score: p.Score()})
		s.reg.returnToLobby(p)
	}

	s.members = nil
	s.puzzle = nil
	s.state = Closed
	return out
}

// finish announces the end to the survivors, unlists the session and
// publishes its result.
func (s *Session) finish(out closeOutcome) {
	text := out.reason + ". Winner(s): " + strings.Join(out.winners, ",") + " - " + strconv.Itoa(out.top) + " points"
	s.log.Info("session closing", logger.Field{Key: "reason", Value: out.reason}, logger.Field{Key: "winners", Value: out.winners})
	broadcast(out.survivors, protocol.TagGameOver, text)

	s.reg.RemoveSession(s)
	s.reg.NotifyLobby()
	s.reg.publish(results.Record{
		SessionID:  s.id.String(),
		Name:       s.name,
		Reason:     out.reason,
		Winners:    out.winners,
		TopScore:   out.top,
		Scores:     out.scores,
		FinishedAt: time.Now().UTC(),
	})
}

func (s *Session) scoreboardLocked() string {
	parts := make([]string, len(s.members))
	for i, p := range s.members {
		parts[i] = p.scoreLine()
	}
	return strings.Join(parts, ", ")
}

// winners returns every player holding the highest score, in join order.
func winners(players []*Player) ([]string, int) {
	if len(players) == 0 {
		return nil, 0
	}

	top := players[0].Score()
	for _, p := range players[1:] {
		top = max(top, p.Score())
	}

	var names []string
	for _, p := range players {
		if p.Score() == top {
			names = append(names, p.Nickname())
		}
	}
	return names, top
}

func broadcast(players []*Player, tag protocol.Tag, payload string) {
	for _, p := range players {
		p.send(tag, payload)
	}
}
