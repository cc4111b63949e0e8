package game

import (
	"strconv"
	"sync"

	"github.com/cyberinferno/sudokunet/protocol"
)

// Sender delivers one frame to a player. wire.Conn satisfies it.
type Sender interface {
	Send(tag protocol.Tag, payload string) bool
}

// Player is one connected identity. The nickname is set once; the session
// pointer and score change as the player moves between lobby and sessions.
type Player struct {
	sender Sender

	mu       sync.Mutex
	nickname string
	session  *Session
	score    int
}

// NewPlayer wraps a connection's sender. The player has no nickname until
// Registry.AssignNickname succeeds.
func NewPlayer(sender Sender) *Player {
	return &Player{sender: sender}
}

func (p *Player) Nickname() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.nickname
}

// Session returns the session the player belongs to, or nil in the lobby.
func (p *Player) Session() *Session {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.session
}

func (p *Player) Score() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.score
}

func (p *Player) send(tag protocol.Tag, payload string) bool {
	return p.sender.Send(tag, payload)
}

func (p *Player) setNickname(name string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.nickname != "" {
		return false
	}
	p.nickname = name
	return true
}

// enter binds the player to s with a fresh score.
func (p *Player) enter(s *Session) {
	p.mu.Lock()
	p.session = s
	p.score = 0
	p.mu.Unlock()
}

func (p *Player) leave() {
	p.mu.Lock()
	p.session = nil
	p.mu.Unlock()
}

func (p *Player) addScore(delta int) {
	p.mu.Lock()
	p.score += delta
	p.mu.Unlock()
}

// scoreLine renders "nick score" for the scoreboard.
func (p *Player) scoreLine() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.nickname + " " + strconv.Itoa(p.score)
}
