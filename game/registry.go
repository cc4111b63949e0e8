// Package game holds the server-side state of a sudoku contest: connected
// players, the lobby, and the sessions they play in.
package game

import (
	"context"
	"math/rand/v2"
	"slices"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cyberinferno/sudokunet/cacher"
	"github.com/cyberinferno/sudokunet/logger"
	"github.com/cyberinferno/sudokunet/perfmonitor"
	"github.com/cyberinferno/sudokunet/protocol"
	"github.com/cyberinferno/sudokunet/results"
	"github.com/cyberinferno/sudokunet/safemap"
	"github.com/cyberinferno/sudokunet/safeset"
	"github.com/cyberinferno/sudokunet/sudoku"
	"github.com/cyberinferno/sudokunet/utils"
)

// NoSessions is the listing shown while no session is open.
const NoSessions = "No sessions available. Create one!"

const listingPrefix = "sessions:"

// PuzzleFunc builds the puzzle for a new session.
type PuzzleFunc func() (*sudoku.Puzzle, error)

// Options configures a Registry. Zero values fall back to defaults.
type Options struct {
	// Removals is how many cells new puzzles have cleared.
	Removals int
	// ListingTTL bounds how long a rendered lobby listing is reused.
	ListingTTL time.Duration
	// Sink receives a record of every closed session.
	Sink   results.Sink
	Logger logger.Logger
	// NewPuzzle overrides puzzle generation, mainly for tests.
	NewPuzzle PuzzleFunc
}

// Registry is the directory of named players, the lobby and open sessions.
// One Registry is shared by every connection handler of a server.
type Registry struct {
	log   logger.Logger
	names *safemap.SafeMap[string, *Player]
	lobby *safeset.SafeSet[*Player]

	mu       sync.Mutex
	sessions []*Session

	version    atomic.Uint64
	listings   cacher.Cacher[string]
	listingTTL time.Duration

	sink      results.Sink
	newPuzzle PuzzleFunc
	publishes sync.WaitGroup
}

// NewRegistry creates an empty registry.
//
// Parameters:
//   - opts: Puzzle, listing cache, result sink and logging settings
//
// Returns:
//   - A new Registry
func NewRegistry(opts Options) *Registry {
	if opts.Removals <= 0 {
		opts.Removals = 30
	}
	if opts.ListingTTL <= 0 {
		opts.ListingTTL = 30 * time.Second
	}
	if opts.Sink == nil {
		opts.Sink = results.NewNopSink()
	}
	if opts.Logger == nil {
		opts.Logger = logger.NewNopLogger()
	}

	r := &Registry{
		log:        opts.Logger.With(logger.Field{Key: "component", Value: "registry"}),
		names:      safemap.NewSafeMap[string, *Player](),
		lobby:      safeset.NewSafeSet[*Player](),
		listings:   cacher.NewMemoryCacher[string](opts.ListingTTL, 2*opts.ListingTTL),
		listingTTL: opts.ListingTTL,
		sink:       opts.Sink,
		newPuzzle:  opts.NewPuzzle,
	}

	if r.newPuzzle == nil {
		removals := opts.Removals
		r.newPuzzle = func() (*sudoku.Puzzle, error) {
			rng := rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
			return sudoku.Generate(rng, removals)
		}
	}

	return r
}

// AssignNickname claims name for p and puts p in the lobby. Two concurrent
// claims for one name resolve with exactly one winner.
//
// Parameters:
//   - p: A player without a nickname
//   - name: 1-8 alphanumeric characters
//
// Returns:
//   - The current session listing, for the reply
//   - ErrAlreadyNamed, ErrInvalidName or ErrNameInUse
func (r *Registry) AssignNickname(p *Player, name string) (string, error) {
	if p.Nickname() != "" {
		return "", ErrAlreadyNamed
	}
	if !utils.IsValidName(name) {
		return "", ErrInvalidName
	}

	if _, loaded := r.names.LoadOrStore(name, p); loaded {
		return "", ErrNameInUse
	}

	if !p.setNickname(name) {
		r.names.CompareAndDelete(name, p)
		return "", ErrAlreadyNamed
	}

	r.lobby.Add(p)
	r.log.Info("nickname assigned", logger.Field{Key: "player", Value: name})
	return r.Listing(), nil
}

// CreateSession opens a session and seats its creator.
//
// Parameters:
//   - p: A named player in the lobby
//   - name: Session name, 1-8 alphanumeric characters, unique among open sessions
//   - capacity: Number of seats, at least 2
//
// Returns:
//   - The new session
//   - Waiting, or Started if the creator's join filled it
//   - ErrNotNamed, ErrAlreadyInSession, ErrInvalidName, ErrCapacityTooLow,
//     ErrSessionNameInUse, or a puzzle generation error
func (r *Registry) CreateSession(p *Player, name string, capacity int) (*Session, JoinResult, error) {
	if err := r.checkJoinable(p); err != nil {
		return nil, Waiting, err
	}
	if !utils.IsValidName(name) {
		return nil, Waiting, ErrInvalidName
	}
	if capacity < 2 {
		return nil, Waiting, ErrCapacityTooLow
	}
	if r.Find(name) != nil {
		return nil, Waiting, ErrSessionNameInUse
	}

	pm := perfmonitor.NewPerformanceMonitor()
	pm.Start()
	puzzle, err := r.newPuzzle()
	pm.Stop()
	if err != nil {
		r.log.Error("puzzle generation failed", logger.Err(err))
		return nil, Waiting, err
	}

	s := newSession(r, name, capacity, puzzle)

	r.mu.Lock()
	if r.findLocked(name) != nil {
		r.mu.Unlock()
		return nil, Waiting, ErrSessionNameInUse
	}
	r.sessions = append(r.sessions, s)
	r.mu.Unlock()
	r.listingChanged()

	r.log.Info("session created",
		logger.Field{Key: "session", Value: name},
		logger.Field{Key: "capacity", Value: capacity},
		logger.Field{Key: "creator", Value: p.Nickname()},
		logger.Field{Key: "generate_ms", Value: pm.ElapsedMilliseconds()})

	res, err := s.AddMember(p)
	if err != nil {
		r.RemoveSession(s)
		return nil, Waiting, err
	}

	return s, res, nil
}

// JoinSession seats p in the open session called name.
//
// Returns:
//   - Waiting, or Started if p took the last seat
//   - ErrNotNamed, ErrAlreadyInSession, ErrSessionNotFound or ErrSessionFull
func (r *Registry) JoinSession(p *Player, name string) (JoinResult, error) {
	if err := r.checkJoinable(p); err != nil {
		return Waiting, err
	}

	s := r.Find(name)
	if s == nil {
		return Waiting, ErrSessionNotFound
	}

	return s.AddMember(p)
}

// SubmitMove forwards a 1-indexed move to p's session.
func (r *Registry) SubmitMove(p *Player, col, row, value int) (sudoku.Outcome, error) {
	s := p.Session()
	if s == nil {
		return sudoku.AlreadyFilled, ErrNotInSession
	}

	return s.SubmitMove(p, col, row, value)
}

func (r *Registry) checkJoinable(p *Player) error {
	if p.Nickname() == "" {
		return ErrNotNamed
	}
	if p.Session() != nil {
		return ErrAlreadyInSession
	}
	return nil
}

// Find returns the open session called name, or nil.
func (r *Registry) Find(name string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.findLocked(name)
}

func (r *Registry) findLocked(name string) *Session {
	for _, s := range r.sessions {
		if s.name == name {
			return s
		}
	}
	return nil
}

// Sessions returns the open sessions in creation order.
func (r *Registry) Sessions() []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.sessions)
}

// RemoveSession unlists s. It is safe to call more than once.
func (r *Registry) RemoveSession(s *Session) {
	r.mu.Lock()
	idx := slices.Index(r.sessions, s)
	if idx >= 0 {
		r.sessions = slices.Delete(r.sessions, idx, idx+1)
	}
	r.mu.Unlock()

	if idx >= 0 {
		r.listingChanged()
		r.log.Info("session removed", logger.Field{Key: "session", Value: s.name})
	}
}

// RemoveFromLobby takes p out of the lobby. It sends nothing, so a session
// may call it while holding its own lock.
func (r *Registry) RemoveFromLobby(p *Player) {
	r.lobby.Remove(p)
}

// AddToLobby detaches players from any session, puts them in the lobby and
// sends each the current listing.
func (r *Registry) AddToLobby(players []*Player) {
	for _, p := range players {
		r.returnToLobby(p)
	}

	listing := r.Listing()
	for _, p := range players {
		p.send(protocol.TagNotify, listing)
	}
}

// returnToLobby is the silent half of AddToLobby, used by sessions under
// their own lock. The listing reaches p with the next NotifyLobby.
func (r *Registry) returnToLobby(p *Player) {
	p.leave()
	r.lobby.Add(p)
}

// InLobby reports whether p is in the lobby.
func (r *Registry) InLobby(p *Player) bool {
	return r.lobby.Contains(p)
}

// NotifyLobby sends the current listing to every lobby member.
func (r *Registry) NotifyLobby() {
	members := r.lobby.Snapshot()
	if len(members) == 0 {
		return
	}

	listing := r.Listing()
	for _, p := range members {
		p.send(protocol.TagNotify, listing)
	}
}

// Disconnect removes p from wherever it is and frees its nickname.
func (r *Registry) Disconnect(p *Player) {
	if s := p.Session(); s != nil {
		s.RemoveMember(p)
	}
	r.lobby.Remove(p)

	if name := p.Nickname(); name != "" {
		r.names.CompareAndDelete(name, p)
		r.log.Info("player disconnected", logger.Field{Key: "player", Value: name})
	}
}

// Listing renders the lobby's view of open sessions. Renders are cached per
// registry version, so the text is rebuilt only after something changed.
func (r *Registry) Listing() string {
	ctx := context.Background()
	key := listingPrefix + strconv.FormatUint(r.version.Load(), 10)

	listing, err := r.listings.GetOrFetch(ctx, key, r.listingTTL, func(context.Context) (string, error) {
		return r.renderListing(), nil
	})
	if err != nil {
		return r.renderListing()
	}

	return listing
}

func (r *Registry) renderListing() string {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.sessions) == 0 {
		return NoSessions
	}

	var sb strings.Builder
	sb.WriteString("Available sessions:")
	for _, s := range r.sessions {
		sb.WriteString("\n    ")
		sb.WriteString(s.Info())
	}
	return sb.String()
}

// listingChanged moves readers to a new cache key and drops the old render.
func (r *Registry) listingChanged() {
	old := r.version.Add(1) - 1
	_ = r.listings.Delete(context.Background(), listingPrefix+strconv.FormatUint(old, 10))
}

func (r *Registry) publish(rec results.Record) {
	r.publishes.Go(func() {
		if err := r.sink.Publish(context.Background(), rec); err != nil {
			r.log.Warn("failed to publish session result", logger.Field{Key: "session", Value: rec.Name}, logger.Err(err))
		}
	})
}

// Close waits for pending result publishes, then releases the sink and the
// listing cache.
func (r *Registry) Close() error {
	r.publishes.Wait()
	_, _ = r.listings.DeleteByPrefix(context.Background(), listingPrefix)
	return r.sink.Close()
}
