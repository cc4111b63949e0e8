package main

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"

	"github.com/cyberinferno/sudokunet/client"
	"github.com/cyberinferno/sudokunet/console"
	"github.com/cyberinferno/sudokunet/logger"
	"github.com/cyberinferno/sudokunet/protocol"
	"github.com/cyberinferno/sudokunet/utils"
)

const quit = "Q"

var errQuit = errors.New("quit")

var prompts = map[client.State]string{
	client.NeedName:       "What's your nickname?",
	client.NotConnected:   "What's the server's IP address? (Enter for %s)",
	client.RefusedName:    "That name is taken, try another one.",
	client.NeedSession:    "\nWant to [c]reate a new session or [j]oin an existing one?",
	client.WaitForPlayers: "Waiting for other players...",
	client.NeedMove:       "\nEnter column, row, number to fill a spot.\nFor example, '213' puts '3' at (x=2, y=1).",
}

// play drives one player through the console: naming, connecting, picking a
// session and entering moves. Server notifications are printed as they
// arrive.
type play struct {
	io          console.IO
	cl          *client.Client
	defaultHost string
	log         logger.Logger

	notifying sync.Once
	wg        sync.WaitGroup
}

func newPlay(io console.IO, cl *client.Client, defaultHost string, log logger.Logger) *play {
	p := &play{io: io, cl: cl, defaultHost: defaultHost, log: log}
	cl.OnStateChange(p.onState)
	return p
}

func (p *play) onState(ev client.StateEvent) {
	if ev.State == client.NeedSession && (ev.Previous == client.NotConnected || ev.Previous == client.RefusedName) {
		return // printed after the session listing
	}
	p.prompt(ev.State)
}

func (p *play) prompt(state client.State) {
	text, ok := prompts[state]
	if !ok {
		return
	}
	if state == client.NotConnected {
		text = strings.Replace(text, "%s", p.defaultHost, 1)
	}
	_ = p.io.Output(text)
}

// run is the game loop. It returns nil when the player quits or input ends.
func (p *play) run(ctx context.Context) error {
	_ = p.io.Output("\nPress Enter to initiate input.")
	p.prompt(client.NeedName)

	for {
		var err error
		switch p.cl.State() {
		case client.NeedName, client.RefusedName:
			err = p.chooseName(ctx)
		case client.NotConnected:
			err = p.connect(ctx)
		case client.NeedSession:
			err = p.chooseSession(ctx)
		case client.WaitForPlayers:
			err = p.waitForPlayers(ctx)
		case client.NeedMove:
			err = p.move(ctx)
		default:
			return nil
		}

		switch {
		case err == nil:
		case errors.Is(err, errQuit), errors.Is(err, console.ErrInputClosed):
			_ = p.io.Output("Quit entered, disconnecting ...")
			return nil
		case errors.Is(err, client.ErrClosed):
			_ = p.io.Output("Connection to the server lost.")
			return err
		default:
			return err
		}
	}
}

// read waits for Enter, then asks for a line. Output is held only while
// the line is being typed.
func (p *play) read(allowEmpty bool) (string, error) {
	if _, err := p.io.Input("", true); err != nil {
		return "", err
	}

	for {
		line, err := p.io.Input(">> ", false)
		if err != nil {
			return "", err
		}
		line = strings.TrimSpace(line)
		if line == quit {
			return "", errQuit
		}
		if line != "" || allowEmpty {
			p.log.Debug("user input", logger.Field{Key: "line", Value: line})
			return line, nil
		}
	}
}

func (p *play) chooseName(ctx context.Context) error {
	refused := p.cl.State() == client.RefusedName

	name, err := p.read(false)
	if err != nil {
		return err
	}
	if err := p.cl.SetName(name); err != nil {
		_ = p.io.Output("Not suitable name")
		return nil
	}
	if !refused {
		return nil
	}

	listing, err := p.cl.Login(ctx)
	var rejected *client.RejectedError
	if errors.As(err, &rejected) {
		p.prompt(client.RefusedName)
		return nil
	}
	return p.loggedIn(listing, err)
}

func (p *play) connect(ctx context.Context) error {
	host, err := p.read(true)
	if err != nil {
		return err
	}
	if host == "" {
		host = p.defaultHost
	}

	listing, err := p.cl.Connect(ctx, host)
	if p.cl.State() == client.NotConnected {
		if errors.Is(err, client.ErrClosed) {
			return err
		}
		_ = p.io.Output("Unable to connect: " + err.Error())
		p.prompt(client.NotConnected)
		return nil
	}

	p.notifying.Do(func() { p.wg.Go(p.notifications) })

	var rejected *client.RejectedError
	if errors.As(err, &rejected) {
		// The state change already asked for another name.
		p.log.Info("nickname refused", logger.Field{Key: "reason", Value: rejected.Reason})
		return nil
	}
	return p.loggedIn(listing, err)
}

func (p *play) loggedIn(listing string, err error) error {
	if err != nil {
		return err
	}
	_ = p.io.Output(listing)
	p.prompt(client.NeedSession)
	return nil
}

func (p *play) chooseSession(ctx context.Context) error {
	choice, err := p.read(false)
	if err != nil {
		return err
	}
	for choice != "c" && choice != "j" {
		_ = p.io.Output("Error, enter either 'c' or 'j'.")
		if choice, err = p.read(false); err != nil {
			return err
		}
	}

	capacity := 0
	if choice == "c" {
		for capacity < 2 {
			_ = p.io.Output("How many people are playing?")
			line, err := p.read(false)
			if err != nil {
				return err
			}
			n, convErr := strconv.Atoi(line)
			switch {
			case convErr != nil:
				_ = p.io.Output("Please enter a number.")
			case n < 2:
				_ = p.io.Output("Need a minimum of two players!")
			default:
				capacity = n
			}
		}
	}

	_ = p.io.Output("What's the session's name?")
	name := ""
	for name == "" {
		line, err := p.read(false)
		if err != nil {
			return err
		}
		if !utils.IsValidName(line) {
			_ = p.io.Output("Session names are 1-8 letters or digits.")
			continue
		}
		name = line
	}

	var started bool
	if choice == "c" {
		started, err = p.cl.CreateSession(ctx, name, capacity)
	} else {
		started, err = p.cl.JoinSession(ctx, name)
	}

	var rejected *client.RejectedError
	switch {
	case errors.As(err, &rejected):
		_ = p.io.Output("Error joining session: " + rejected.Reason)
		p.prompt(client.NeedSession)
		return nil
	case errors.Is(err, client.ErrWrongState):
		return nil
	case err != nil:
		return err
	}

	if started {
		p.gameStarted(p.cl.Board())
	}
	return nil
}

func (p *play) waitForPlayers(ctx context.Context) error {
	board, err := p.cl.WaitForPlayers(ctx)
	switch {
	case err == nil:
		p.gameStarted(board)
		return nil
	case errors.Is(err, client.ErrSessionEnded), errors.Is(err, client.ErrWrongState):
		return nil
	default:
		return err
	}
}

func (p *play) gameStarted(board string) {
	_ = p.io.Output(">>> Game started!\n\n" + console.RenderBoard(board))
}

func (p *play) move(ctx context.Context) error {
	line, err := p.read(false)
	if err != nil {
		return err
	}

	result, err := p.cl.PutNumber(ctx, line)
	var rejected *client.RejectedError
	switch {
	case err == nil:
		_ = p.io.Output(result)
	case errors.Is(err, client.ErrInvalidMove):
		_ = p.io.Output("Not proper input - give three digits 1...9")
	case errors.As(err, &rejected):
		_ = p.io.Output("Move refused: " + rejected.Reason)
	case errors.Is(err, client.ErrWrongState):
	default:
		return err
	}
	return nil
}

// close disconnects and waits for the notification printer.
func (p *play) close() {
	_ = p.cl.Close()
	p.wg.Wait()
}

// notifications prints pushed messages until the connection closes.
func (p *play) notifications() {
	for {
		msg, err := p.cl.NextNotification()
		if err != nil {
			return
		}
		if err := p.io.Output(formatNotification(msg)); err != nil {
			return
		}
	}
}

func formatNotification(msg protocol.Message) string {
	switch msg.Tag {
	case protocol.TagGameOver:
		return "The game has ended. " + msg.Payload + "\n"
	case protocol.TagNotify:
		if board, ok := strings.CutPrefix(msg.Payload, client.BoardPrefix); ok {
			return client.BoardPrefix + console.RenderBoard(board)
		}
	}
	return msg.Payload
}
