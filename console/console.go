// Package console is the terminal side of the client: queued output that
// never interleaves with a prompt being answered, and line input that can be
// abandoned by closing the input side.
package console

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"golang.org/x/term"
)

var (
	ErrInputClosed  = errors.New("input closed")
	ErrOutputClosed = errors.New("output closed")
)

// Pipe selects which side Close shuts.
type Pipe int

const (
	PipeIn Pipe = iota
	PipeOut
	PipeBoth
)

// IO is what the client game loop needs from a console.
type IO interface {
	// Output queues msg for display and returns at once. Messages are held
	// back while an Input is waiting for the user.
	Output(msg string) error

	// Input shows prompt and blocks for one line. With hidden set, typed
	// characters are not echoed when the input is a terminal.
	Input(prompt string, hidden bool) (string, error)

	// Close shuts the input side, the output side or both. Callers blocked in
	// Input return ErrInputClosed.
	Close(pipe Pipe)
}

type readResult struct {
	line string
	err  error
}

// Console implements IO over a reader and a writer.
type Console struct {
	in     io.Reader
	reader *bufio.Reader
	out    io.Writer

	writeMu sync.Mutex

	mu         sync.Mutex
	cond       *sync.Cond
	queue      []string
	reading    bool
	outClosed  bool
	inClosed   bool
	inClosedCh chan struct{}
	pending    chan readResult
	writerDone chan struct{}
}

// New creates a console and starts its output goroutine.
//
// Parameters:
//   - in: Line source, usually os.Stdin
//   - out: Display, usually os.Stdout
//
// Returns:
//   - A Console; Close(PipeBoth) stops it
func New(in io.Reader, out io.Writer) *Console {
	c := &Console{
		in:         in,
		reader:     bufio.NewReader(in),
		out:        out,
		inClosedCh: make(chan struct{}),
		writerDone: make(chan struct{}),
	}
	c.cond = sync.NewCond(&c.mu)

	go c.writeLoop()
	return c
}

// NewStdio returns a console on the process's standard streams.
func NewStdio() *Console {
	return New(os.Stdin, os.Stdout)
}

func (c *Console) Output(msg string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.outClosed {
		return ErrOutputClosed
	}

	c.queue = append(c.queue, msg)
	c.cond.Broadcast()
	return nil
}

func (c *Console) Input(prompt string, hidden bool) (string, error) {
	c.mu.Lock()
	if c.inClosed {
		c.mu.Unlock()
		return "", ErrInputClosed
	}
	c.reading = true
	if c.pending == nil {
		c.pending = make(chan readResult, 1)
		go c.readLine(c.pending, hidden)
	}
	pending := c.pending
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.reading = false
		c.cond.Broadcast()
		c.mu.Unlock()
	}()

	if prompt != "" {
		c.write(prompt)
	}

	select {
	case res := <-pending:
		c.mu.Lock()
		c.pending = nil
		c.mu.Unlock()

		if res.err != nil {
			c.Close(PipeIn)
			return "", ErrInputClosed
		}
		return res.line, nil

	case <-c.inClosedCh:
		return "", ErrInputClosed
	}
}

// readLine performs one blocking read. A read abandoned by Close finishes in
// the background; its line is handed to the next Input.
func (c *Console) readLine(dst chan<- readResult, hidden bool) {
	if f, ok := c.in.(*os.File); ok && hidden && term.IsTerminal(int(f.Fd())) {
		secret, err := term.ReadPassword(int(f.Fd()))
		c.write("\n")
		dst <- readResult{line: string(secret), err: err}
		return
	}

	line, err := c.reader.ReadString('\n')
	if err != nil && line == "" {
		dst <- readResult{err: err}
		return
	}

	dst <- readResult{line: strings.TrimRight(line, "\r\n")}
}

func (c *Console) Close(pipe Pipe) {
	c.mu.Lock()
	if (pipe == PipeIn || pipe == PipeBoth) && !c.inClosed {
		c.inClosed = true
		close(c.inClosedCh)
	}
	closingOut := (pipe == PipeOut || pipe == PipeBoth) && !c.outClosed
	if closingOut {
		c.outClosed = true
		c.cond.Broadcast()
	}
	c.mu.Unlock()

	if closingOut {
		<-c.writerDone
	}
}

// writeLoop prints queued messages whenever no Input is in progress. After
// the output side closes it flushes what is queued and exits.
func (c *Console) writeLoop() {
	defer close(c.writerDone)

	for {
		c.mu.Lock()
		for !c.outClosed && (len(c.queue) == 0 || c.reading) {
			c.cond.Wait()
		}
		batch := c.queue
		c.queue = nil
		closed := c.outClosed
		c.mu.Unlock()

		for _, msg := range batch {
			c.write(msg + "\n")
		}

		if closed {
			return
		}
	}
}

func (c *Console) write(s string) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_, _ = fmt.Fprint(c.out, s)
}
