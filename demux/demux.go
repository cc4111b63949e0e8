// Package demux splits one duplex connection into a synchronous
// request/reply channel and an asynchronous notification queue.
//
// A single read loop classifies every incoming message by tag. Reply-class
// messages land in a one-slot mailbox that a synchronous caller waits on;
// push-class messages are appended to a FIFO queue drained by a notification
// consumer. Requests are serialized by a connection-wide request lock, so at
// most one request is outstanding and the next reply-class message is its
// reply.
package demux

import (
	"context"
	"errors"
	"sync"

	"github.com/cyberinferno/sudokunet/logger"
	"github.com/cyberinferno/sudokunet/protocol"
)

// ErrClosed is returned by every blocking call once the demultiplexer has
// been shut down or the connection under it has closed.
var ErrClosed = errors.New("demux closed")

// Transport is the connection the demultiplexer runs on. *wire.Conn
// satisfies it.
type Transport interface {
	Send(tag protocol.Tag, payload string) bool
	Receive() (protocol.Message, error)
}

// Notification is one queued push-class message.
type Notification struct {
	protocol.Message
	poison bool
}

// Demux routes messages from a Transport. Create it with New and run Run in
// its own goroutine.
type Demux struct {
	transport Transport
	log       logger.Logger
	onPush    func(protocol.Message)

	requestMu sync.Mutex

	replyMu   sync.Mutex
	replyCond *sync.Cond
	reply     *protocol.Message
	closed    bool

	queueMu   sync.Mutex
	queueCond *sync.Cond
	queue     []Notification
}

// New creates a Demux over t. onPush, when non-nil, is called from the read
// loop for every push-class message just before it is queued; clients use it
// for local state transitions such as game-over.
//
// Parameters:
//   - t: The underlying connection
//   - log: Logger for routing decisions
//   - onPush: Optional hook run on every push
//
// Returns:
//   - A Demux that is idle until Run is started
func New(t Transport, log logger.Logger, onPush func(protocol.Message)) *Demux {
	d := &Demux{
		transport: t,
		log:       log,
		onPush:    onPush,
	}
	d.replyCond = sync.NewCond(&d.replyMu)
	d.queueCond = sync.NewCond(&d.queueMu)
	return d
}

// Run is the read loop. It returns after the transport reports a closed
// connection, at which point every waiter has been released.
func (d *Demux) Run() {
	defer d.Close()

	for {
		msg, err := d.transport.Receive()
		if err != nil {
			var de *protocol.DecodeError
			if errors.As(err, &de) {
				d.log.Warn("dropping undecodable frame", logger.Err(err))
				continue
			}

			return
		}

		d.route(msg)
	}
}

func (d *Demux) route(msg protocol.Message) {
	switch {
	case msg.Tag.IsReply():
		d.deliverReply(msg)
	case msg.Tag.IsPush():
		// The hook runs first so a consumer that sees a game-over also
		// sees the state change it causes.
		if d.onPush != nil {
			d.onPush(msg)
		}
		d.enqueue(Notification{Message: msg})
	default:
		d.log.Warn("unexpected tag on client side", logger.Field{Key: "tag", Value: msg.Tag.String()})
	}
}

func (d *Demux) deliverReply(msg protocol.Message) {
	d.replyMu.Lock()
	defer d.replyMu.Unlock()

	if d.closed {
		return
	}

	if d.reply != nil {
		d.log.Warn("replacing unclaimed reply", logger.Field{Key: "stale", Value: d.reply.String()})
	}

	d.reply = &msg
	d.replyCond.Broadcast()
}

func (d *Demux) enqueue(n Notification) {
	d.queueMu.Lock()
	defer d.queueMu.Unlock()

	d.queue = append(d.queue, n)
	d.queueCond.Broadcast()
}

// Request sends a request and waits for its reply. Requests on the same
// Demux are strictly serialized.
//
// Parameters:
//   - ctx: Bounds the wait for the reply
//   - tag: Request tag
//   - payload: Request payload
//
// Returns:
//   - The reply-class message answering the request
//   - ErrClosed if the connection closed first, or ctx.Err()
func (d *Demux) Request(ctx context.Context, tag protocol.Tag, payload string) (protocol.Message, error) {
	d.requestMu.Lock()
	defer d.requestMu.Unlock()

	if d.isClosed() {
		return protocol.Message{}, ErrClosed
	}

	// Nothing is outstanding, so a reply already sitting in the mailbox was
	// never asked for and must not answer this request.
	if stale, ok := d.TryReply(); ok {
		d.log.Warn("discarding unclaimed reply", logger.Field{Key: "stale", Value: stale.String()})
	}

	if !d.transport.Send(tag, payload) {
		return protocol.Message{}, ErrClosed
	}

	return d.AwaitReply(ctx)
}

// AwaitReply waits for the next reply-class message without sending
// anything. It is used while a server-initiated reply, such as the table
// that starts a game, is expected.
func (d *Demux) AwaitReply(ctx context.Context) (protocol.Message, error) {
	stop := context.AfterFunc(ctx, func() {
		d.replyMu.Lock()
		defer d.replyMu.Unlock()
		d.replyCond.Broadcast()
	})
	defer stop()

	d.replyMu.Lock()
	defer d.replyMu.Unlock()

	for d.reply == nil {
		if d.closed {
			return protocol.Message{}, ErrClosed
		}

		if err := ctx.Err(); err != nil {
			return protocol.Message{}, err
		}

		d.replyCond.Wait()
	}

	msg := *d.reply
	d.reply = nil
	return msg, nil
}

// TryReply takes a pending reply without blocking.
func (d *Demux) TryReply() (protocol.Message, bool) {
	d.replyMu.Lock()
	defer d.replyMu.Unlock()

	if d.reply == nil {
		return protocol.Message{}, false
	}

	msg := *d.reply
	d.reply = nil
	return msg, true
}

// NextNotification blocks until a notification is queued and returns it in
// arrival order. After Close it returns ErrClosed once the queue has been
// drained up to the poison marker; the marker stays in place so every
// consumer observes it.
func (d *Demux) NextNotification() (protocol.Message, error) {
	d.queueMu.Lock()
	defer d.queueMu.Unlock()

	for len(d.queue) == 0 {
		d.queueCond.Wait()
	}

	head := d.queue[0]
	if head.poison {
		return protocol.Message{}, ErrClosed
	}

	d.queue = d.queue[1:]
	return head.Message, nil
}

// Close releases every waiter: pending and future AwaitReply calls return
// ErrClosed and a poison marker is appended to the notification queue.
// It is safe to call multiple times.
func (d *Demux) Close() {
	d.replyMu.Lock()
	if d.closed {
		d.replyMu.Unlock()
		return
	}

	d.closed = true
	d.replyCond.Broadcast()
	d.replyMu.Unlock()

	d.enqueue(Notification{poison: true})
}

// Closed reports whether Close has run.
func (d *Demux) Closed() bool {
	return d.isClosed()
}

func (d *Demux) isClosed() bool {
	d.replyMu.Lock()
	defer d.replyMu.Unlock()
	return d.closed
}
