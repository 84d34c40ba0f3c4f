package dispatcher

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/J-Pabon/ouisync/pkg/errs"
)

// sendInterval is how long the dispatcher may go without sending anything
// before it emits a keep-alive frame on the caller's behalf.
const sendInterval = 30 * time.Second

// recvInterval is how long a bound stream may go without receiving anything
// before it is considered dead and dropped.
const recvInterval = 60 * time.Second

// Stream is one concrete framed byte connection to a peer, e.g. a QUIC
// stream or a TCP connection produced by pkg/transport.
type Stream = io.ReadWriteCloser

var keepAliveChannel = MessageChannel{}

type channelQueue struct {
	items []Message
}

// Dispatcher multiplexes logical channels over one or more bound Streams to
// a single peer. It is safe for concurrent use.
type Dispatcher struct {
	log zerolog.Logger

	sinkMu sync.Mutex
	sinks  []Stream

	streamMu sync.Mutex
	streams  []Stream

	queueMu sync.Mutex
	queues  map[MessageChannel]*channelQueue
	notify  chan struct{}
	closed  bool

	seqNum   atomic.Uint64
	lastSend atomic.Int64

	bytesSent     atomic.Int64
	bytesReceived atomic.Int64

	closeOnce sync.Once
	closeCh   chan struct{}
}

// Stats is a snapshot of one Dispatcher's cumulative byte counters, taken
// across every stream ever bound to it (including ones since dropped).
type Stats struct {
	BytesSent     int64
	BytesReceived int64
}

// Stats returns the dispatcher's current byte counters.
func (d *Dispatcher) Stats() Stats {
	return Stats{
		BytesSent:     d.bytesSent.Load(),
		BytesReceived: d.bytesReceived.Load(),
	}
}

// New creates a Dispatcher with no streams bound yet.
func New(log zerolog.Logger) *Dispatcher {
	d := &Dispatcher{
		log:     log.With().Str("component", "dispatcher").Logger(),
		queues:  make(map[MessageChannel]*channelQueue),
		notify:  make(chan struct{}),
		closeCh: make(chan struct{}),
	}
	d.lastSend.Store(time.Now().UnixNano())
	go d.keepAliveLoop()
	return d
}

// Bind adds stream as both a sink (for Send) and a source (for incoming
// frames), and starts the goroutines that service it.
func (d *Dispatcher) Bind(stream Stream) {
	d.sinkMu.Lock()
	d.sinks = append(d.sinks, stream)
	d.sinkMu.Unlock()

	d.streamMu.Lock()
	d.streams = append(d.streams, stream)
	d.streamMu.Unlock()

	lastRecv := &atomic.Int64{}
	lastRecv.Store(time.Now().UnixNano())

	go d.receiveLoop(stream, lastRecv)
	go d.watchdog(stream, lastRecv)
}

// Send writes content to channel over the first bound sink that accepts it.
// Sinks that fail are dropped and the next one is tried; Send fails only
// once every bound sink has failed or none are bound.
func (d *Dispatcher) Send(ctx context.Context, channel MessageChannel, content []byte) error {
	d.sinkMu.Lock()
	sinks := append([]Stream(nil), d.sinks...)
	d.sinkMu.Unlock()

	msg := Message{Channel: channel, SeqNum: d.seqNum.Add(1), Content: content}

	var lastErr error
	for _, s := range sinks {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err := writeFrame(s, msg); err != nil {
			lastErr = err
			d.dropStream(s)
			continue
		}
		d.lastSend.Store(time.Now().UnixNano())
		d.bytesSent.Add(int64(frameSize(msg)))
		return nil
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("no sink bound")
	}
	return fmt.Errorf("dispatcher: send: %w", lastErr)
}

// Open returns a handle for consuming messages arriving on channel.
func (d *Dispatcher) Open(channel MessageChannel) *ContentStream {
	return &ContentStream{d: d, channel: channel}
}

// Close unbinds and closes every stream and wakes every blocked ContentStream
// with errs.ChannelClosed.
func (d *Dispatcher) Close() {
	d.closeOnce.Do(func() {
		close(d.closeCh)

		d.sinkMu.Lock()
		d.sinks = nil
		d.sinkMu.Unlock()

		d.streamMu.Lock()
		streams := d.streams
		d.streams = nil
		d.streamMu.Unlock()
		for _, s := range streams {
			_ = s.Close()
		}

		d.queueMu.Lock()
		d.closed = true
		close(d.notify)
		d.notify = make(chan struct{})
		d.queueMu.Unlock()
	})
}

func (d *Dispatcher) dropStream(stream Stream) {
	d.sinkMu.Lock()
	d.sinks = removeStream(d.sinks, stream)
	d.sinkMu.Unlock()

	d.streamMu.Lock()
	found := false
	for _, s := range d.streams {
		if s == stream {
			found = true
			break
		}
	}
	d.streams = removeStream(d.streams, stream)
	d.streamMu.Unlock()

	if found {
		_ = stream.Close()
		d.log.Debug().Msg("dropped dead stream")
	}
}

func removeStream(streams []Stream, target Stream) []Stream {
	out := streams[:0]
	for _, s := range streams {
		if s != target {
			out = append(out, s)
		}
	}
	return out
}

func (d *Dispatcher) receiveLoop(stream Stream, lastRecv *atomic.Int64) {
	for {
		msg, err := readFrame(stream)
		if err != nil {
			d.dropStream(stream)
			return
		}
		lastRecv.Store(time.Now().UnixNano())
		d.bytesReceived.Add(int64(frameSize(msg)))

		if msg.Channel == keepAliveChannel {
			continue
		}
		d.enqueue(msg)
	}
}

func (d *Dispatcher) enqueue(msg Message) {
	d.queueMu.Lock()
	q, ok := d.queues[msg.Channel]
	if !ok {
		q = &channelQueue{}
		d.queues[msg.Channel] = q
	}
	q.items = append(q.items, msg)
	close(d.notify)
	d.notify = make(chan struct{})
	d.queueMu.Unlock()
}

func (d *Dispatcher) watchdog(stream Stream, lastRecv *atomic.Int64) {
	ticker := time.NewTicker(recvInterval / 3)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if time.Since(time.Unix(0, lastRecv.Load())) >= recvInterval {
				d.dropStream(stream)
				return
			}
		case <-d.closeCh:
			return
		}
	}
}

func (d *Dispatcher) keepAliveLoop() {
	ticker := time.NewTicker(sendInterval / 3)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if time.Since(time.Unix(0, d.lastSend.Load())) >= sendInterval {
				_ = d.Send(context.Background(), keepAliveChannel, nil)
			}
		case <-d.closeCh:
			return
		}
	}
}

// ContentStream is a per-channel consumer handle returned by Dispatcher.Open.
type ContentStream struct {
	d       *Dispatcher
	channel MessageChannel
}

// Recv blocks until a message arrives on the channel, ctx is done, or the
// dispatcher is closed.
func (cs *ContentStream) Recv(ctx context.Context) (Message, error) {
	for {
		cs.d.queueMu.Lock()
		q, ok := cs.d.queues[cs.channel]
		if ok && len(q.items) > 0 {
			msg := q.items[0]
			q.items = q.items[1:]
			cs.d.queueMu.Unlock()
			return msg, nil
		}
		if cs.d.closed {
			cs.d.queueMu.Unlock()
			return Message{}, fmt.Errorf("dispatcher: %w", errs.ChannelClosed)
		}
		wake := cs.d.notify
		cs.d.queueMu.Unlock()

		select {
		case <-wake:
		case <-ctx.Done():
			return Message{}, ctx.Err()
		}
	}
}

// Send writes content to this ContentStream's channel.
func (cs *ContentStream) Send(ctx context.Context, content []byte) error {
	return cs.d.Send(ctx, cs.channel, content)
}
