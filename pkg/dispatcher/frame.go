package dispatcher

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/J-Pabon/ouisync/pkg/errs"
)

// MessageChannelSize is the fixed size of a MessageChannel tag.
const MessageChannelSize = 32

// MessageChannel identifies one logical channel multiplexed over a
// Dispatcher. The all-zero channel is reserved for keep-alive frames and is
// never handed to a consumer.
type MessageChannel [MessageChannelSize]byte

// Message is one frame's payload: the channel it belongs to, its sender's
// monotonically increasing sequence number, and its opaque content.
type Message struct {
	Channel MessageChannel
	SeqNum  uint64
	Content []byte
}

// maxFrameLength guards against a corrupt or hostile length prefix causing
// an unbounded allocation.
const maxFrameLength = 16 * 1024 * 1024

// writeFrame writes msg as a length-prefixed frame: u32 length ‖ u64
// seq_num ‖ [32]byte channel ‖ content.
func writeFrame(w io.Writer, msg Message) error {
	payload := make([]byte, 8+MessageChannelSize+len(msg.Content))
	binary.BigEndian.PutUint64(payload[:8], msg.SeqNum)
	copy(payload[8:8+MessageChannelSize], msg.Channel[:])
	copy(payload[8+MessageChannelSize:], msg.Content)

	var lengthPrefix [4]byte
	binary.BigEndian.PutUint32(lengthPrefix[:], uint32(len(payload)))

	if _, err := w.Write(lengthPrefix[:]); err != nil {
		return fmt.Errorf("dispatcher: write frame length: %w", err)
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("dispatcher: write frame payload: %w", err)
	}
	return nil
}

// frameSize is the number of bytes msg occupies on the wire, length prefix
// included, as counted by a Dispatcher's Stats.
func frameSize(msg Message) int {
	return 4 + 8 + MessageChannelSize + len(msg.Content)
}

// readFrame reads one length-prefixed frame written by writeFrame.
func readFrame(r io.Reader) (Message, error) {
	var lengthPrefix [4]byte
	if _, err := io.ReadFull(r, lengthPrefix[:]); err != nil {
		return Message{}, err
	}
	length := binary.BigEndian.Uint32(lengthPrefix[:])
	if length < 8+MessageChannelSize || length > maxFrameLength {
		return Message{}, fmt.Errorf("dispatcher: frame length %d out of range: %w", length, errs.Malformed)
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return Message{}, fmt.Errorf("dispatcher: read frame payload: %w", err)
	}

	var msg Message
	msg.SeqNum = binary.BigEndian.Uint64(payload[:8])
	copy(msg.Channel[:], payload[8:8+MessageChannelSize])
	msg.Content = payload[8+MessageChannelSize:]
	return msg, nil
}
