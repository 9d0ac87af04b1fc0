// Frame codec for the Discord IPC wire format. Every message is a header of
// two little-endian uint32 values, the opcode and the payload length,
// followed by a JSON payload.

package discord

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
)

// Opcode identifies the kind of an IPC frame.
type Opcode uint32

const (
	OpHandshake Opcode = iota // client hello carrying the application ID
	OpFrame                   // command or reply
	OpClose                   // either side is closing
	OpPing                    // keepalive from Discord, answered with OpPong
	OpPong                    // echo of an OpPing payload
)

var opcodeNames = [...]string{"HANDSHAKE", "FRAME", "CLOSE", "PING", "PONG"}

func (op Opcode) String() string {
	if int(op) < len(opcodeNames) {
		return opcodeNames[op]
	}
	return "OPCODE(" + strconv.FormatUint(uint64(op), 10) + ")"
}

const (
	// headerLen is the opcode plus the payload length.
	headerLen = 8

	// MaxPayloadSize caps a payload in either direction.
	MaxPayloadSize = 1 << 20

	// maxIPCSlots is the number of socket slots Discord may listen on (0-9).
	maxIPCSlots = 10
)

// ErrPayloadTooLarge is returned for payloads over MaxPayloadSize.
var ErrPayloadTooLarge = errors.New("payload too large")

// ErrIPCNotAvailable is returned when no Discord IPC socket can be reached.
var ErrIPCNotAvailable = errors.New("discord IPC not available")

func checkSize(n uint64) error {
	if n > MaxPayloadSize {
		return fmt.Errorf("%w: %d bytes (max %d)", ErrPayloadTooLarge, n, MaxPayloadSize)
	}
	return nil
}

// EncodeFrame prefixes payload with the header for op.
func EncodeFrame(op Opcode, payload []byte) ([]byte, error) {
	if err := checkSize(uint64(len(payload))); err != nil {
		return nil, err
	}
	frame := make([]byte, 0, headerLen+len(payload))
	frame = binary.LittleEndian.AppendUint32(frame, uint32(op))
	frame = binary.LittleEndian.AppendUint32(frame, uint32(len(payload)))
	return append(frame, payload...), nil
}

// encodeJSON marshals v and frames it under op.
func encodeJSON(op Opcode, v any) ([]byte, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshaling %s payload: %w", op, err)
	}
	return EncodeFrame(op, payload)
}

// DecodeFrame reads exactly one frame from r. A stream that ends inside a
// frame reports io.ErrUnexpectedEOF; one that ends between frames reports
// io.EOF.
func DecodeFrame(r io.Reader) (Opcode, []byte, error) {
	var header [headerLen]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return 0, nil, fmt.Errorf("reading frame header: %w", err)
	}

	op := Opcode(binary.LittleEndian.Uint32(header[:4]))
	n := binary.LittleEndian.Uint32(header[4:])
	if err := checkSize(uint64(n)); err != nil {
		return 0, nil, err
	}

	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return 0, nil, fmt.Errorf("reading %s payload: %w", op, err)
	}
	return op, payload, nil
}
