package wire

import (
	"encoding/binary"
	"fmt"
)

const (
	HeaderSize = 9

	MagicHigh byte = 0x49
	MagicLow  byte = 0x4D
	Version   byte = 1
)

type Header struct {
	Magic   [2]byte
	Version byte
	Command Command
	Length  uint32
}

// Valid reports whether the magic and version match this protocol.
func (h Header) Valid() bool {
	return h.Magic == [2]byte{MagicHigh, MagicLow} && h.Version == Version
}

func EncodeFrame(cmd Command, body []byte) []byte {
	frame := make([]byte, HeaderSize, HeaderSize+len(body))
	frame[0] = MagicHigh
	frame[1] = MagicLow
	frame[2] = Version
	binary.BigEndian.PutUint16(frame[3:5], uint16(cmd))
	binary.BigEndian.PutUint32(frame[5:9], uint32(len(body)))
	return append(frame, body...)
}

// DecodeFrame splits a frame into its header and body. The body slice aliases
// the input.
func DecodeFrame(b []byte) (Header, []byte, error) {
	if len(b) < HeaderSize {
		return Header{}, nil, fmt.Errorf("decode frame (%d bytes): %w", len(b), ErrFrameTooShort)
	}

	header := Header{
		Magic:   [2]byte{b[0], b[1]},
		Version: b[2],
		Command: Command(binary.BigEndian.Uint16(b[3:5])),
		Length:  binary.BigEndian.Uint32(b[5:9]),
	}

	rest := b[HeaderSize:]
	if uint64(header.Length) > uint64(len(rest)) {
		return header, nil, fmt.Errorf("decode frame %s: body declares %d bytes, have %d: %w", header.Command, header.Length, len(rest), ErrTruncatedField)
	}
	return header, rest[:header.Length], nil
}

// Encode marshals msg and wraps it in a frame for cmd.
func Encode(cmd Command, msg any) ([]byte, error) {
	body, err := Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", cmd, err)
	}
	return EncodeFrame(cmd, body), nil
}
