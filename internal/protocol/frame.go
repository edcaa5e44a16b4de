// Package protocol implements the framed wire codec used between the
// simulation server and its clients: a fixed 8-byte header followed by
// exactly payload_len bytes, plus blocking and best-effort send primitives.
package protocol

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"time"
)

// HeaderSize is the fixed size of every message header: u16 type, u16
// reserved, u32 payload_len, little-endian, no padding.
const HeaderSize = 8

// Header is the fixed framing header preceding every message payload.
type Header struct {
	Type       MessageType
	Reserved   uint16
	PayloadLen uint32
}

// Marshal serializes the header to its 8-byte wire form.
func (h Header) Marshal() []byte {
	buf := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint16(buf[0:2], uint16(h.Type))
	binary.LittleEndian.PutUint16(buf[2:4], h.Reserved)
	binary.LittleEndian.PutUint32(buf[4:8], h.PayloadLen)
	return buf
}

// UnmarshalHeader parses an 8-byte buffer into a Header.
func UnmarshalHeader(buf []byte) (Header, error) {
	if len(buf) < HeaderSize {
		return Header{}, fmt.Errorf("protocol: short header: %d bytes", len(buf))
	}
	return Header{
		Type:       MessageType(binary.LittleEndian.Uint16(buf[0:2])),
		Reserved:   binary.LittleEndian.Uint16(buf[2:4]),
		PayloadLen: binary.LittleEndian.Uint32(buf[4:8]),
	}, nil
}

// Message is a fully framed header plus owned payload bytes.
type Message struct {
	Type    MessageType
	Payload []byte
}

// Send writes a complete message to conn, looping on partial writes and
// retrying on transient interruption. Blocks until the whole frame is
// written or a hard error occurs.
func Send(conn net.Conn, msgType MessageType, payload []byte) error {
	hdr := Header{Type: msgType, PayloadLen: uint32(len(payload))}
	frame := append(hdr.Marshal(), payload...)
	return writeFull(conn, frame)
}

// SendBestEffort attempts a non-blocking write: it applies a near-zero write
// deadline so a slow peer yields ErrWouldBlock instead of stalling the
// caller. Used only for async broadcast, where a stuck consumer must never
// stall the simulation loop. The deadline is cleared before returning.
func SendBestEffort(conn net.Conn, msgType MessageType, payload []byte) error {
	hdr := Header{Type: msgType, PayloadLen: uint32(len(payload))}
	frame := append(hdr.Marshal(), payload...)

	if err := conn.SetWriteDeadline(time.Now().Add(time.Millisecond)); err != nil {
		return err
	}
	defer conn.SetWriteDeadline(time.Time{})

	_, err := conn.Write(frame)
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return ErrWouldBlock
		}
		return err
	}
	return nil
}

// ErrWouldBlock is returned by SendBestEffort when the peer's receive buffer
// is full and the message would otherwise have to wait.
var ErrWouldBlock = fmt.Errorf("protocol: write would block")

func writeFull(conn net.Conn, buf []byte) error {
	for len(buf) > 0 {
		n, err := conn.Write(buf)
		if err != nil {
			return err
		}
		buf = buf[n:]
	}
	return nil
}

// RecvHeader reads exactly one header from conn, looping on partial reads.
// Any early end-of-stream is reported as an error.
func RecvHeader(conn net.Conn) (Header, error) {
	buf := make([]byte, HeaderSize)
	if _, err := io.ReadFull(conn, buf); err != nil {
		return Header{}, err
	}
	return UnmarshalHeader(buf)
}

// RecvPayload reads exactly n payload bytes, looping on partial reads.
func RecvPayload(conn net.Conn, n uint32) ([]byte, error) {
	buf := make([]byte, n)
	if n == 0 {
		return buf, nil
	}
	if _, err := io.ReadFull(conn, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// RecvMessage reads one complete framed message: header then exactly
// payload_len payload bytes.
func RecvMessage(conn net.Conn) (Message, error) {
	hdr, err := RecvHeader(conn)
	if err != nil {
		return Message{}, err
	}
	payload, err := RecvPayload(conn, hdr.PayloadLen)
	if err != nil {
		return Message{}, err
	}
	return Message{Type: hdr.Type, Payload: payload}, nil
}

// Drain discards exactly n bytes without interpreting them, preserving frame
// alignment for a message whose type or length wasn't recognized.
func Drain(conn net.Conn, n uint32) error {
	if n == 0 {
		return nil
	}
	_, err := io.CopyN(io.Discard, conn, int64(n))
	return err
}
