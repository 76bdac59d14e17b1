package group

import (
	"fmt"
	"io"
	"net"

	pkgerrors "github.com/spinwheel/spinwheel/pkg/errors"
)

// MaxFrameSize caps one wire frame. Iterates and reports are tiny; anything
// near this limit is a protocol violation.
const MaxFrameSize = 1024 * 1024

// WriteFrame sends data behind a 4-byte big-endian length prefix.
func WriteFrame(conn net.Conn, data []byte) error {
	if len(data) > MaxFrameSize {
		return fmt.Errorf("%w: %d bytes", pkgerrors.ErrFrameTooLarge, len(data))
	}

	length := uint32(len(data))
	buf := make([]byte, 4+len(data))
	buf[0] = byte(length >> 24)
	buf[1] = byte(length >> 16)
	buf[2] = byte(length >> 8)
	buf[3] = byte(length)
	copy(buf[4:], data)

	_, err := conn.Write(buf)
	return err
}

// ReadFrame receives one length-prefixed frame.
func ReadFrame(conn net.Conn) ([]byte, error) {
	lengthBuf := make([]byte, 4)
	if _, err := io.ReadFull(conn, lengthBuf); err != nil {
		return nil, err
	}

	length := uint32(lengthBuf[0])<<24 | uint32(lengthBuf[1])<<16 |
		uint32(lengthBuf[2])<<8 | uint32(lengthBuf[3])

	if length > MaxFrameSize {
		return nil, fmt.Errorf("%w: %d bytes", pkgerrors.ErrFrameTooLarge, length)
	}

	data := make([]byte, length)
	if _, err := io.ReadFull(conn, data); err != nil {
		return nil, err
	}

	return data, nil
}
