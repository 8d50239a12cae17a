// Package propsvc implements the local request channel between property
// clients and the privileged writer daemon: a fixed-header binary protocol
// over a unix socket carrying (name, value) set requests and a status
// response, plus the serving loop that applies requests to the shared
// property area under single-writer discipline.
package propsvc

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/syspropkit/sysprop/internal/propmem"
)

// Wire format: a 12-byte little-endian request header followed by the name
// and value bytes, answered with a 4-byte status.
//
//	request:  op uint32 | nameLen uint32 | valueLen uint32 | name | value
//	response: status int32
const (
	requestHeaderSize = 12
	responseSize      = 4

	// OpSet requests that the daemon apply one property write.
	OpSet = uint32(1)

	// maxFrameValue caps the value bytes a frame may carry. Deliberately
	// above the area's own value limit so an oversized value still gets a
	// StatusValueTooLong response instead of a dropped connection; only
	// hostile headers are cut off at the framing layer.
	maxFrameValue = 1 << 16
)

// Status is the daemon's verdict on a request.
type Status int32

const (
	StatusOK Status = iota
	StatusInvalidName
	StatusValueTooLong
	StatusInvalidEncoding
	StatusPermissionDenied
	StatusInternalError
)

var (
	// ErrConnectFailed indicates the daemon socket could not be reached.
	ErrConnectFailed = errors.New("cannot connect to property service")

	// ErrPermissionDenied indicates the daemon refused the write.
	ErrPermissionDenied = errors.New("property set permission denied")

	// ErrInvalidEncoding indicates a non-UTF-8 name or value.
	ErrInvalidEncoding = errors.New("invalid UTF-8 encoding")

	errMalformedRequest = errors.New("malformed property request")
)

// Err maps a response status onto the client-visible error taxonomy.
func (s Status) Err() error {
	switch s {
	case StatusOK:
		return nil
	case StatusInvalidName:
		return propmem.ErrInvalidName
	case StatusValueTooLong:
		return propmem.ErrValueTooLong
	case StatusInvalidEncoding:
		return ErrInvalidEncoding
	case StatusPermissionDenied:
		return ErrPermissionDenied
	default:
		return fmt.Errorf("property service error (status %d)", int32(s))
	}
}

// statusFor maps an application error onto a wire status.
func statusFor(err error) Status {
	switch {
	case err == nil:
		return StatusOK
	case errors.Is(err, propmem.ErrInvalidName):
		return StatusInvalidName
	case errors.Is(err, propmem.ErrValueTooLong):
		return StatusValueTooLong
	case errors.Is(err, ErrInvalidEncoding):
		return StatusInvalidEncoding
	case errors.Is(err, ErrPermissionDenied):
		return StatusPermissionDenied
	default:
		return StatusInternalError
	}
}

// writeSetRequest frames one set request onto w.
func writeSetRequest(w io.Writer, name, value string) error {
	buf := make([]byte, requestHeaderSize+len(name)+len(value))
	binary.LittleEndian.PutUint32(buf[0:4], OpSet)
	binary.LittleEndian.PutUint32(buf[4:8], uint32(len(name)))
	binary.LittleEndian.PutUint32(buf[8:12], uint32(len(value)))
	copy(buf[requestHeaderSize:], name)
	copy(buf[requestHeaderSize+len(name):], value)
	_, err := w.Write(buf)
	return err
}

// readSetRequest decodes one set request from r, enforcing the wire bounds
// before allocating payload buffers.
func readSetRequest(r io.Reader) (name, value string, err error) {
	var hdr [requestHeaderSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return "", "", err
	}
	op := binary.LittleEndian.Uint32(hdr[0:4])
	nameLen := binary.LittleEndian.Uint32(hdr[4:8])
	valueLen := binary.LittleEndian.Uint32(hdr[8:12])

	if op != OpSet {
		return "", "", fmt.Errorf("%w: unknown op %d", errMalformedRequest, op)
	}
	if nameLen == 0 || nameLen > propmem.MaxNameLen {
		return "", "", fmt.Errorf("%w: name length %d", errMalformedRequest, nameLen)
	}
	if valueLen > maxFrameValue {
		return "", "", fmt.Errorf("%w: value length %d", errMalformedRequest, valueLen)
	}

	payload := make([]byte, nameLen+valueLen)
	if _, err := io.ReadFull(r, payload); err != nil {
		return "", "", err
	}
	return string(payload[:nameLen]), string(payload[nameLen:]), nil
}

// writeStatus frames one response onto w.
func writeStatus(w io.Writer, s Status) error {
	var buf [responseSize]byte
	binary.LittleEndian.PutUint32(buf[:], uint32(s))
	_, err := w.Write(buf[:])
	return err
}

// readStatus decodes one response from r.
func readStatus(r io.Reader) (Status, error) {
	var buf [responseSize]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return StatusInternalError, err
	}
	return Status(int32(binary.LittleEndian.Uint32(buf[:]))), nil
}
