package propsvc

import (
	"bytes"
	"encoding/binary"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syspropkit/sysprop/internal/propmem"
)

func TestRequestRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeSetRequest(&buf, "sys.boot.completed", "1"))

	name, value, err := readSetRequest(&buf)
	require.NoError(t, err)
	assert.Equal(t, "sys.boot.completed", name)
	assert.Equal(t, "1", value)
}

func TestRequestEmptyValue(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeSetRequest(&buf, "persist.sys.locale", ""))

	name, value, err := readSetRequest(&buf)
	require.NoError(t, err)
	assert.Equal(t, "persist.sys.locale", name)
	assert.Empty(t, value)
}

func TestRequestRejectsOversizedFields(t *testing.T) {
	frame := func(op, nameLen, valueLen uint32) []byte {
		hdr := make([]byte, requestHeaderSize)
		binary.LittleEndian.PutUint32(hdr[0:4], op)
		binary.LittleEndian.PutUint32(hdr[4:8], nameLen)
		binary.LittleEndian.PutUint32(hdr[8:12], valueLen)
		return hdr
	}

	// A hostile header must be rejected before any payload allocation.
	_, _, err := readSetRequest(bytes.NewReader(frame(OpSet, 1<<31, 0)))
	assert.ErrorIs(t, err, errMalformedRequest)

	_, _, err = readSetRequest(bytes.NewReader(frame(OpSet, 4, maxFrameValue+1)))
	assert.ErrorIs(t, err, errMalformedRequest)

	_, _, err = readSetRequest(bytes.NewReader(frame(OpSet, 0, 0)))
	assert.ErrorIs(t, err, errMalformedRequest)

	_, _, err = readSetRequest(bytes.NewReader(frame(99, 4, 0)))
	assert.ErrorIs(t, err, errMalformedRequest)
}

func TestStatusRoundTrip(t *testing.T) {
	for _, s := range []Status{
		StatusOK, StatusInvalidName, StatusValueTooLong,
		StatusInvalidEncoding, StatusPermissionDenied, StatusInternalError,
	} {
		var buf bytes.Buffer
		require.NoError(t, writeStatus(&buf, s))
		got, err := readStatus(&buf)
		require.NoError(t, err)
		assert.Equal(t, s, got)
	}
}

func TestStatusErrorMapping(t *testing.T) {
	assert.NoError(t, StatusOK.Err())
	assert.ErrorIs(t, StatusInvalidName.Err(), propmem.ErrInvalidName)
	assert.ErrorIs(t, StatusValueTooLong.Err(), propmem.ErrValueTooLong)
	assert.ErrorIs(t, StatusInvalidEncoding.Err(), ErrInvalidEncoding)
	assert.ErrorIs(t, StatusPermissionDenied.Err(), ErrPermissionDenied)
	assert.Error(t, StatusInternalError.Err())

	// And the reverse direction used by the server.
	assert.Equal(t, StatusOK, statusFor(nil))
	assert.Equal(t, StatusInvalidName, statusFor(propmem.ErrInvalidName))
	assert.Equal(t, StatusValueTooLong, statusFor(propmem.ErrValueTooLong))
	assert.Equal(t, StatusPermissionDenied, statusFor(ErrPermissionDenied))
	assert.Equal(t, StatusInternalError, statusFor(assert.AnError))
}

func TestRequestLongValue(t *testing.T) {
	long := strings.Repeat("v", propmem.MaxValueLen)
	var buf bytes.Buffer
	require.NoError(t, writeSetRequest(&buf, "debug.trace.args", long))

	name, value, err := readSetRequest(&buf)
	require.NoError(t, err)
	assert.Equal(t, "debug.trace.args", name)
	assert.Equal(t, long, value)
}
