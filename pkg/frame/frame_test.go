package frame

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	buf, err := Encode("server_sync", map[string]any{"uid1": []any{"P", 4001, []float64{400, 400}}})
	require.NoError(t, err)

	f, err := ReadFrom(bytes.NewReader(buf))
	require.NoError(t, err)
	assert.Equal(t, "server_sync", f.Name)
	require.Len(t, f.Contents, 1)

	var got map[string][]any
	require.NoError(t, f.Unmarshal(0, &got))
	assert.Contains(t, got, "uid1")
}

func TestEncodeDecodeMultipleContents(t *testing.T) {
	buf, err := Encode("calling_server_computing", "uid-1", "check_walk", "Z")
	require.NoError(t, err)

	f, err := ReadFrom(bytes.NewReader(buf))
	require.NoError(t, err)
	assert.Equal(t, "calling_server_computing", f.Name)
	require.Len(t, f.Contents, 3)

	var uid, method, arg string
	require.NoError(t, f.Unmarshal(0, &uid))
	require.NoError(t, f.Unmarshal(1, &method))
	require.NoError(t, f.Unmarshal(2, &arg))
	assert.Equal(t, "uid-1", uid)
	assert.Equal(t, "check_walk", method)
	assert.Equal(t, "Z", arg)
}

func TestEncodeRejectsNotSerializable(t *testing.T) {
	_, err := Encode("bad", make(chan int))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotSerializable)
}

func TestReadFromRejectsZeroLengthBody(t *testing.T) {
	_, err := ReadFrom(bytes.NewReader([]byte{0, 0, 0, 0}))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMalformedPacket)
}

func TestReadFromRejectsMissingName(t *testing.T) {
	body := []byte(`{"contents":[]}`)
	var header [4]byte
	header[3] = byte(len(body))
	buf := append(header[:], body...)

	_, err := ReadFrom(bytes.NewReader(buf))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMalformedPacket)
}

func TestReadFromRejectsInvalidJSON(t *testing.T) {
	body := []byte(`{not json`)
	var header [4]byte
	header[3] = byte(len(body))
	buf := append(header[:], body...)

	_, err := ReadFrom(bytes.NewReader(buf))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMalformedPacket)
}

func TestReadFromPropagatesEOFOnPartialFrame(t *testing.T) {
	buf, err := Encode("server_sync")
	require.NoError(t, err)

	// Truncate the body so the reader sees a short frame.
	_, err = ReadFrom(bytes.NewReader(buf[:len(buf)-1]))
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrMalformedPacket)
}
