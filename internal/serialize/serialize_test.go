package serialize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriterReaderRoundTrip(t *testing.T) {
	w := NewWriter()
	w.PutVarint(1).PutVarint(300).PutFixed([]byte{0xAA, 0xBB}).PutBlob([]byte("hello")).PutByte(7)

	r := NewReader(w.Bytes())

	v1, err := r.GetVarint()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), v1)

	v2, err := r.GetVarint()
	require.NoError(t, err)
	assert.Equal(t, uint64(300), v2)

	fixed, err := r.GetFixed(2)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xAA, 0xBB}, fixed)

	blob, err := r.GetBlob()
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), blob)

	b, err := r.GetByte()
	require.NoError(t, err)
	assert.Equal(t, byte(7), b)

	assert.Equal(t, 0, r.Remaining())
}

func TestGetVarintTruncated(t *testing.T) {
	r := NewReader(nil)
	_, err := r.GetVarint()
	assert.Error(t, err)
}

func TestGetFixedTruncated(t *testing.T) {
	r := NewReader([]byte{1, 2})
	_, err := r.GetFixed(5)
	assert.Error(t, err)
}

func TestGetBlobTruncated(t *testing.T) {
	w := NewWriter()
	w.PutVarint(10)
	r := NewReader(w.Bytes())
	_, err := r.GetBlob()
	assert.Error(t, err)
}

func TestGetRest(t *testing.T) {
	w := NewWriter()
	w.PutVarint(1).PutFixed([]byte("trailing"))
	r := NewReader(w.Bytes())
	_, err := r.GetVarint()
	require.NoError(t, err)
	assert.Equal(t, []byte("trailing"), r.GetRest())
	assert.Equal(t, 0, r.Remaining())
}
