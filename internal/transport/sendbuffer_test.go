package transport

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendBufferPartialSends(t *testing.T) {
	var b SendBuffer
	b.Append([]byte("hello"))
	b.Append([]byte(" world"))
	assert.Equal(t, 11, b.Len())

	require.NoError(t, b.BytesSent(5))
	assert.Equal(t, []byte(" world"), b.Data())

	require.NoError(t, b.BytesSent(6))
	assert.Zero(t, b.Len())
}

func TestSendBufferOverSend(t *testing.T) {
	var b SendBuffer
	b.Append([]byte("abc"))
	assert.Error(t, b.BytesSent(4))
}
