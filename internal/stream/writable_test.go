package stream

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sanerun/aio/internal/buffer"
)

func TestWritableWriteBytesFinishesSynchronously(t *testing.T) {
	pool := buffer.New(4, 64)

	var written []byte
	w := NewWritable(pool, func(w *Writable, bufferID int) {
		data, err := w.Pool().GetReadableData(bufferID)
		require.NoError(t, err)
		written = append([]byte(nil), data...)
		w.FinishedWriting(bufferID, nil)
	}, nil)

	drained := false
	w.OnDrain(func() { drained = true })

	done := false
	require.NoError(t, w.WriteBytes([]byte("payload"), func(err error) {
		require.NoError(t, err)
		done = true
	}))

	require.True(t, done)
	require.True(t, drained)
	require.Equal(t, "payload", string(written))
	require.Equal(t, WritableStopped, w.State())
}

func TestWritableEndFiresFinishAfterDrain(t *testing.T) {
	pool := buffer.New(4, 64)

	w := NewWritable(pool, func(w *Writable, bufferID int) {
		w.FinishedWriting(bufferID, nil)
	}, nil)

	finished := false
	w.OnFinish(func() { finished = true })

	require.NoError(t, w.WriteBytes([]byte("x"), func(error) {}))
	w.End()

	require.True(t, finished)
	require.Equal(t, WritableEnded, w.State())
}

func TestWritableQueuesWritesUntilPriorOneFinishes(t *testing.T) {
	pool := buffer.New(4, 64)

	var order []int
	w := NewWritable(pool, func(w *Writable, bufferID int) {
		order = append(order, bufferID)
	}, nil)

	id1, _, err := pool.RequestNewBuffer(1)
	require.NoError(t, err)
	id2, _, err := pool.RequestNewBuffer(1)
	require.NoError(t, err)

	require.NoError(t, w.Write(id1, func(error) {}))
	require.NoError(t, w.Write(id2, func(error) {}))
	require.Equal(t, WritableWriting, w.State())
	require.Equal(t, []int{id1}, order)

	w.FinishedWriting(id1, nil)
	require.Equal(t, []int{id1, id2}, order)
}
