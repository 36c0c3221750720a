package stream

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sanerun/aio/internal/buffer"
)

func TestReadableDeliversSingleChunkThenEnds(t *testing.T) {
	pool := buffer.New(4, 64)

	calls := 0
	r := NewReadable(pool, 8, func(r *Readable, minBytes int) error {
		calls++
		id, span, ok := r.GetBufferOrPause(minBytes)
		require.True(t, ok)
		n := copy(span, []byte("hello"))
		require.NoError(t, r.Push(id, n))
		r.PushEnd()
		r.Reactivate(false)
		return nil
	})

	var gotSize int
	ended := false
	r.OnData(func(id, size int) { gotSize = size })
	r.OnEnd(func() { ended = true })

	require.NoError(t, r.Start())
	require.Equal(t, 1, calls)
	require.Equal(t, 5, gotSize)
	require.True(t, ended)
	require.Equal(t, ReadableEnded, r.State())
}

func TestReadableLoopsWhileReactivatingTrue(t *testing.T) {
	pool := buffer.New(4, 64)

	reads := 0
	r := NewReadable(pool, 4, func(r *Readable, minBytes int) error {
		reads++
		id, span, ok := r.GetBufferOrPause(minBytes)
		require.True(t, ok)
		n := copy(span, []byte("abcd"))
		require.NoError(t, r.Push(id, n))
		r.Reactivate(reads < 3)
		return nil
	})

	chunks := 0
	r.OnData(func(int, int) { chunks++ })
	require.NoError(t, r.Start())
	require.Equal(t, 3, reads)
	require.Equal(t, 3, chunks)
	require.Equal(t, ReadablePaused, r.State())
}

func TestReadableAsyncReadErrorLatchesErrored(t *testing.T) {
	pool := buffer.New(2, 32)
	wantErr := errors.New("boom")

	r := NewReadable(pool, 4, func(r *Readable, minBytes int) error {
		return wantErr
	})

	var gotErr error
	r.OnError(func(err error) { gotErr = err })

	err := r.Start()
	require.ErrorIs(t, err, wantErr)
	require.Equal(t, wantErr, gotErr)
	require.Equal(t, ReadableErrored, r.State())
}
