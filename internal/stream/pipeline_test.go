package stream

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sanerun/aio/internal/buffer"
)

func TestPipelineCopiesSourceToSinkWithNoTransforms(t *testing.T) {
	pool := buffer.New(8, 64)

	chunks := [][]byte{[]byte("foo"), []byte("bar")}
	idx := 0
	source := NewReadable(pool, 8, func(r *Readable, minBytes int) error {
		if idx >= len(chunks) {
			r.PushEnd()
			r.Reactivate(false)
			return nil
		}
		id, span, ok := r.GetBufferOrPause(minBytes)
		require.True(t, ok)
		n := copy(span, chunks[idx])
		idx++
		require.NoError(t, r.Push(id, n))
		r.Reactivate(true)
		return nil
	})

	var written []string
	sink := NewWritable(pool, func(w *Writable, bufferID int) {
		data, err := w.Pool().GetReadableData(bufferID)
		require.NoError(t, err)
		written = append(written, string(data))
		w.FinishedWriting(bufferID, nil)
	}, nil)

	finished := false
	sink.OnFinish(func() { finished = true })

	p, err := NewPipeline(pool, source, nil, []*Writable{sink})
	require.NoError(t, err)
	require.NoError(t, p.Start())

	require.Equal(t, []string{"foo", "bar"}, written)
	require.True(t, finished)
}

func TestNewPipelineRejectsMismatchedTransformPool(t *testing.T) {
	poolA := buffer.New(4, 32)
	poolB := buffer.New(4, 32)

	source := NewReadable(poolA, 4, func(*Readable, int) error { return nil })
	tr := NewTransform(poolB, 16, func(input, output []byte) (int, int) { return 0, 0 }, nil)

	_, err := NewPipeline(poolA, source, []*Transform{tr}, nil)
	require.Error(t, err)
}
