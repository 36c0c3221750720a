package buffer

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRequestNewBufferLinearScan(t *testing.T) {
	p := New(4, 64)

	id, data, err := p.RequestNewBuffer(32)
	require.NoError(t, err)
	require.Len(t, data, 32)
	require.Equal(t, KindWritable, p.slots[id].Kind())
}

func TestRequestNewBufferExhausted(t *testing.T) {
	p := New(1, 16)
	_, _, err := p.RequestNewBuffer(8)
	require.NoError(t, err)
	_, _, err = p.RequestNewBuffer(8)
	require.ErrorIs(t, err, ErrNoFreeSlot)
}

func TestUnrefReclaimsSlot(t *testing.T) {
	p := New(1, 16)
	id, _, err := p.RequestNewBuffer(8)
	require.NoError(t, err)

	require.NoError(t, p.UnrefBuffer(id))
	_, _, err = p.RequestNewBuffer(8)
	require.NoError(t, err, "slot should be reusable once refcount hits zero")
}

func TestUnrefUnderflowIsError(t *testing.T) {
	p := New(1, 16)
	id, _, err := p.RequestNewBuffer(8)
	require.NoError(t, err)
	require.NoError(t, p.UnrefBuffer(id))
	require.ErrorIs(t, p.UnrefBuffer(id), ErrUnderflow)
}

func TestChildViewSharesParentStorageAndRefcount(t *testing.T) {
	p := New(2, 32)
	parent, data, err := p.RequestNewBuffer(16)
	require.NoError(t, err)
	copy(data, []byte("0123456789abcdef"))

	child, err := p.CreateChildView(parent, 4, 4)
	require.NoError(t, err)

	got, err := p.GetReadableData(child)
	require.NoError(t, err)
	require.Equal(t, []byte("4567"), got)

	// releasing the child must not reclaim the parent's own reference
	require.NoError(t, p.UnrefBuffer(child))
	stillParent, err := p.GetReadableData(parent)
	require.NoError(t, err)
	require.Equal(t, data, stillParent)
}

func TestChildViewResizeUpwardIsIgnored(t *testing.T) {
	p := New(2, 32)
	parent, _, err := p.RequestNewBuffer(16)
	require.NoError(t, err)
	child, err := p.CreateChildView(parent, 0, 4)
	require.NoError(t, err)

	require.NoError(t, p.SetNewBufferSize(child, 100))
	require.Equal(t, 4, p.slots[child].childLength)

	require.NoError(t, p.SetNewBufferSize(child, 2))
	require.Equal(t, 2, p.slots[child].childLength)
}

func TestMakeGrowableDelegatesToResizer(t *testing.T) {
	p := New(1, 4)
	id, _, err := p.RequestNewBuffer(4)
	require.NoError(t, err)

	resizeCalls := 0
	require.NoError(t, p.MakeGrowable(id, func(current []byte, newSize int) ([]byte, error) {
		resizeCalls++
		grown := make([]byte, newSize)
		copy(grown, current)
		return grown, nil
	}))

	require.NoError(t, p.SetNewBufferSize(id, 128))
	require.Equal(t, 1, resizeCalls)
	data, err := p.GetReadableData(id)
	require.NoError(t, err)
	require.Len(t, data, 128)
}
