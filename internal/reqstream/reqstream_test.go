package reqstream

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sanerun/aio/internal/buffer"
	"github.com/sanerun/aio/internal/request"
)

// fakeLoop runs every submitted request's callback synchronously and
// inline, standing in for a real *aio.EventLoop so this package can be
// tested without pulling in the root module (which imports internal/kernel
// and would need a real backend).
type fakeLoop struct {
	fileReads  []*request.FileReadData
	fileWrites []*request.FileWriteData
}

func (f *fakeLoop) Submit(req *request.Request) {
	switch d := req.Data.(type) {
	case *request.FileReadData:
		f.fileReads = append(f.fileReads, d)
	case *request.FileWriteData:
		f.fileWrites = append(f.fileWrites, d)
	}
}

func TestFileReaderPushesDataOnCompletion(t *testing.T) {
	pool := buffer.New(4, 64)
	loop := &fakeLoop{}

	readable := NewFileReader(loop, pool, 3, 8)

	var gotSize int
	readable.OnData(func(id, size int) { gotSize = size })

	require.NoError(t, readable.Start())
	require.Len(t, loop.fileReads, 1)

	d := loop.fileReads[0]
	d.Callback(nil, request.FileReadCompletion{BytesRead: 5, EOF: true})

	require.Equal(t, 5, gotSize)
}

func TestFileWriterIssuesWriteRequestForBuffer(t *testing.T) {
	pool := buffer.New(4, 64)
	loop := &fakeLoop{}

	writable := NewFileWriter(loop, pool, 4)

	finished := false
	require.NoError(t, writable.WriteBytes([]byte("hello"), func(err error) {
		require.NoError(t, err)
		finished = true
	}))

	require.Len(t, loop.fileWrites, 1)
	d := loop.fileWrites[0]
	require.Equal(t, "hello", string(d.Buffer))
	d.Callback(nil, request.FileWriteCompletion{BytesWritten: 5})

	require.True(t, finished)
}
