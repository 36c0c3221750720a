// Package reqstream binds File and Socket requests into
// stream.Readable producers and stream.Writable consumers, the glue
// between the request/kernel machinery and the buffer-pool-driven
// stream layer.
package reqstream

import (
	"github.com/sanerun/aio/internal/buffer"
	"github.com/sanerun/aio/internal/request"
	"github.com/sanerun/aio/internal/stream"
)

// Submitter is the slice of EventLoop a request-stream adapter needs:
// enqueue a freshly constructed request onto the loop's staging list.
type Submitter interface {
	Submit(req *request.Request)
}

// FileReader drives a stream.Readable from repeated FileRead requests
// against fd, advancing offset by each read's byte count.
type FileReader struct {
	loop   Submitter
	fd     int
	offset int64
	pool   *buffer.Pool
}

// NewFileReader builds the adapter and returns the stream it drives.
func NewFileReader(loop Submitter, pool *buffer.Pool, fd int, minReadBytes int) *stream.Readable {
	fr := &FileReader{loop: loop, fd: fd, pool: pool}
	return stream.NewReadable(pool, minReadBytes, fr.read)
}

func (fr *FileReader) read(r *stream.Readable, minBytes int) error {
	id, span, ok := r.GetBufferOrPause(minBytes)
	if !ok {
		return nil
	}
	req := request.NewFileRead(fr.fd, span, fr.offset, func(_ *request.Request, c request.FileReadCompletion) {
		if c.Err != nil {
			_ = fr.pool.UnrefBuffer(id)
			r.EmitError(c.Err)
			r.Reactivate(false)
			return
		}
		fr.offset += int64(c.BytesRead)
		if c.BytesRead > 0 {
			_ = r.Push(id, c.BytesRead)
		} else {
			_ = fr.pool.UnrefBuffer(id)
		}
		if c.EOF {
			r.PushEnd()
			r.Reactivate(false)
			return
		}
		r.Reactivate(true)
	})
	fr.loop.Submit(req)
	return nil
}

// FileWriter drives a stream.Writable by issuing FileWrite requests,
// advancing offset by each write's byte count.
type FileWriter struct {
	loop   Submitter
	fd     int
	offset int64
}

// NewFileWriter builds the adapter and returns the stream it drives.
func NewFileWriter(loop Submitter, pool *buffer.Pool, fd int) *stream.Writable {
	fw := &FileWriter{loop: loop, fd: fd}
	return stream.NewWritable(pool, fw.write, nil)
}

func (fw *FileWriter) write(w *stream.Writable, bufferID int) {
	// the data is read through w's own pool (Writable.Pool), which
	// NewFileWriter set to the pool passed in above.
	data, err := poolDataFor(w, bufferID)
	if err != nil {
		w.FinishedWriting(bufferID, err)
		return
	}
	req := request.NewFileWrite(fw.fd, data, fw.offset, func(_ *request.Request, c request.FileWriteCompletion) {
		fw.offset += int64(c.BytesWritten)
		w.FinishedWriting(bufferID, c.Err)
	})
	fw.loop.Submit(req)
}

// SocketReader drives a stream.Readable from repeated SocketReceive requests.
type SocketReader struct {
	loop Submitter
	fd   int
	pool *buffer.Pool
}

// NewSocketReader builds the adapter and returns the stream it drives.
func NewSocketReader(loop Submitter, pool *buffer.Pool, fd int, minReadBytes int) *stream.Readable {
	sr := &SocketReader{loop: loop, fd: fd, pool: pool}
	return stream.NewReadable(pool, minReadBytes, sr.read)
}

func (sr *SocketReader) read(r *stream.Readable, minBytes int) error {
	id, span, ok := r.GetBufferOrPause(minBytes)
	if !ok {
		return nil
	}
	req := request.NewSocketReceive(sr.fd, span, func(_ *request.Request, c request.SocketReceiveCompletion) {
		if c.Err != nil {
			_ = sr.pool.UnrefBuffer(id)
			r.EmitError(c.Err)
			r.Reactivate(false)
			return
		}
		if c.BytesRead > 0 {
			_ = r.Push(id, c.BytesRead)
		} else {
			_ = sr.pool.UnrefBuffer(id)
		}
		if c.Disconnected {
			r.PushEnd()
			r.Reactivate(false)
			return
		}
		r.Reactivate(true)
	})
	sr.loop.Submit(req)
	return nil
}

// SocketWriter drives a stream.Writable by issuing SocketSend requests.
type SocketWriter struct {
	loop Submitter
	fd   int
}

// NewSocketWriter builds the adapter and returns the stream it drives.
func NewSocketWriter(loop Submitter, pool *buffer.Pool, fd int) *stream.Writable {
	sw := &SocketWriter{loop: loop, fd: fd}
	return stream.NewWritable(pool, sw.write, nil)
}

func (sw *SocketWriter) write(w *stream.Writable, bufferID int) {
	data, err := poolDataFor(w, bufferID)
	if err != nil {
		w.FinishedWriting(bufferID, err)
		return
	}
	req := request.NewSocketSend(sw.fd, data, func(_ *request.Request, c request.SocketSendCompletion) {
		w.FinishedWriting(bufferID, c.Err)
	})
	sw.loop.Submit(req)
}

// poolDataFor is the one spot that needs the writable's backing pool;
// it reaches it through the exported Writable.Pool accessor.
func poolDataFor(w *stream.Writable, bufferID int) ([]byte, error) {
	return w.Pool().GetReadableData(bufferID)
}
