package stream

import "github.com/sanerun/aio/internal/buffer"

// Duplex composes a Readable and a Writable half over one shared
// buffer.Pool, the shape File/Socket pipes and TransformStream both
// build on.
type Duplex struct {
	Readable *Readable
	Writable *Writable
	Pool     *buffer.Pool
}

// NewDuplex wires a Readable and Writable sharing pool.
func NewDuplex(pool *buffer.Pool, minReadBytes int, read AsyncReadFunc, write AsyncWriteFunc, canEnd func() bool) *Duplex {
	return &Duplex{
		Readable: NewReadable(pool, minReadBytes, read),
		Writable: NewWritable(pool, write, canEnd),
		Pool:     pool,
	}
}
