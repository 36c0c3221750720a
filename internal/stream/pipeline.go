package stream

import (
	"fmt"

	"github.com/sanerun/aio/internal/buffer"
)

// Pipeline wires one Readable through zero or more Transforms into
// one or more Writables, propagating end/error and back-pressure.
type Pipeline struct {
	pool       *buffer.Pool
	source     *Readable
	transforms []*Transform
	sinks      []*Writable

	errorListeners [maxListeners]ErrorListener
	numError       int

	piped bool
}

// NewPipeline validates that every transform shares pool (per §4.8's
// invariant) before accepting them. Sinks are expected to have been
// constructed against the same pool by the caller.
func NewPipeline(pool *buffer.Pool, source *Readable, transforms []*Transform, sinks []*Writable) (*Pipeline, error) {
	for i, tr := range transforms {
		if tr.Pool != pool {
			return nil, fmt.Errorf("stream: transform %d does not share the pipeline's buffer pool", i)
		}
	}
	return &Pipeline{pool: pool, source: source, transforms: transforms, sinks: sinks}, nil
}

// OnError registers a listener for any participating stream's error
// event (source, transform read/write halves, sinks).
func (p *Pipeline) OnError(fn ErrorListener) {
	if p.numError >= maxListeners {
		panic("stream: too many pipeline error listeners")
	}
	p.errorListeners[p.numError] = fn
	p.numError++
}

func (p *Pipeline) emitError(err error) {
	for i := 0; i < p.numError; i++ {
		p.errorListeners[i](err)
	}
}

// Pipe wires the data/end/error fan-out described in §4.8. It may
// only be called once.
func (p *Pipeline) Pipe() error {
	if p.piped {
		return fmt.Errorf("stream: Pipe called twice")
	}
	p.piped = true

	p.source.OnError(p.emitError)
	for _, tr := range p.transforms {
		tr.Readable.OnError(p.emitError)
		tr.Writable.OnError(p.emitError)
	}
	for _, sink := range p.sinks {
		sink.OnError(p.emitError)
	}

	if len(p.transforms) == 0 {
		p.wireToSinks(p.source)
		return nil
	}

	p.source.OnData(p.writeToTransform(p.transforms[0]))
	p.source.OnEnd(p.endTransform(p.transforms[0]))
	for i := 0; i < len(p.transforms)-1; i++ {
		cur, next := p.transforms[i], p.transforms[i+1]
		cur.Readable.OnData(p.writeToTransform(next))
		cur.Readable.OnEnd(p.endTransform(next))
	}
	p.wireToSinks(p.transforms[len(p.transforms)-1].Readable)
	return nil
}

func (p *Pipeline) writeToTransform(tr *Transform) DataListener {
	return func(bufferID, size int) {
		if err := tr.Writable.Write(bufferID, nil); err != nil {
			p.emitError(err)
		}
	}
}

func (p *Pipeline) endTransform(tr *Transform) SimpleListener {
	return func() { tr.End() }
}

func (p *Pipeline) wireToSinks(source *Readable) {
	source.OnData(func(bufferID, size int) {
		for _, sink := range p.sinks {
			if err := sink.Write(bufferID, p.afterWrite); err != nil {
				p.emitError(err)
			}
		}
	})
	source.OnEnd(func() {
		for _, sink := range p.sinks {
			sink.End()
		}
	})
}

// afterWrite is the back-pressure propagation hook: any sink
// completion resumes every transform (reverse order) and then the
// source.
func (p *Pipeline) afterWrite(err error) {
	if err != nil {
		p.emitError(err)
	}
	for i := len(p.transforms) - 1; i >= 0; i-- {
		p.transforms[i].ResumeWriting()
	}
	_ = p.source.Resume()
}

// Start begins the pipeline by starting the source readable.
func (p *Pipeline) Start() error {
	if !p.piped {
		if err := p.Pipe(); err != nil {
			return err
		}
	}
	return p.source.Start()
}

// Unpipe is a no-op placeholder for symmetry with Pipe/Start; the
// fixed-size listener arrays backing each stream are never detached
// once wired, matching the teacher's "no removeListener" idiom.
func (p *Pipeline) Unpipe() {}
