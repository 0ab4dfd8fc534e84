// Package sink implements the three terminal pipeline kinds spec.md's
// overview names (files, network, null): Pipelines with no successors,
// reached as the last Node on a query's source→sink path.
package sink

import (
	"github.com/nebulacore/streamengine/pkg/buffer"
	"github.com/nebulacore/streamengine/pkg/pipeline"
)

// NullSink discards every buffer it receives. Grounded on the teacher's
// no-op stub backends used to exercise the storage interface in isolation
// (pkg/storage/interface.go's discard-everything test doubles), generalized
// to a real sink kind rather than a test double since spec.md's overview
// lists "null" alongside files and network as a first-class sink.
type NullSink struct{}

func NewNullSink() *NullSink { return &NullSink{} }

func (s *NullSink) Setup(ctx *pipeline.Context) error { return nil }

func (s *NullSink) Execute(ctx *pipeline.Context, wctx *pipeline.WorkerContext, buf *buffer.TupleBuffer) error {
	buf.Release()
	return nil
}

func (s *NullSink) Terminate(ctx *pipeline.Context) error { return nil }
