package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
)

// scriptedProvider replays one chunk script per OpenStream call and records the requests.
type scriptedProvider struct {
	name    string
	mu      sync.Mutex
	rounds  [][]Chunk
	errs    []error
	openErr error
	calls   []StreamRequest
}

func (p *scriptedProvider) Name() string { return p.name }

func (p *scriptedProvider) OpenStream(_ context.Context, req StreamRequest) (ChunkStream, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, req)
	if p.openErr != nil {
		return nil, p.openErr
	}
	i := len(p.calls) - 1
	var chunks []Chunk
	var tail error
	if len(p.rounds) > 0 {
		chunks = p.rounds[min(i, len(p.rounds)-1)]
	}
	if i < len(p.errs) {
		tail = p.errs[i]
	}
	return &sliceStream{chunks: chunks, tail: tail}, nil
}

func (p *scriptedProvider) requests() []StreamRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]StreamRequest(nil), p.calls...)
}

type sliceStream struct {
	chunks []Chunk
	tail   error
	closed bool
}

func (s *sliceStream) Recv() (Chunk, error) {
	if len(s.chunks) == 0 {
		if s.tail != nil {
			return Chunk{}, s.tail
		}
		return Chunk{}, io.EOF
	}
	c := s.chunks[0]
	s.chunks = s.chunks[1:]
	return c, nil
}

func (s *sliceStream) Close() error {
	s.closed = true
	return nil
}

type toolFunc func(ctx context.Context, name string, args json.RawMessage) (any, error)

func (f toolFunc) Execute(ctx context.Context, name string, args json.RawMessage) (any, error) {
	return f(ctx, name, args)
}

var errBoom = errors.New("boom")
