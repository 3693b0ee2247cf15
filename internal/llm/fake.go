package llm

import (
	"context"
	"io"

	"github.com/flowline-ai/orchestrator/pkg/types"
)

// ScriptedModel is an in-memory Model that replays a fixed sequence of
// Frames regardless of input, used by orchestrator tests to drive
// deterministic scenarios without a live provider.
type ScriptedModel struct {
	// Scripts maps a call index (0-based, incremented per Complete call) to
	// the frames that call should yield. If the index is beyond the slice,
	// the last script is reused.
	Scripts [][]Frame

	calls int
}

// Complete returns the next scripted Stream, ignoring systemPrompt, history
// and tools.
func (m *ScriptedModel) Complete(ctx context.Context, systemPrompt string, history []types.Message, tools []ToolSchema) (Stream, error) {
	idx := m.calls
	if idx >= len(m.Scripts) {
		idx = len(m.Scripts) - 1
	}
	m.calls++
	if idx < 0 {
		return &scriptedStream{}, nil
	}
	frames := make([]Frame, len(m.Scripts[idx]))
	copy(frames, m.Scripts[idx])
	return &scriptedStream{frames: frames}, nil
}

// scriptedStream replays a fixed Frame slice.
type scriptedStream struct {
	frames []Frame
	pos    int
}

func (s *scriptedStream) Recv(ctx context.Context) (Frame, error) {
	select {
	case <-ctx.Done():
		return Frame{}, ctx.Err()
	default:
	}
	if s.pos >= len(s.frames) {
		return Frame{}, io.EOF
	}
	f := s.frames[s.pos]
	s.pos++
	return f, nil
}

func (s *scriptedStream) Close() error { return nil }
