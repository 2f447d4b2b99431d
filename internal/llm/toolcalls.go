package llm

import (
	"encoding/json"
	"sort"
	"strings"

	"github.com/google/uuid"
)

type pendingCall struct {
	id   string
	name strings.Builder
	args strings.Builder
}

// toolCallBuffer assembles tool calls whose name and arguments arrive split across deltas.
type toolCallBuffer struct {
	calls map[int]*pendingCall
}

func newToolCallBuffer() *toolCallBuffer {
	return &toolCallBuffer{calls: map[int]*pendingCall{}}
}

func (b *toolCallBuffer) add(deltas []ToolCallDelta) {
	for _, d := range deltas {
		pc, ok := b.calls[d.Index]
		if !ok {
			pc = &pendingCall{}
			b.calls[d.Index] = pc
		}
		if d.ID != "" {
			pc.id = d.ID
		}
		pc.name.WriteString(d.Name)
		pc.args.WriteString(d.Arguments)
	}
}

func (b *toolCallBuffer) empty() bool { return len(b.calls) == 0 }

// assemble returns the complete calls ordered by index. Calls without a name are dropped.
func (b *toolCallBuffer) assemble() []ToolCall {
	indexes := make([]int, 0, len(b.calls))
	for i := range b.calls {
		indexes = append(indexes, i)
	}
	sort.Ints(indexes)

	out := make([]ToolCall, 0, len(indexes))
	for _, i := range indexes {
		pc := b.calls[i]
		name := strings.TrimSpace(pc.name.String())
		if name == "" {
			continue
		}
		id := pc.id
		if id == "" {
			id = "call_" + uuid.NewString()
		}
		args := strings.TrimSpace(pc.args.String())
		if args == "" {
			args = "{}"
		}
		out = append(out, ToolCall{ID: id, Name: name, Arguments: json.RawMessage(args)})
	}
	return out
}
