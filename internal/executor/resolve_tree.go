package executor

import (
	"context"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/hanpama/tracegraph/internal/extension"
	schema "github.com/hanpama/tracegraph/internal/schema"
)

// fieldNode tracks one field resolution for extension events.
//
// pending counts the node's own completion plus every live child. The node
// ends when it drops to zero, after which it releases its reference on the
// parent, so ResolveEnd of a field always follows ResolveEnd of all its
// descendants. A nil *fieldNode (no extensions registered) is inert.
type fieldNode struct {
	parent  *fieldNode
	info    *extension.ResolveInfo
	ctx     context.Context
	started bool
	pending atomic.Int32
}

func newFieldNode(state *executionState, parent *fieldNode, objectType *schema.Type, fieldDef *schema.Field, path Path) *fieldNode {
	if state.set == nil {
		return nil
	}
	n := &fieldNode{
		parent: parent,
		info: &extension.ResolveInfo{
			FieldName:  fieldDef.Name,
			ParentType: objectType.Name,
			ReturnType: fieldDef.Type.String(),
			Path:       responsePath(path),
		},
	}
	n.pending.Store(1)
	if parent != nil {
		parent.pending.Add(1)
	}
	return n
}

// start assigns the resolve id and emits ResolveStart.
func (n *fieldNode) start(state *executionState) {
	if n == nil || n.started {
		return
	}
	n.info.ID.Current = state.resolveSeq.Add(1)
	if n.parent != nil {
		n.info.ID.Parent = n.parent.info.ID.Current
	}
	n.started = true
	n.ctx = state.set.ResolveStart(n.parent.context(state), n.info)
}

// context returns the context runtime calls made for this field run under.
func (n *fieldNode) context(state *executionState) context.Context {
	if n == nil || n.ctx == nil {
		return state.context
	}
	return n.ctx
}

// release drops one reference and ends every node that reaches zero, walking
// towards the root.
func (n *fieldNode) release(state *executionState) {
	for ; n != nil; n = n.parent {
		if n.pending.Add(-1) > 0 {
			return
		}
		if n.started {
			state.set.ResolveEnd(n.ctx, n.info)
		}
	}
}

// responsePath renders a path as dot separated segments, e.g. "user.posts.0.title".
func responsePath(path Path) string {
	var b strings.Builder
	for i, elem := range path {
		if i > 0 {
			b.WriteByte('.')
		}
		switch v := elem.(type) {
		case string:
			b.WriteString(v)
		case int:
			b.WriteString(strconv.Itoa(v))
		}
	}
	return b.String()
}
