// Copyright 2018 the LinuxBoot Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package treemodel implements the ordered mutable tree the parser
// builds. Every structural element discovered in an image becomes one
// Node; later passes only annotate nodes, never reshape the tree.
package treemodel

import (
	"fmt"
	"strings"
)

// Node is one item of the parse tree. Header, body and tail are views
// into the image buffer (or into an owned decompressed buffer for the
// children of encapsulation sections).
type Node struct {
	typ     Type
	subtype uint8
	name    string
	text    string
	info    string

	// offset is the absolute offset in the original image. For nodes
	// inside decompressed bodies it is the offset within the expanded
	// buffer instead.
	offset uint64

	header []byte
	body   []byte
	tail   []byte

	parsingData ParsingData

	fixed      bool
	compressed bool
	action     Action
	marking    Marking

	parent   *Node
	children []*Node
}

// Model owns the tree. The zero value is not usable; use New.
type Model struct {
	root *Node
}

// New creates a model with an empty root node.
func New() *Model {
	return &Model{root: &Node{typ: TypeRoot, name: "Root", action: ActionNoAction}}
}

// Root returns the root node.
func (m *Model) Root() *Node {
	return m.root
}

// AddItem creates a node and links it relative to parent according to
// mode. For ModeBefore and ModeAfter, parent is the sibling anchor and
// the node is linked into the anchor's parent. A nil parent stands for
// the root.
func (m *Model) AddItem(offset uint64, typ Type, subtype uint8, name, text, info string,
	header, body []byte, pdata ParsingData, fixed bool, parent *Node, mode InsertMode) (*Node, error) {

	node := &Node{
		typ:         typ,
		subtype:     subtype,
		name:        name,
		text:        text,
		info:        info,
		offset:      offset,
		header:      header,
		body:        body,
		parsingData: pdata,
		action:      ActionNoAction,
	}

	if parent == nil {
		parent = m.root
	}

	switch mode {
	case ModeAppend:
		node.parent = parent
		parent.children = append(parent.children, node)
	case ModePrepend:
		node.parent = parent
		parent.children = append([]*Node{node}, parent.children...)
	case ModeBefore, ModeAfter:
		anchor := parent
		if anchor.parent == nil {
			return nil, fmt.Errorf("anchor node %q has no parent to insert into", anchor.name)
		}
		node.parent = anchor.parent
		row := anchor.Row()
		if mode == ModeAfter {
			row++
		}
		siblings := anchor.parent.children
		siblings = append(siblings, nil)
		copy(siblings[row+1:], siblings[row:])
		siblings[row] = node
		anchor.parent.children = siblings
	default:
		return nil, fmt.Errorf("unknown insert mode %d", mode)
	}

	// A new node inherits the compression state of its surroundings.
	node.compressed = node.parent.compressed
	if fixed {
		m.SetFixed(node, true)
	}
	return node, nil
}

// Type returns the node type.
func (n *Node) Type() Type { return n.typ }

// Subtype returns the type-specific subtype.
func (n *Node) Subtype() uint8 { return n.subtype }

// Name returns the display name.
func (n *Node) Name() string { return n.name }

// Text returns the secondary display text.
func (n *Node) Text() string { return n.text }

// Info returns the accumulated multi-line metadata.
func (n *Node) Info() string { return n.info }

// Offset returns the node's absolute offset.
func (n *Node) Offset() uint64 { return n.offset }

// Header returns the header view.
func (n *Node) Header() []byte { return n.header }

// Body returns the body view.
func (n *Node) Body() []byte { return n.body }

// Tail returns the tail view.
func (n *Node) Tail() []byte { return n.tail }

// Size returns the full on-disk size of the node.
func (n *Node) Size() uint64 {
	return uint64(len(n.header) + len(n.body) + len(n.tail))
}

// ParsingData returns the per-subtype parsing record, possibly nil.
func (n *Node) ParsingData() ParsingData { return n.parsingData }

// Fixed reports whether the node must not move during a rebuild.
func (n *Node) Fixed() bool { return n.fixed }

// Compressed reports whether the node's bytes only exist inside a
// decompressed parent body.
func (n *Node) Compressed() bool { return n.compressed }

// Action returns the pending action.
func (n *Node) Action() Action { return n.action }

// Marking returns the validator's colour tag.
func (n *Node) Marking() Marking { return n.marking }

// Parent returns the parent node, nil for the root.
func (n *Node) Parent() *Node { return n.parent }

// Children returns the ordered child list.
func (n *Node) Children() []*Node { return n.children }

// Child returns the row-th child or nil.
func (n *Node) Child(row int) *Node {
	if row < 0 || row >= len(n.children) {
		return nil
	}
	return n.children[row]
}

// Row returns the node's index within its parent, 0 for the root.
func (n *Node) Row() int {
	if n.parent == nil {
		return 0
	}
	for i, c := range n.parent.children {
		if c == n {
			return i
		}
	}
	return 0
}

// SetName sets the display name.
func (m *Model) SetName(n *Node, name string) { n.name = name }

// SetText sets the secondary display text.
func (m *Model) SetText(n *Node, text string) { n.text = text }

// SetInfo replaces the metadata text.
func (m *Model) SetInfo(n *Node, info string) { n.info = info }

// AddInfo appends metadata text; with prepend it goes in front instead.
func (m *Model) AddInfo(n *Node, info string, prepend bool) {
	if prepend {
		n.info = info + n.info
		return
	}
	n.info += info
}

// SetParsingData replaces the parsing record.
func (m *Model) SetParsingData(n *Node, pdata ParsingData) { n.parsingData = pdata }

// SetTail sets the tail view.
func (m *Model) SetTail(n *Node, tail []byte) { n.tail = tail }

// SetAction sets the pending action.
func (m *Model) SetAction(n *Node, action Action) { n.action = action }

// SetMarking sets the validator's colour tag.
func (m *Model) SetMarking(n *Node, marking Marking) { n.marking = marking }

// SetCompressed flags the node as living inside a decompressed body.
func (m *Model) SetCompressed(n *Node, compressed bool) { n.compressed = compressed }

// SetFixed sets the fixed flag. Fixed state is monotonic up the tree: a
// fixed node forces its ancestors fixed, except that an uncompressed
// node below a compressed parent takes the parent's state instead of
// propagating its own.
func (m *Model) SetFixed(n *Node, fixed bool) {
	n.fixed = fixed

	if n.parent == nil {
		return
	}
	if !n.compressed && n.parent.compressed {
		n.fixed = n.parent.fixed
		return
	}
	if n.parent != m.root {
		m.SetFixed(n.parent, fixed)
	}
}

// FindParentOfType walks up from n and returns the first ancestor of
// the wanted type, or nil.
func (m *Model) FindParentOfType(n *Node, typ Type) *Node {
	for p := n.parent; p != nil; p = p.parent {
		if p.typ == typ {
			return p
		}
	}
	return nil
}

// FindLastParentOfType walks up from n and returns the topmost ancestor
// of the wanted type, or nil.
func (m *Model) FindLastParentOfType(n *Node, typ Type) *Node {
	var found *Node
	for p := n.parent; p != nil; p = p.parent {
		if p.typ == typ {
			found = p
		}
	}
	return found
}

// FindByOffset returns the deepest non-compressed node whose on-disk
// range covers the absolute offset, or nil.
func (m *Model) FindByOffset(offset uint64) *Node {
	return findByOffset(m.root, offset)
}

func findByOffset(n *Node, offset uint64) *Node {
	for _, c := range n.children {
		if c.compressed {
			continue
		}
		if c.offset <= offset && offset < c.offset+c.Size() {
			if deeper := findByOffset(c, offset); deeper != nil {
				return deeper
			}
			return c
		}
	}
	return nil
}

// Walk visits the tree depth-first in child order, including the root.
// Walking stops when fn returns false.
func (m *Model) Walk(fn func(*Node) bool) {
	walk(m.root, fn)
}

func walk(n *Node, fn func(*Node) bool) bool {
	if !fn(n) {
		return false
	}
	for _, c := range n.children {
		if !walk(c, fn) {
			return false
		}
	}
	return true
}

func (n *Node) String() string {
	var b strings.Builder
	b.WriteString(n.typ.String())
	if s := SubtypeString(n.typ, n.subtype); s != "" {
		b.WriteString("/" + s)
	}
	if n.name != "" {
		b.WriteString(" " + n.name)
	}
	return b.String()
}
