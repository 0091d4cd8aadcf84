// Copyright 2018 the LinuxBoot Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package treemodel

import (
	"testing"
)

func addOrDie(t *testing.T, m *Model, offset uint64, typ Type, name string, header, body []byte, parent *Node, mode InsertMode) *Node {
	t.Helper()
	n, err := m.AddItem(offset, typ, 0, name, "", "", header, body, nil, false, parent, mode)
	if err != nil {
		t.Fatalf("AddItem %s failed: %v", name, err)
	}
	return n
}

func TestInsertModes(t *testing.T) {
	m := New()
	b := addOrDie(t, m, 0x10, TypePadding, "b", nil, nil, nil, ModeAppend)
	addOrDie(t, m, 0x30, TypePadding, "d", nil, nil, nil, ModeAppend)
	addOrDie(t, m, 0x00, TypePadding, "a", nil, nil, nil, ModePrepend)
	addOrDie(t, m, 0x20, TypePadding, "c", nil, nil, b, ModeAfter)
	addOrDie(t, m, 0x08, TypePadding, "a2", nil, nil, b, ModeBefore)

	var got []string
	for _, c := range m.Root().Children() {
		got = append(got, c.Name())
	}
	want := []string{"a", "a2", "b", "c", "d"}
	if len(got) != len(want) {
		t.Fatalf("expected %v children, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("child %d: expected %v, got %v", i, want[i], got[i])
		}
	}
	if row := m.Root().Children()[2].Row(); row != 2 {
		t.Errorf("expected row 2, got %v", row)
	}
}

func TestSetFixedPropagation(t *testing.T) {
	m := New()
	vol := addOrDie(t, m, 0, TypeVolume, "volume", make([]byte, 0x48), make([]byte, 0x100), nil, ModeAppend)
	file := addOrDie(t, m, 0x48, TypeFile, "file", make([]byte, 0x18), make([]byte, 0x40), vol, ModeAppend)
	sec := addOrDie(t, m, 0x60, TypeSection, "section", make([]byte, 4), make([]byte, 0x3C), file, ModeAppend)

	m.SetFixed(sec, true)
	if !vol.Fixed() || !file.Fixed() || !sec.Fixed() {
		t.Error("fixed flag should propagate to all ancestors")
	}
}

func TestSetFixedCompressedBoundary(t *testing.T) {
	m := New()
	file := addOrDie(t, m, 0, TypeFile, "file", make([]byte, 0x18), make([]byte, 0x40), nil, ModeAppend)
	enc := addOrDie(t, m, 0x18, TypeSection, "compressed", make([]byte, 9), make([]byte, 0x37), file, ModeAppend)
	m.SetCompressed(enc, true)
	inner, err := m.AddItem(0, TypeSection, 0, "inner", "", "", make([]byte, 4), make([]byte, 8), nil, false, enc, ModeAppend)
	if err != nil {
		t.Fatal(err)
	}
	// The inner section's bytes only exist in the decompressed body.
	if !inner.Compressed() {
		t.Fatal("child of a compressed node must be compressed")
	}
	m.SetCompressed(inner, false)

	// An uncompressed node below a compressed parent copies the
	// parent's state instead of forcing its own upward.
	m.SetFixed(inner, true)
	if inner.Fixed() {
		t.Error("fixed flag should have been replaced by the parent's")
	}
	if file.Fixed() {
		t.Error("fixed flag must not cross a compressed boundary")
	}
}

func TestFindByOffset(t *testing.T) {
	m := New()
	vol := addOrDie(t, m, 0x1000, TypeVolume, "volume", make([]byte, 0x48), make([]byte, 0xFB8), nil, ModeAppend)
	file := addOrDie(t, m, 0x1048, TypeFile, "file", make([]byte, 0x18), make([]byte, 0x100), vol, ModeAppend)

	if n := m.FindByOffset(0x1050); n != file {
		t.Errorf("expected the file, got %v", n)
	}
	if n := m.FindByOffset(0x1000); n != vol {
		t.Errorf("expected the volume, got %v", n)
	}
	if n := m.FindByOffset(0x5000); n != nil {
		t.Errorf("expected nil, got %v", n)
	}
}

func TestFindParents(t *testing.T) {
	m := New()
	vol := addOrDie(t, m, 0, TypeVolume, "outer", nil, make([]byte, 0x1000), nil, ModeAppend)
	file := addOrDie(t, m, 0x48, TypeFile, "file", nil, make([]byte, 0x100), vol, ModeAppend)
	sec := addOrDie(t, m, 0x60, TypeSection, "fvimage", nil, make([]byte, 0x80), file, ModeAppend)
	inner := addOrDie(t, m, 0x64, TypeVolume, "inner", nil, make([]byte, 0x40), sec, ModeAppend)
	leaf := addOrDie(t, m, 0xAC, TypeFile, "leaf", nil, nil, inner, ModeAppend)

	if p := m.FindParentOfType(leaf, TypeVolume); p != inner {
		t.Errorf("expected the inner volume, got %v", p)
	}
	if p := m.FindLastParentOfType(leaf, TypeVolume); p != vol {
		t.Errorf("expected the outer volume, got %v", p)
	}
	if p := m.FindParentOfType(leaf, TypeCapsule); p != nil {
		t.Errorf("expected nil, got %v", p)
	}
}

func TestAddInfo(t *testing.T) {
	m := New()
	n := addOrDie(t, m, 0, TypePadding, "p", nil, nil, nil, ModeAppend)
	m.SetInfo(n, "Full size: 10h (16)")
	m.AddInfo(n, "\nState: empty", false)
	m.AddInfo(n, "Offset: 0h\n", true)
	want := "Offset: 0h\nFull size: 10h (16)\nState: empty"
	if n.Info() != want {
		t.Errorf("expected %q, got %q", want, n.Info())
	}
}
