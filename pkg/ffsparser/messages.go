// Copyright 2018 the LinuxBoot Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ffsparser

import (
	"github.com/msi-ge62-2qd-apache-pro/UEFITool/pkg/treemodel"
)

// Severity grades a diagnostic message. It is advisory; consumers
// decide what to display.
type Severity uint8

// Severities.
const (
	SeverityInfo Severity = iota
	SeverityWarning
	SeverityError
)

func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	}
	return "unknown"
}

// Message is one diagnostic tied to a tree node. A nil node makes the
// message global.
type Message struct {
	Node     *treemodel.Node
	Severity Severity
	Text     string
}

// msg appends a warning to the ordered log.
func (p *Parser) msg(node *treemodel.Node, text string) {
	p.messages = append(p.messages, Message{Node: node, Severity: SeverityWarning, Text: text})
}

// msgErr appends an error-grade message to the ordered log.
func (p *Parser) msgErr(node *treemodel.Node, text string) {
	p.messages = append(p.messages, Message{Node: node, Severity: SeverityError, Text: text})
}

// Messages returns the ordered diagnostic log.
func (p *Parser) Messages() []Message {
	return p.messages
}
