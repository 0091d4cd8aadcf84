// Copyright 2018 the LinuxBoot Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// uefiparse parses a UEFI flash image and prints the structure tree,
// the diagnostic messages and the Firmware Interface Table.
package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	flag "github.com/spf13/pflag"

	"github.com/msi-ge62-2qd-apache-pro/UEFITool/pkg/ffsparser"
	"github.com/msi-ge62-2qd-apache-pro/UEFITool/pkg/log"
	"github.com/msi-ge62-2qd-apache-pro/UEFITool/pkg/treemodel"
)

var (
	showInfo     = flag.BoolP("info", "i", false, "print the info block of every node")
	showMessages = flag.BoolP("messages", "m", true, "print parser messages")
	showFit      = flag.BoolP("fit", "f", true, "print the FIT table when present")
	quiet        = flag.BoolP("quiet", "q", false, "suppress tool warnings, keep errors")
)

func indent(n int) string {
	return strings.Repeat(" ", n)
}

func printTree(w *tabwriter.Writer, node *treemodel.Node, depth int) {
	subtype := treemodel.SubtypeString(node.Type(), node.Subtype())
	if subtype != "" {
		subtype = " (" + subtype + ")"
	}
	name := node.Name()
	if text := node.Text(); text != "" {
		name += " [" + text + "]"
	}
	fmt.Fprintf(w, "%s%v%s\t%s\t%s\n",
		indent(depth), node.Type(), subtype, name, humanize.IBytes(node.Size()))
	if *showInfo && node.Info() != "" {
		for _, line := range strings.Split(node.Info(), "\n") {
			fmt.Fprintf(w, "%s| %s\t\t\n", indent(depth+1), line)
		}
	}
	for _, child := range node.Children() {
		printTree(w, child, depth+1)
	}
}

func printFit(rows []ffsparser.FITRow) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"Address", "Size", "Version", "Checksum", "Type", "Info"})
	for _, row := range rows {
		t.AppendRow(table.Row{row.Address, row.Size, row.Version, row.Checksum, row.Type, row.Info})
	}
	t.Render()
}

func main() {
	flag.Parse()
	if *quiet {
		log.DefaultLogger = log.New(os.Stderr, log.LevelError)
	}
	if flag.NArg() != 1 {
		log.Fatalf("usage: uefiparse [flags] <image>")
	}

	image, err := os.ReadFile(flag.Arg(0))
	if err != nil {
		log.Fatalf("cannot read image: %v", err)
	}

	parser := ffsparser.New()
	parseErr := parser.Parse(image)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Node\tName\tSize\n")
	for _, child := range parser.Model().Root().Children() {
		printTree(w, child, 0)
	}
	w.Flush()

	if *showMessages {
		for _, message := range parser.Messages() {
			prefix := ""
			if message.Node != nil {
				prefix = message.Node.Name() + ": "
			}
			fmt.Printf("[%s] %s%s\n", message.Severity, prefix, message.Text)
		}
	}

	if *showFit {
		if rows := parser.FITTable(); len(rows) != 0 {
			printFit(rows)
		}
	}

	if parseErr != nil {
		log.Errorf("parse finished with error: %v", parseErr)
		os.Exit(1)
	}
}
