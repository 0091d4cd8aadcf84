// Copyright 2018 the LinuxBoot Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// fitinfo prints the Firmware Interface Table of a UEFI flash image.
package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/jessevdk/go-flags"

	"github.com/msi-ge62-2qd-apache-pro/UEFITool/pkg/ffsparser"
	"github.com/msi-ge62-2qd-apache-pro/UEFITool/pkg/log"
)

type options struct {
	Verbose bool `short:"v" long:"verbose" description:"also print parser messages"`

	Args struct {
		Image string `positional-arg-name:"image" required:"true"`
	} `positional-args:"true"`
}

func main() {
	var opts options
	if _, err := flags.Parse(&opts); err != nil {
		os.Exit(1)
	}

	image, err := os.ReadFile(opts.Args.Image)
	if err != nil {
		log.Fatalf("cannot read image: %v", err)
	}

	parser := ffsparser.New()
	if err := parser.Parse(image); err != nil {
		log.Warnf("parse finished with error: %v", err)
	}

	if opts.Verbose {
		for _, message := range parser.Messages() {
			fmt.Fprintf(os.Stderr, "[%s] %s\n", message.Severity, message.Text)
		}
	}

	rows := parser.FITTable()
	if len(rows) == 0 {
		log.Fatalf("no FIT table found")
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Address\tSize\tVersion\tChecksum\tType\tInfo\n")
	for _, row := range rows {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			row.Address, row.Size, row.Version, row.Checksum, row.Type, row.Info)
	}
	w.Flush()
}
