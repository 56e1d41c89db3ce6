package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"github.com/DingliZhang/bishengjdk-11-mirror/internal/engine/c1/backend/isa/riscv64"
)

var (
	headerColor  = []color.Attribute{color.FgCyan, color.Bold}
	commentColor = []color.Attribute{color.FgGreen}
	entryColor   = []color.Attribute{color.FgYellow}
	errorColor   = []color.Attribute{color.FgRed}
)

func (c *rootCommand) color(attrs []color.Attribute) *color.Color {
	col := color.New(attrs...)
	if c.noColor {
		col.DisableColor()
	}
	return col
}

func (c *rootCommand) header(format string, args ...interface{}) {
	c.color(headerColor).Fprintf(c.stdout, format+"\n", args...)
}

// printBlob prints the entries and the listing of blob.
func (c *rootCommand) printBlob(blob *riscv64.CodeBlob) {
	c.header("%s at %#x, %d bytes", blob.Name, blob.Base, blob.Size())
	if blob.FrameSize != 0 {
		fmt.Fprintf(c.stdout, "  frame size %d\n", blob.FrameSize)
	}
	if blob.OopMaps != nil && blob.OopMaps.Len() != 0 {
		fmt.Fprintf(c.stdout, "  %d oop maps\n", blob.OopMaps.Len())
	}
	entry := c.color(entryColor)
	for _, name := range blob.EntryNames() {
		entry.Fprintf(c.stdout, "  entry %-20s %#x\n", name, blob.EntryAddress(name))
	}
	c.printListing(c.stdout, blob.Listing(c.syntax == "go"))
}

func (c *rootCommand) printListing(w io.Writer, listing string) {
	comment := c.color(commentColor)
	for _, line := range strings.Split(strings.TrimSuffix(listing, "\n"), "\n") {
		if strings.HasPrefix(line, ";;") {
			comment.Fprintln(w, line)
			continue
		}
		fmt.Fprintln(w, line)
	}
}
