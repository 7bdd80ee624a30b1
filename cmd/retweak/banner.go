package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/mattn/go-runewidth"
	"golang.org/x/term"
)

const (
	bannerTitle    = "retweak"
	bannerSubtitle = "Tweak HTTP requests, report what changes"
	minBoxWidth    = 44
)

// printBanner draws the startup box, in red like the rest of the preamble on stderr
func printBanner(w io.Writer) {
	lines := bannerLines(terminalWidth(w))
	red := color.New(color.FgRed)
	for _, line := range lines {
		red.Fprintln(w, line)
	}
}

func bannerLines(maxWidth int) []string {
	title := fmt.Sprintf("%s %s", bannerTitle, version)

	width := runewidth.StringWidth(title)
	if w := runewidth.StringWidth(bannerSubtitle); w > width {
		width = w
	}
	boxWidth := width + 4
	if boxWidth < minBoxWidth {
		boxWidth = minBoxWidth
	}
	if maxWidth > 0 && boxWidth > maxWidth {
		boxWidth = max(maxWidth, 12)
	}

	return []string{
		"┌" + strings.Repeat("─", boxWidth-2) + "┐",
		boxLine(title, boxWidth),
		boxLine(bannerSubtitle, boxWidth),
		"└" + strings.Repeat("─", boxWidth-2) + "┘",
	}
}

// boxLine centers content inside the box, truncating it when the box is too narrow
func boxLine(content string, boxWidth int) string {
	inner := boxWidth - 2
	content = runewidth.Truncate(content, inner, "…")
	padding := inner - runewidth.StringWidth(content)
	if padding < 0 {
		padding = 0
	}
	return "│" + strings.Repeat(" ", padding/2) + content + strings.Repeat(" ", padding-padding/2) + "│"
}

// terminalWidth returns the width of w when it is a terminal, 0 otherwise
func terminalWidth(w io.Writer) int {
	f, ok := w.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return 0
	}
	width, _, err := term.GetSize(int(f.Fd()))
	if err != nil {
		return 0
	}
	return width
}
