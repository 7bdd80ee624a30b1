package report

import (
	"fmt"
	"math"
	"strings"
)

const previewRunes = 80

// Divider separates text records in the output file
var Divider = strings.Repeat("=", 60)

// FormatSize renders n bytes as "NB" below 1000 bytes and "N.NKB" otherwise.
func FormatSize(n int) string {
	if n < 1000 {
		return fmt.Sprintf("%dB", n)
	}
	return fmt.Sprintf("%.1fKB", math.Round(float64(n)/100)/10)
}

// Preview returns the first 80 characters of body with line breaks removed
func Preview(body string) string {
	runes := []rune(body)
	if len(runes) > previewRunes {
		runes = runes[:previewRunes]
	}
	return strings.NewReplacer("\r\n", "", "\n", "").Replace(string(runes))
}

func requestLine(value string) string {
	return fmt.Sprintf("[REQUEST] \"%s\"", value)
}
