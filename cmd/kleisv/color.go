package main

import (
	"os"
	"strings"

	"github.com/mattn/go-isatty"

	"github.com/eatikrh/kleis-sub001/internal/verify"
)

const (
	ansiReset  = "\033[0m"
	ansiRed    = "\033[31m"
	ansiGreen  = "\033[32m"
	ansiYellow = "\033[33m"
	ansiBold   = "\033[1m"
)

// palette decorates status words when the output is a color terminal
type palette struct {
	enabled bool
}

// detectPalette enables color for terminals unless NO_COLOR is set
func detectPalette(f *os.File) palette {
	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		return palette{}
	}
	if os.Getenv("TERM") == "dumb" {
		return palette{}
	}
	fd := f.Fd()
	return palette{enabled: isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)}
}

func (p palette) status(s verify.Status) string {
	word := strings.ToUpper(string(s))
	if !p.enabled {
		return word
	}
	switch s {
	case verify.Proved:
		return ansiGreen + word + ansiReset
	case verify.Unknown:
		return ansiYellow + word + ansiReset
	case verify.Refuted:
		return ansiRed + word + ansiReset
	default:
		return ansiBold + ansiRed + word + ansiReset
	}
}
