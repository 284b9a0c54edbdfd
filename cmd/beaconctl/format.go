package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
)

var supportsColor = isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())

func green(s string) string {
	if supportsColor {
		return color.GreenString(s)
	}
	return s
}

func yellow(s string) string {
	if supportsColor {
		return color.YellowString(s)
	}
	return s
}

func showSuccess(format string, a ...any) {
	fmt.Printf("%s %s\n", green("✓"), fmt.Sprintf(format, a...))
}

func showWarning(format string, a ...any) {
	fmt.Printf("%s %s\n", yellow("!"), fmt.Sprintf(format, a...))
}
