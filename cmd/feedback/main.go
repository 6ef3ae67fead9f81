// cmd/feedback/main.go
//
// This is the entry point for the feedback kiosk.
// Running `feedback` in a directory opens the TUI for that kiosk;
// `feedback serve` runs the receiving end and `feedback send` files a
// record without the TUI.

package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
