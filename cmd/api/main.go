package main

import (
	"fmt"
	"os"

	"github.com/Hoang7604119/mmostore-sub003/internal/app"
)

func main() {
	if err := app.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "application error: %v\n", err)
		os.Exit(1)
	}
}
