package main

import (
	"os"

	"github.com/dhcgn/archive-extract/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
