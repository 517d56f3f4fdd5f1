package main

import (
	"os"

	"github.com/kongfuworld/settlement/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
