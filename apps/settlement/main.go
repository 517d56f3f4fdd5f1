package main

import (
	"github.com/kongfuworld/settlement/internal/cli"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(cli.ServeOptions())
	app.Run()
}
