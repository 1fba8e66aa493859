package main

import (
	"github.com/corray333/backend-labs/dispatcher/internal/app"
	"github.com/corray333/backend-labs/dispatcher/internal/config"
)

func main() {
	config.MustInit()
	app.MustNewApp().Run()
}
