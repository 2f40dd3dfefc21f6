package main

import (
	"context"
	"log"

	"github.com/dmitrijs2005/cellscope/internal/server"
	"github.com/dmitrijs2005/cellscope/internal/server/config"
)

// buildVersion is set at link time with -ldflags "-X main.buildVersion=...".
var buildVersion = "dev"

func main() {

	ctx := context.Background()
	cfg := config.LoadConfig()

	if err := cfg.Validate(); err != nil {
		log.Printf("invalid configuration: %v", err)
		return
	}

	app, err := server.NewApp(ctx, cfg, buildVersion)
	if err != nil {
		log.Printf("%v", err)
		return
	}

	app.Run(ctx)

}
