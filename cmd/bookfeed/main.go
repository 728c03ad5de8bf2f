package main

import (
	"context"
	"log"
	"os"

	"bookfeed/internal/buildinfo"
	"bookfeed/internal/cli"
	"bookfeed/internal/config"
)

func main() {

	buildinfo.PrintBuildData(os.Stdout)

	ctx := context.Background()
	cfg := config.LoadConfig()
	app, err := cli.NewApp(ctx, cfg)

	if err != nil {
		log.Fatalf("%v", err)
		return
	}

	app.Run(ctx)

}
