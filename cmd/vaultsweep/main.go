package main

import (
	"context"
	"os"

	"github.com/dsmolkov/vaultsweep/internal/app"
	"github.com/dsmolkov/vaultsweep/internal/buildinfo"
	"github.com/dsmolkov/vaultsweep/internal/config"
)

func main() {

	buildinfo.PrintBuildData(os.Stdout)

	ctx := context.Background()
	cfg := config.LoadConfig()

	app.NewApp(cfg).Run(ctx)

}
