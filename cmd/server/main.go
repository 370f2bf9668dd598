// Command server runs the ClearHuma admin backend: the HTTP API, the gRPC
// health endpoint and the stale build reaper.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/dmitrijs2005/clearhuma/internal/server"
	"github.com/dmitrijs2005/clearhuma/internal/server/config"
)

func main() {
	ctx := context.Background()

	app, err := server.NewApp(ctx, config.LoadConfig())
	if err != nil {
		fmt.Fprintln(os.Stderr, "startup failed:", err)
		os.Exit(1)
	}

	app.Run(ctx)
}
