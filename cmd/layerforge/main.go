// Command layerforge applies CSV rows to layered documents.
package main

import (
	"os"

	"github.com/joho/godotenv"

	"github.com/custodia-labs/layerforge/internal/adapters/driving/cli"
	"github.com/custodia-labs/layerforge/internal/app"
)

// version is set with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	// A missing .env is fine.
	_ = godotenv.Load()

	cli.SetVersion(version)
	cli.SetWiring(app.Wire)
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
