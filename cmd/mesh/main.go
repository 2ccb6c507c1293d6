package main

import (
	"log"
	"os"

	"github.com/nevindra/mesh/internal/app"
	"github.com/nevindra/mesh/internal/config"
)

func main() {
	cfg := config.Load(os.Getenv("MESH_CONFIG"))

	a, err := app.New(cfg)
	if err != nil {
		log.Fatalf("mesh: %v", err)
	}
	if err := a.RunWithSignal(); err != nil {
		log.Fatalf("mesh: %v", err)
	}
}
