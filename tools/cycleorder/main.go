package main

import (
	"flag"
	"fmt"
	"log"
	"strings"

	"github.com/spinwheel/spinwheel/internal/assign"
	"github.com/spinwheel/spinwheel/internal/config"
	"github.com/spinwheel/spinwheel/internal/cycler"
)

// Prints the shared shuffled candidate order for a seed, and the per-worker
// partition when sampling runs partitioned. Useful to predict which spoke
// will visit which scenario without starting a run.

var (
	configPath = flag.String("config", "", "run configuration to read scenarios and seed from")
	names      = flag.String("names", "", "comma-separated scenario names (instead of -config)")
	seed       = flag.Int64("seed", 42, "shuffle seed (ignored with -config)")
	workers    = flag.Int("workers", 1, "number of sampling workers to partition across")
)

func main() {
	flag.Parse()

	var order []string
	s := *seed
	switch {
	case *names != "":
		order = cycler.Shuffle(strings.Split(*names, ","), s)
	case *configPath != "":
		cfg, err := config.Load(*configPath)
		if err != nil {
			log.Fatalf("load config: %v", err)
		}
		s = cfg.Run.Seed
		order = cycler.Shuffle(cfg.ScenarioNames(), s)
	default:
		log.Fatal("need -config or -names")
	}

	fmt.Printf("seed=%d order: %s\n", s, strings.Join(order, " "))
	if *workers > 1 {
		for i, part := range assign.Table(order, *workers) {
			fmt.Printf("worker %d: %s\n", i, strings.Join(part, " "))
		}
	}
}
