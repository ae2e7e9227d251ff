package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/cartstore/internal/catalog"
	"github.com/vladislavdragonenkov/cartstore/internal/storage/postgres"
)

const (
	defaultTimeout = 30 * time.Second
	envPostgresDSN = "CART_POSTGRES_DSN"
)

func main() {
	var (
		direction   string
		steps       int
		dsn         string
		catalogFile string
	)

	flag.StringVar(&direction, "direction", "up", "migration direction: up|down|status|seed")
	flag.IntVar(&steps, "steps", 0, "number of migrations to apply/rollback (0=all for up, 1 for down)")
	flag.StringVar(&dsn, "dsn", "", "PostgreSQL DSN (fallback: "+envPostgresDSN+")")
	flag.StringVar(&catalogFile, "catalog", "", "catalog file (yaml|json|toml) for -direction=seed")
	flag.Parse()

	if strings.TrimSpace(dsn) == "" {
		dsn = strings.TrimSpace(os.Getenv(envPostgresDSN))
	}
	if dsn == "" {
		fail("%s (or -dsn) is required", envPostgresDSN)
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	store, err := postgres.Open(ctx, dsn)
	if err != nil {
		fail("open postgres store: %v", err)
	}
	defer store.Close()

	switch strings.ToLower(strings.TrimSpace(direction)) {
	case "up":
		if err := store.MigrateUp(ctx, steps); err != nil {
			fail("migrate up failed: %v", err)
		}
		printStatus(ctx, store, "migrate up ok")
	case "down":
		if steps <= 0 {
			steps = 1
		}
		if err := store.MigrateDown(ctx, steps); err != nil {
			fail("migrate down failed: %v", err)
		}
		printStatus(ctx, store, "migrate down ok")
	case "status":
		printStatus(ctx, store, "migration status")
	case "seed":
		if strings.TrimSpace(catalogFile) == "" {
			fail("-catalog is required for seed")
		}
		products, err := catalog.LoadFile(catalogFile)
		if err != nil {
			fail("load catalog: %v", err)
		}
		if err := postgres.NewCatalogRepository(store).Upsert(ctx, products...); err != nil {
			fail("seed catalog failed: %v", err)
		}
		fmt.Printf("catalog seeded: products=%d\n", len(products))
	default:
		fail("unsupported direction: %s (use up|down|status|seed)", direction)
	}
}

func printStatus(ctx context.Context, store *postgres.Store, prefix string) {
	state, err := store.MigrationStatus(ctx)
	if err != nil {
		fail("migration status failed: %v", err)
	}
	fmt.Printf("%s: version=%d applied=%d pending=%d\n", prefix, state.Version, state.Applied, state.Pending())
}

func fail(format string, args ...any) {
	_, _ = fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
