package app

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/cartstore/internal/domain"
)

const testCatalogYAML = `products:
  - id: p1
    slug: cat-tee
    title: Cat Tee
    price: "24.99"
`

func writeCatalog(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	if err := os.WriteFile(path, []byte(testCatalogYAML), 0o600); err != nil {
		t.Fatalf("write catalog: %v", err)
	}
	return path
}

func TestInitRuntimeDependencies_Memory(t *testing.T) {
	t.Parallel()

	deps, err := initRuntimeDependencies(context.Background(), Config{
		StorageDriver: StorageDriverMemory,
		CatalogFile:   writeCatalog(t),
	}, "s1", log.WithField("test", "memory-storage"))
	if err != nil {
		t.Fatalf("initRuntimeDependencies(memory) failed: %v", err)
	}
	defer deps.close(log.WithField("test", "memory-storage"))

	if deps.slot == nil {
		t.Fatal("slot should not be nil for memory storage")
	}
	if deps.outboxRepo == nil {
		t.Fatal("outboxRepo should not be nil for memory storage")
	}
	product, err := deps.catalog.Lookup(context.Background(), "p1")
	if err != nil {
		t.Fatalf("catalog lookup failed: %v", err)
	}
	if product.Title != "Cat Tee" {
		t.Errorf("expected Cat Tee, got %s", product.Title)
	}
}

func TestInitRuntimeDependencies_File(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	deps, err := initRuntimeDependencies(context.Background(), Config{
		StorageDriver: StorageDriverFile,
		FilePath:      dir,
	}, "s1", log.WithField("test", "file-storage"))
	if err != nil {
		t.Fatalf("initRuntimeDependencies(file) failed: %v", err)
	}

	ctx := context.Background()
	if err := deps.slot.Save(ctx, []byte(`{"version":1,"lines":[]}`)); err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, err := deps.slot.Load(ctx); err != nil {
		t.Fatalf("load: %v", err)
	}

	if _, err := deps.catalog.Lookup(ctx, "p1"); !errors.Is(err, domain.ErrProductNotFound) {
		t.Fatalf("expected empty catalog, got %v", err)
	}
}

func TestInitRuntimeDependencies_PostgresRequiresDSN(t *testing.T) {
	t.Parallel()

	_, err := initRuntimeDependencies(context.Background(), Config{
		StorageDriver: StorageDriverPostgres,
	}, "s1", log.WithField("test", "postgres-missing-dsn"))
	if err == nil {
		t.Fatal("expected error when postgres driver is selected without DSN")
	}
}

func TestInitRuntimeDependencies_PostgresCatalogRequiresDSN(t *testing.T) {
	t.Parallel()

	_, err := initRuntimeDependencies(context.Background(), Config{
		StorageDriver: StorageDriverMemory,
		CatalogSource: CatalogSourcePostgres,
	}, "s1", log.WithField("test", "postgres-catalog"))
	if err == nil {
		t.Fatal("expected error when postgres catalog is selected without DSN")
	}
}

func TestInitRuntimeDependencies_UnsupportedDriver(t *testing.T) {
	t.Parallel()

	_, err := initRuntimeDependencies(context.Background(), Config{
		StorageDriver: "sqlite",
	}, "s1", log.WithField("test", "unsupported-driver"))
	if err == nil {
		t.Fatal("expected error for unsupported storage driver")
	}
}

func TestInitRuntimeDependencies_UnsupportedCatalog(t *testing.T) {
	t.Parallel()

	_, err := initRuntimeDependencies(context.Background(), Config{
		CatalogSource: "http",
	}, "s1", log.WithField("test", "unsupported-catalog"))
	if err == nil {
		t.Fatal("expected error for unsupported catalog source")
	}
}

func TestInitRuntimeDependencies_BadCatalogFile(t *testing.T) {
	t.Parallel()

	_, err := initRuntimeDependencies(context.Background(), Config{
		CatalogFile: filepath.Join(t.TempDir(), "missing.yaml"),
	}, "s1", log.WithField("test", "missing-catalog"))
	if err == nil {
		t.Fatal("expected error for missing catalog file")
	}
}
