package sqlite

import (
	"context"
	"embed"
	"io/fs"
	"log/slog"

	"github.com/example/scheduling-core/internal/persistence/sqlite/migration"
)

//go:embed migrations/*.sql
var embeddedMigrations embed.FS

// Migrations returns the schema shipped with the binary.
func Migrations() fs.FS {
	sub, err := fs.Sub(embeddedMigrations, "migrations")
	if err != nil {
		panic(err)
	}
	return sub
}

// Migrate applies pending migrations from source, or from the embedded schema
// when source is nil.
func (cp *ConnectionPool) Migrate(ctx context.Context, source fs.FS, logger *slog.Logger) (int, error) {
	if source == nil {
		source = Migrations()
	}
	manager := migration.NewManager(source, migration.NewExecutor(cp.db), logger)
	return manager.Run(ctx)
}
