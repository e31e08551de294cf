package migration

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"time"
)

// Manager brings a database up to the newest migration found in a file system.
type Manager struct {
	source   fs.FS
	executor *Executor
	logger   *slog.Logger
}

// NewManager returns a Manager. A nil logger selects slog.Default.
func NewManager(source fs.FS, executor *Executor, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{source: source, executor: executor, logger: logger.With("component", "migration")}
}

// Status compares the available files with the recorded versions.
func (m *Manager) Status(ctx context.Context) (Status, error) {
	if err := m.executor.EnsureVersionTable(ctx); err != nil {
		return Status{}, err
	}
	available, err := Scan(m.source)
	if err != nil {
		return Status{}, err
	}
	applied, err := m.executor.Applied(ctx)
	if err != nil {
		return Status{}, err
	}

	checksums := make(map[int]string, len(applied))
	status := Status{Applied: applied}
	for _, record := range applied {
		checksums[record.Version] = record.Checksum
		if record.Version > status.CurrentVersion {
			status.CurrentVersion = record.Version
		}
	}
	for _, migration := range available {
		checksum, done := checksums[migration.Version]
		switch {
		case !done:
			status.Pending = append(status.Pending, migration)
		case checksum != migration.Checksum:
			return Status{}, newMigrationError(migration, "verify", ErrChecksumMismatch)
		}
	}
	return status, nil
}

// Run applies pending migrations in version order and returns how many ran.
// It stops at the first failure; earlier migrations stay applied.
func (m *Manager) Run(ctx context.Context) (int, error) {
	started := time.Now()
	status, err := m.Status(ctx)
	if err != nil {
		m.logger.ErrorContext(ctx, "migration status failed", "error", err)
		return 0, err
	}
	if len(status.Pending) == 0 {
		m.logger.DebugContext(ctx, "schema up to date", "version", status.CurrentVersion)
		return 0, nil
	}

	for _, migration := range status.Pending {
		if migration.Version < status.CurrentVersion {
			err := newMigrationError(migration, "order", fmt.Errorf("version is older than applied version %d", status.CurrentVersion))
			m.logger.ErrorContext(ctx, "migration out of order", "error", err)
			return 0, err
		}
	}

	for i, migration := range status.Pending {
		if err := m.executor.Apply(ctx, migration); err != nil {
			m.logger.ErrorContext(ctx, "migration failed",
				"version", migration.Version,
				"file", migration.Name,
				"error", err,
			)
			return i, err
		}
		m.logger.InfoContext(ctx, "migration applied",
			"version", migration.Version,
			"description", migration.Description,
		)
	}

	m.logger.InfoContext(ctx, "schema migrated",
		"applied", len(status.Pending),
		"version", status.Pending[len(status.Pending)-1].Version,
		"duration", time.Since(started),
	)
	return len(status.Pending), nil
}
