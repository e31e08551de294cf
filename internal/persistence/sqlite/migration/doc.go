// Package migration applies versioned SQL files to a SQLite database.
//
// Files are named {version}_{description}.sql (for example
// "001_create_events.sql") and read from any fs.FS, so the embedded schema and
// an operator supplied directory are handled the same way. Applied versions
// and their checksums are tracked in the schema_migrations table; a file whose
// content changed after it was applied stops the run.
package migration
