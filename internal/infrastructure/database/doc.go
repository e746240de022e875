// Package database provides SQLite connectivity for the light manager.
//
// This package manages:
//   - Database connection with WAL mode for concurrent access
//   - Schema migrations read from an fs.FS (normally the embedded
//     migrations package)
//   - Connection lifecycle and health checks
//
// The database holds the local audit journal and the last known channel
// states. It is optional: with database.enabled false the controller runs
// without persistence.
//
// Security Considerations:
//   - All queries use parameterised statements
//   - Database file permissions are set to 0600 (owner read/write only)
//
// Usage:
//
//	db, err := database.Open(cfg.Database)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
//
// Migration Strategy:
//
// Migrations are additive-only. Files are named
// YYYYMMDD_HHMMSS_description.up.sql; .down.sql companions document the
// reverse change for manual recovery and are never run automatically.
package database
