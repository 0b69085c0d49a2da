// Package database provides SQLite connectivity for durable client state.
//
// It opens a single-writer connection with WAL mode and a busy timeout,
// and applies versioned schema scripts supplied as an fs.FS. The MQTT
// engine's sqlite persistence strategy is its only user.
//
// Usage:
//
//	db, err := database.Open(database.Config{Path: path, WALMode: true})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if _, err := db.Migrate(ctx, schemaFS); err != nil {
//	    return err
//	}
//
// Scripts are named VERSION_description.up.sql. There are no down scripts:
// schema changes must stay additive so an older binary can read a newer file.
package database
