// Package sqlite persists analysis runs and their selections.
//
// The schema is managed with embedded golang-migrate migrations and applied
// on Open. Writes are retried while the database reports SQLITE_BUSY.
package sqlite
