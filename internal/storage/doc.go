// Package storage persists trigger schedules and their run history.
//
// Drivers:
//   - "memory" (also "" and "none"): process-local maps, nothing survives a restart
//   - "file": JSON snapshot of triggers + JSON Lines run log
//   - "sqlite": SQLite database file via modernc.org/sqlite
//
// The notifier dedup window is stored alongside so that duplicate fire
// notifications are suppressed across restarts.
package storage
