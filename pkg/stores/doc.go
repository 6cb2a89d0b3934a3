// Package stores persists run history in SQLite. Each apply or dry-run is
// a row in runs, and every attempted action a row in action_results.
// Schema changes are embedded migrations applied with golang-migrate.
package stores
