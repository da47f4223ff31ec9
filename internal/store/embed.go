package store

import "embed"

// Migrations holds the versioned schema migrations applied by Migrate.
// Embedding them keeps the binary self-contained: no migrations directory
// needs to ship alongside it.
//
//go:embed migrations/*.sql
var Migrations embed.FS

// queries holds the hand-written SQL assets exercised by the blocking
// predicate and outlier-detection operations. Keeping them as files rather
// than Go string literals makes them reviewable and diffable like any other
// SQL change, independent of the surrounding Go code.
//
//go:embed sql/*.sql
var queries embed.FS

func mustQuery(name string) string {
	b, err := queries.ReadFile("sql/" + name)
	if err != nil {
		panic("store: missing embedded query asset " + name + ": " + err.Error())
	}

	return string(b)
}
