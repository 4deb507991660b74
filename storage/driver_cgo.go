//go:build cgo

package storage

import (
	_ "github.com/mattn/go-sqlite3"

	vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
)

// driverName is the database/sql driver registered for this build. With
// cgo available we use mattn/go-sqlite3, which also lets us register the
// sqlite-vec loadable extension for real nearest-neighbor search.
const driverName = "sqlite3"

// vecAvailable reports whether the sqlite-vec extension was registered
// with the driver, so VectorIndex can degrade gracefully rather than
// erroring when cgo is unavailable.
const vecAvailable = true

func init() {
	vec.Auto()
}
