//go:build !cgo

package storage

// modernc.org/sqlite registers itself under the "sqlite" driver name; it
// needs no cgo toolchain, at the cost of the sqlite-vec extension not
// being loadable (vecAvailable is false). The columnar and ontology
// stores work identically either way — only VectorIndex's nearest-k
// search is affected, and it degrades to an empty result per §4.9.
import (
	_ "modernc.org/sqlite"
)

const driverName = "sqlite"

const vecAvailable = false
