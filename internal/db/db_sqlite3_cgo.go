//go:build cgo && sqlite3_cgo

package db

// build with -tags sqlite3_cgo to use the cgo driver
import _ "github.com/mattn/go-sqlite3"

const (
	driverID   = "mattn/go-sqlite3"
	driverName = "sqlite3"
)
