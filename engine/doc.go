// Package engine owns the SQLite plumbing shared by the store packages:
// opening databases through the modernc.org/sqlite driver, applying the
// connection pragmas stores rely on, and registering the vec_* scalar
// functions that rank embedding BLOBs inside SQL.
package engine
