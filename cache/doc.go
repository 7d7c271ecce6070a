// Small in-memory record store with secondary indices.
//
// A Cache holds records (string field name to value) keyed by an opaque primary key. Secondary
// indices are registered on the cache and are maintained on every mutation made through the
// Cache API, so an index read always reflects current record contents. There is no way to obtain a
// live reference to stored data: writes store a deep copy of the caller's record, reads return
// copies (a shallow read still copies each field's own slice or map), and in-place edits go
// through Mutate.
//
// The trivia question bank (package `trivia`) is the main consumer.
package cache
