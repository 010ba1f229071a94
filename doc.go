// Package leafid implements a segment-based distributed ID generator.
//
// Given a caller-chosen tag (an integer namespace), leafid hands out a
// monotonically increasing 64-bit integer per call. The authoritative
// counter for a tag lives in a shared database accessed through the
// Dao interface; leafid amortises database round-trips by reserving
// contiguous ranges ("segments") of IDs at once and serving individual
// values out of memory between refills.
//
// Multiple instances of a service may run against the same database.
// IDs are gap-free and strictly ascending within a single segment, but
// values handed out by different instances may interleave — leafid
// does not provide global cross-instance ordering, and unused IDs in
// the most recently fetched segment are lost on restart by design.
//
// Basic usage:
//
//	dao := mockdao.New()
//	dao.Insert(ctx, leafid.Leaf{Tag: 1, MaxID: 0, Step: 1000})
//
//	gen := leafid.New(dao, leafid.NewConfig())
//	if err := gen.Init(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
//	id, err := gen.Get(ctx, 1)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(id)
//
// Two operating modes control how the per-tag cache is populated: eager
// mode loads every tag from the database at Init and keeps the cache in
// sync on a timer, while lazy mode loads a tag's buffer on its first
// Get and leaves cleanup to a TTL sweep. See Config and WithLazy.
//
// Concurrency:
//
// All exported IDGen methods are safe for concurrent use. Values
// returned by Get for the same tag are always distinct; values drawn
// from a single in-memory segment are strictly increasing. The
// reference storage adapters under internal/daos are not part of the
// public API surface this package guarantees — they exist to exercise
// Dao against real back-ends and to back cmd/leafid-bench.
package leafid
