// Package classifier assigns caching metadata to AI queries.
//
// A Classifier is a pure function of its input: it resolves a query's
// category from explicit markers and keyword tables, derives a time-to-live
// from the category's base TTL and the query's shape, emits grouping tags,
// and computes the initial priority used when ranking eviction candidates.
// Blank queries degrade to the general category rather than failing.
package classifier
