// Package curator orchestrates the curation pipeline end to end: feed
// validation, failure-motif down-ranking, diversity ranking, density
// compression of oversized items, budget packing, pack versioning, and
// expectation recording. It also owns the bounded AutoFix and Recurate
// paths used when a session is blocked.
package curator
