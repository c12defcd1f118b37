// Package aggregator implements the combined search across corpora.
//
// A query is embedded once, then every selected source is searched concurrently
// under a per-source timeout inside a query-wide timeout. Sources that fail or
// time out are dropped and reported in the Response; the query only fails when
// all of them do. Surviving results are normalized onto [0, 1], filtered by the
// minimum score, deduplicated and ranked.
package aggregator
