// Package ranking puts results from different corpora on one scale and orders them.
//
// Normalizer maps each source's raw similarity onto [0, 1] and computes the raw
// floor pushed down to each index. Deduplicate and Sort implement the merge
// policy; Rank chains filter, sort, dedup and truncate.
package ranking
