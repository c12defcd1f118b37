// Package searcher runs vector similarity searches against one literature corpus.
//
// IndexSearcher queries the storage index for Limit*overfetch candidates at or
// above max(MinScore, index floor), maps each passage to a chunk, sorts by raw
// score descending (natural ref order breaks ties) and truncates to Limit.
//
// The corpus adapters differ only in how they canonicalize SourceRef:
//
//	NewBookPageSearcher    "p. 0164"              -> "164"
//	NewReflectionSearcher  "1/12", "January 12"   -> "01-12"
//	NewStepSearcher        "Step 4"               -> "4"
//	NewArticleSearcher     "Letting Go of Fear"   -> "letting-go-of-fear"
//
// A ref that cannot be canonicalized is kept verbatim.
//
// Scores are raw cosine similarities; normalization across corpora happens in
// the ranking package. Any storage failure is wrapped in types.ErrSourceUnavailable.
package searcher
