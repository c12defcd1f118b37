package types

import "strings"

// CompareRefs orders locators naturally: runs of digits compare numerically, everything
// else compares byte-wise. "9" < "10" < "164", "01-02" < "01-12", "step-2" < "step-10".
func CompareRefs(a, b string) int {
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		ca, cb := a[i], b[j]
		if isDigit(ca) && isDigit(cb) {
			si := i
			for i < len(a) && isDigit(a[i]) {
				i++
			}
			sj := j
			for j < len(b) && isDigit(b[j]) {
				j++
			}
			na := strings.TrimLeft(a[si:i], "0")
			nb := strings.TrimLeft(b[sj:j], "0")
			if len(na) != len(nb) {
				if len(na) < len(nb) {
					return -1
				}
				return 1
			}
			if c := strings.Compare(na, nb); c != 0 {
				return c
			}
			continue
		}
		if ca != cb {
			if ca < cb {
				return -1
			}
			return 1
		}
		i++
		j++
	}
	switch {
	case len(a)-i < len(b)-j:
		return -1
	case len(a)-i > len(b)-j:
		return 1
	}
	return strings.Compare(a, b)
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

// RankLess is the result ordering: normalized score descending, then SourceRef in
// natural ascending order, then source canonical order, then ID. Insertion order never
// decides.
func RankLess(a, b ScoredChunk) bool {
	if a.NormalizedScore != b.NormalizedScore {
		return a.NormalizedScore > b.NormalizedScore
	}
	if c := CompareRefs(a.SourceRef, b.SourceRef); c != 0 {
		return c < 0
	}
	if ra, rb := a.SourceType.rank(), b.SourceType.rank(); ra != rb {
		return ra < rb
	}
	return CompareRefs(a.ID, b.ID) < 0
}

// RawLess orders chunks of a single source by raw score descending with the same
// deterministic tie-breaks as RankLess.
func RawLess(a, b ScoredChunk) bool {
	if a.RawScore != b.RawScore {
		return a.RawScore > b.RawScore
	}
	if c := CompareRefs(a.SourceRef, b.SourceRef); c != 0 {
		return c < 0
	}
	return CompareRefs(a.ID, b.ID) < 0
}
