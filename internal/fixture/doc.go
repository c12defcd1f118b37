// Package fixture seeds a corpus index from a YAML file of passages.
//
// It exists for tests and local debugging: production indexes are built
// elsewhere and only read by the engine. Passages are embedded with the same
// embedder used for queries so that similarity scores are meaningful.
//
// File format:
//
//	passages:
//	  - source: book-page
//	    id: bb-66
//	    ref: "66"
//	    title: How It Works
//	    text: Resentment is the number one offender.
//	    metadata:
//	      chapter: How It Works
package fixture
