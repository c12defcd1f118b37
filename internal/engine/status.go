package engine

import (
	"context"
	"fmt"

	"github.com/dshills/litsearch/internal/storage"
	"github.com/dshills/litsearch/pkg/types"
)

// Status describes the index and the embedding provider.
type Status struct {
	Backend        string                 `json:"backend"`
	SchemaVersion  string                 `json:"schema_version,omitempty"`
	Sources        []storage.SourceStatus `json:"sources"`
	EnabledSources []types.SourceType     `json:"enabled_sources"`
	IndexSizeMB    float64                `json:"index_size_mb"`
	Health         storage.HealthStatus   `json:"health"`
	Provider       string                 `json:"embedding_provider"`
	Model          string                 `json:"embedding_model"`
	Dimension      int                    `json:"embedding_dimension"`
}

// Status reports per-corpus passage and embedding counts.
func (e *Engine) Status(ctx context.Context) (*Status, error) {
	st, err := e.store.GetStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get index status: %w", err)
	}
	return &Status{
		Backend:        st.Backend,
		SchemaVersion:  st.SchemaVersion,
		Sources:        st.Sources,
		EnabledSources: e.aggregator.Sources(),
		IndexSizeMB:    st.IndexSizeMB,
		Health:         st.Health,
		Provider:       e.embedder.Provider(),
		Model:          e.embedder.Model(),
		Dimension:      e.embedder.Dimension(),
	}, nil
}
