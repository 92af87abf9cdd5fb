package vectorstore

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/saaga0h/energy-twins/internal/encoder"
)

func TestBatches(t *testing.T) {
	tests := []struct {
		name string
		n    int
		size int
		want []span
	}{
		{"empty", 0, 10, nil},
		{"single partial", 3, 10, []span{{0, 3}}},
		{"exact multiple", 4, 2, []span{{0, 2}, {2, 4}}},
		{"remainder", 5, 2, []span{{0, 2}, {2, 4}, {4, 5}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, batches(tt.n, tt.size))
		})
	}
}

func TestEmbedding(t *testing.T) {
	v := make(encoder.Vector, encoder.Dims)
	for i := range v {
		v[i] = float64(i) - 0.5
	}

	emb := Embedding(v)
	got := emb.Slice()
	assert.Len(t, got, encoder.Dims)
	assert.Equal(t, float32(-0.5), got[0])
	assert.Equal(t, float32(7.5), got[8])
}

func TestNewExporterDefaults(t *testing.T) {
	x := NewExporter(nil, 0, nil)
	assert.Equal(t, DefaultBatchSize, x.batchSize)
	assert.Contains(t, Schema, "vector(9)")
}

func TestExportIntegration(t *testing.T) {
	// Requires PostgreSQL with the pgvector extension
	t.Skip("Integration test - requires PostgreSQL with pgvector")
}
