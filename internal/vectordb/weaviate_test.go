package vectordb

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/weaviate/weaviate/entities/models"
)

func TestParseHits(t *testing.T) {
	resp := &models.GraphQLResponse{
		Data: map[string]models.JSONObject{
			"Get": map[string]interface{}{
				"Evidence": []interface{}{
					map[string]interface{}{
						"evidenceId":  "ev-1",
						"_additional": map[string]interface{}{"distance": 0.1},
					},
					map[string]interface{}{
						"evidenceId":  "ev-2",
						"_additional": map[string]interface{}{"distance": 0.4},
					},
					// No distance: skipped.
					map[string]interface{}{
						"evidenceId":  "ev-3",
						"_additional": map[string]interface{}{},
					},
				},
			},
		},
	}

	hits, err := parseHits(resp, "Evidence")
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "ev-1", hits[0].ID)
	assert.InDelta(t, 0.9, hits[0].Similarity, 1e-9)
	assert.Equal(t, "ev-2", hits[1].ID)
	assert.InDelta(t, 0.6, hits[1].Similarity, 1e-9)
}

func TestParseHits_GraphQLError(t *testing.T) {
	resp := &models.GraphQLResponse{
		Errors: []*models.GraphQLError{{Message: "class not found"}},
	}
	_, err := parseHits(resp, "Evidence")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "class not found")
}

func TestParseHits_OtherClass(t *testing.T) {
	resp := &models.GraphQLResponse{
		Data: map[string]models.JSONObject{
			"Get": map[string]interface{}{
				"Other": []interface{}{
					map[string]interface{}{"evidenceId": "x", "_additional": map[string]interface{}{"distance": 0.0}},
				},
			},
		},
	}
	hits, err := parseHits(resp, "Evidence")
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestObjectID(t *testing.T) {
	a := ObjectID("tenant-a", "ev-1")
	assert.Equal(t, a, ObjectID("tenant-a", "ev-1"))
	assert.NotEqual(t, a, ObjectID("tenant-b", "ev-1"))
	assert.NotEqual(t, a, ObjectID("tenant-a", "ev-2"))
}

func TestSchema(t *testing.T) {
	w, err := NewWeaviateIndex("http", "localhost:8080", "")
	require.NoError(t, err)

	class := w.Schema()
	assert.Equal(t, "Evidence", class.Class)
	assert.Equal(t, "none", class.Vectorizer)

	names := make([]string, 0, len(class.Properties))
	for _, p := range class.Properties {
		names = append(names, p.Name)
	}
	assert.ElementsMatch(t, []string{"evidenceId", "tenantId", "content", "sourceUrl", "createdAt"}, names)
}

func TestNewWeaviateIndex_URLHost(t *testing.T) {
	w, err := NewWeaviateIndex("http", "https://weaviate.example.com", "Passages")
	require.NoError(t, err)
	assert.Equal(t, "Passages", w.class)
}
