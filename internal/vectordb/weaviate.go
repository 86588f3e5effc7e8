// Package vectordb serves nearest-neighbour evidence search from Weaviate.
package vectordb

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"

	"github.com/ppiankov/factlens/internal/model"
	"github.com/ppiankov/factlens/internal/search"
)

// objectNamespace derives Weaviate object IDs from (tenant, evidence ID).
var objectNamespace = uuid.MustParse("a3e4b8f2-1d6c-5e7a-9b0f-2c4d6e8f0a1b")

// WeaviateIndex implements search.VectorIndex over a Weaviate class whose
// objects carry caller-supplied vectors.
type WeaviateIndex struct {
	client *weaviate.Client
	class  string
	logger *slog.Logger
}

// NewWeaviateIndex connects to host (host[:port]) with the given scheme
func NewWeaviateIndex(scheme, host, class string) (*WeaviateIndex, error) {
	if u, err := url.Parse(host); err == nil && u.Host != "" {
		scheme, host = u.Scheme, u.Host
	}
	client, err := weaviate.NewClient(weaviate.Config{
		Host:   host,
		Scheme: scheme,
	})
	if err != nil {
		return nil, fmt.Errorf("create weaviate client: %w", err)
	}
	if class == "" {
		class = "Evidence"
	}
	return &WeaviateIndex{
		client: client,
		class:  class,
		logger: slog.Default().With("component", "weaviate", "class", class),
	}, nil
}

// ObjectID returns the Weaviate object UUID for a tenant's evidence ID
func ObjectID(tenantID, evidenceID string) string {
	return uuid.NewSHA1(objectNamespace, []byte(tenantID+"\x00"+evidenceID)).String()
}

// Schema returns the class definition. Vectors are supplied by factlens,
// so the class has no vectorizer.
func (w *WeaviateIndex) Schema() *models.Class {
	filterable := true
	return &models.Class{
		Class:       w.class,
		Description: "Evidence passages used to verify claims",
		Vectorizer:  "none",
		Properties: []*models.Property{
			{Name: "evidenceId", DataType: []string{"text"}, IndexFilterable: &filterable},
			{Name: "tenantId", DataType: []string{"text"}, IndexFilterable: &filterable},
			{Name: "content", DataType: []string{"text"}},
			{Name: "sourceUrl", DataType: []string{"text"}, IndexFilterable: &filterable},
			{Name: "createdAt", DataType: []string{"date"}, IndexFilterable: &filterable},
		},
	}
}

// EnsureSchema creates the class if it does not exist
func (w *WeaviateIndex) EnsureSchema(ctx context.Context) error {
	if _, err := w.client.Schema().ClassGetter().WithClassName(w.class).Do(ctx); err == nil {
		return nil
	}
	w.logger.Info("creating weaviate class")
	if err := w.client.Schema().ClassCreator().WithClass(w.Schema()).Do(ctx); err != nil {
		return fmt.Errorf("create class %s: %w", w.class, err)
	}
	return nil
}

// UpsertEvidence writes passages with their embeddings, replacing any
// object previously stored for the same evidence ID.
func (w *WeaviateIndex) UpsertEvidence(ctx context.Context, passages []model.Passage) error {
	for _, p := range passages {
		if len(p.Embedding) == 0 {
			continue
		}
		id := ObjectID(p.TenantID, p.ID)

		exists, err := w.client.Data().Checker().WithClassName(w.class).WithID(id).Do(ctx)
		if err != nil {
			return fmt.Errorf("check object %s: %w", p.ID, err)
		}
		if exists {
			if err := w.client.Data().Deleter().WithClassName(w.class).WithID(id).Do(ctx); err != nil {
				return fmt.Errorf("replace object %s: %w", p.ID, err)
			}
		}

		props := map[string]interface{}{
			"evidenceId": p.ID,
			"tenantId":   p.TenantID,
			"content":    p.Content,
			"sourceUrl":  p.SourceURL,
		}
		if p.CreatedAt != nil {
			props["createdAt"] = p.CreatedAt.UTC().Format(time.RFC3339)
		}

		_, err = w.client.Data().Creator().
			WithClassName(w.class).
			WithID(id).
			WithProperties(props).
			WithVector(p.Embedding).
			Do(ctx)
		if err != nil {
			return fmt.Errorf("create object %s: %w", p.ID, err)
		}
	}
	return nil
}

// SearchVector implements search.VectorIndex. Weaviate reports cosine
// distance; similarity is 1 - distance.
func (w *WeaviateIndex) SearchVector(ctx context.Context, vector []float32, topK int, f model.Filters) ([]search.VectorHit, error) {
	nearVector := w.client.GraphQL().NearVectorArgBuilder().
		WithVector(vector)

	fields := []graphql.Field{
		{Name: "evidenceId"},
		{Name: "_additional", Fields: []graphql.Field{
			{Name: "distance"},
		}},
	}

	result, err := w.client.GraphQL().Get().
		WithClassName(w.class).
		WithFields(fields...).
		WithWhere(whereFilter(f)).
		WithNearVector(nearVector).
		WithLimit(topK).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("weaviate search: %w", err)
	}

	return parseHits(result, w.class)
}

// whereFilter ANDs the tenant with any optional source and date bounds
func whereFilter(f model.Filters) *filters.WhereBuilder {
	operands := []*filters.WhereBuilder{
		filters.Where().
			WithPath([]string{"tenantId"}).
			WithOperator(filters.Equal).
			WithValueString(f.TenantID),
	}
	if f.SourceURL != nil {
		operands = append(operands, filters.Where().
			WithPath([]string{"sourceUrl"}).
			WithOperator(filters.Equal).
			WithValueString(*f.SourceURL))
	}
	if f.DateFrom != nil {
		operands = append(operands, filters.Where().
			WithPath([]string{"createdAt"}).
			WithOperator(filters.GreaterThanEqual).
			WithValueDate(*f.DateFrom))
	}
	if f.DateTo != nil {
		operands = append(operands, filters.Where().
			WithPath([]string{"createdAt"}).
			WithOperator(filters.LessThanEqual).
			WithValueDate(*f.DateTo))
	}
	if len(operands) == 1 {
		return operands[0]
	}
	return filters.Where().
		WithOperator(filters.And).
		WithOperands(operands)
}

type vectorObject struct {
	EvidenceID string `json:"evidenceId"`
	Additional struct {
		Distance *float64 `json:"distance"`
	} `json:"_additional"`
}

type getResponse struct {
	Get map[string][]vectorObject `json:"Get"`
}

// parseHits converts a GraphQL Get response into hits, best first
func parseHits(resp *models.GraphQLResponse, class string) ([]search.VectorHit, error) {
	if resp == nil {
		return nil, fmt.Errorf("nil GraphQL response")
	}
	if len(resp.Errors) > 0 {
		return nil, fmt.Errorf("weaviate search error: %s", resp.Errors[0].Message)
	}

	raw, err := json.Marshal(resp.Data)
	if err != nil {
		return nil, fmt.Errorf("marshal GraphQL data: %w", err)
	}
	var parsed getResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("parse GraphQL data: %w", err)
	}

	objects := parsed.Get[class]
	hits := make([]search.VectorHit, 0, len(objects))
	for _, o := range objects {
		if o.EvidenceID == "" || o.Additional.Distance == nil {
			continue
		}
		hits = append(hits, search.VectorHit{
			ID:         o.EvidenceID,
			Similarity: 1 - *o.Additional.Distance,
		})
	}
	return hits, nil
}
