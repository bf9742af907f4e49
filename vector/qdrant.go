package vector

import (
	"context"
	"fmt"

	"github.com/qdrant/go-client/qdrant"
)

// Qdrant is a remote Index backed by a Qdrant cluster, for deployments
// where the corpus outgrows the embedded sqlite-vec backend.
type Qdrant struct {
	client *qdrant.Client
	dims   map[string]int
}

// QdrantConfig locates the Qdrant gRPC endpoint.
type QdrantConfig struct {
	Host   string
	Port   int
	APIKey string
}

// NewQdrant connects to Qdrant and ensures one cosine collection per
// entry in collections.
func NewQdrant(ctx context.Context, cfg QdrantConfig, collections map[string]int) (*Qdrant, error) {
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("vector: qdrant client: %w", err)
	}

	q := &Qdrant{client: client, dims: make(map[string]int, len(collections))}
	for name, dim := range collections {
		exists, err := client.CollectionExists(ctx, name)
		if err != nil {
			client.Close()
			return nil, fmt.Errorf("vector: check collection %s: %w", name, err)
		}
		if !exists {
			err = client.CreateCollection(ctx, &qdrant.CreateCollection{
				CollectionName: name,
				VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
					Size:     uint64(dim),
					Distance: qdrant.Distance_Cosine,
				}),
			})
			if err != nil {
				client.Close()
				return nil, fmt.Errorf("vector: create collection %s: %w", name, err)
			}
		}
		q.dims[name] = dim
	}
	return q, nil
}

// pointID hashes the string chunk ID into the numeric point ID space
// with FNV-1a; the original ID travels in the payload.
func pointID(chunkID string) uint64 {
	h := uint64(14695981039346656037)
	for i := 0; i < len(chunkID); i++ {
		h ^= uint64(chunkID[i])
		h *= 1099511628211
	}
	return h
}

func (q *Qdrant) Upsert(ctx context.Context, collection, chunkID string, vec []float32) error {
	dim, ok := q.dims[collection]
	if !ok {
		return errUnknownCollection(collection)
	}
	if len(vec) != dim {
		return errDimMismatch(collection, dim, len(vec))
	}
	_, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: collection,
		Points: []*qdrant.PointStruct{{
			Id:      qdrant.NewIDNum(pointID(chunkID)),
			Vectors: qdrant.NewVectors(vec...),
			Payload: map[string]*qdrant.Value{
				"chunk_id": qdrant.NewValueString(chunkID),
			},
		}},
	})
	if err != nil {
		return fmt.Errorf("vector: qdrant upsert: %w", err)
	}
	return nil
}

func (q *Qdrant) Search(ctx context.Context, collection string, vec []float32, topK int) ([]Hit, error) {
	if _, ok := q.dims[collection]; !ok {
		return nil, errUnknownCollection(collection)
	}
	if topK <= 0 {
		return nil, nil
	}
	points, err := q.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: collection,
		Query:          qdrant.NewQuery(vec...),
		Limit:          qdrant.PtrOf(uint64(topK)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("vector: qdrant query: %w", err)
	}

	hits := make([]Hit, 0, len(points))
	for _, p := range points {
		hits = append(hits, Hit{
			ChunkID: p.Payload["chunk_id"].GetStringValue(),
			Score:   float64(p.Score),
		})
	}
	return hits, nil
}

func (q *Qdrant) Delete(ctx context.Context, collection string, chunkIDs []string) error {
	if _, ok := q.dims[collection]; !ok {
		return errUnknownCollection(collection)
	}
	if len(chunkIDs) == 0 {
		return nil
	}
	ids := make([]*qdrant.PointId, len(chunkIDs))
	for i, id := range chunkIDs {
		ids[i] = qdrant.NewIDNum(pointID(id))
	}
	_, err := q.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: collection,
		Wait:           qdrant.PtrOf(true),
		Points: &qdrant.PointsSelector{
			PointsSelectorOneOf: &qdrant.PointsSelector_Points{
				Points: &qdrant.PointsIdsList{Ids: ids},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("vector: qdrant delete: %w", err)
	}
	return nil
}

func (q *Qdrant) Count(ctx context.Context, collection string) (int, error) {
	if _, ok := q.dims[collection]; !ok {
		return 0, errUnknownCollection(collection)
	}
	n, err := q.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: collection,
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return 0, fmt.Errorf("vector: qdrant count: %w", err)
	}
	return int(n), nil
}

func (q *Qdrant) Close() error {
	return q.client.Close()
}
