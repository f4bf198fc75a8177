// Package semantic mirrors the embedded fragments of a processed document
// into a Qdrant collection so they outlive the process and can be searched
// outside it.
package semantic

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/WessleyAI/docqa/engine/domain"
	"github.com/WessleyAI/docqa/engine/store"
)

// PointsAPI is the subset of pb.PointsClient used here.
type PointsAPI interface {
	Upsert(ctx context.Context, in *pb.UpsertPoints, opts ...grpc.CallOption) (*pb.PointsOperationResponse, error)
	Delete(ctx context.Context, in *pb.DeletePoints, opts ...grpc.CallOption) (*pb.PointsOperationResponse, error)
	Search(ctx context.Context, in *pb.SearchPoints, opts ...grpc.CallOption) (*pb.SearchResponse, error)
}

// CollectionsAPI is the subset of pb.CollectionsClient used here.
type CollectionsAPI interface {
	List(ctx context.Context, in *pb.ListCollectionsRequest, opts ...grpc.CallOption) (*pb.ListCollectionsResponse, error)
	Create(ctx context.Context, in *pb.CreateCollection, opts ...grpc.CallOption) (*pb.CollectionOperationResponse, error)
}

// VectorStore is the sole owner of all Qdrant operations.
type VectorStore struct {
	conn        *grpc.ClientConn
	points      PointsAPI
	collections CollectionsAPI
	collection  string
}

// New creates a VectorStore connected to Qdrant at the given gRPC address.
func New(addr string, collection string) (*VectorStore, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("semantic: dial qdrant %s: %w", addr, err)
	}
	return &VectorStore{
		conn:        conn,
		points:      pb.NewPointsClient(conn),
		collections: pb.NewCollectionsClient(conn),
		collection:  collection,
	}, nil
}

// NewWithClients creates a VectorStore over existing clients.
func NewWithClients(points PointsAPI, collections CollectionsAPI, collection string) *VectorStore {
	return &VectorStore{points: points, collections: collections, collection: collection}
}

// Close closes the underlying gRPC connection.
func (v *VectorStore) Close() error {
	if v.conn == nil {
		return nil
	}
	return v.conn.Close()
}

// EnsureCollection creates the collection if it doesn't exist.
func (v *VectorStore) EnsureCollection(ctx context.Context, dims int) error {
	list, err := v.collections.List(ctx, &pb.ListCollectionsRequest{})
	if err != nil {
		return fmt.Errorf("semantic: list collections: %w", err)
	}
	for _, c := range list.GetCollections() {
		if c.GetName() == v.collection {
			return nil
		}
	}

	_, err = v.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: v.collection,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     uint64(dims),
					Distance: pb.Distance_Dot,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("semantic: create collection %s: %w", v.collection, err)
	}
	return nil
}

// PointID derives a stable point id for a fragment of a document.
func PointID(docID string, chunkID int) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, fmt.Appendf(nil, "docqa:%s/%d", docID, chunkID)).String()
}

// Records converts the embedded fragments of doc into vector records.
// Fragments without an embedding are skipped.
func Records(doc *store.Document) []VectorRecord {
	var out []VectorRecord
	for _, f := range doc.Fragments {
		if !f.Embedded() {
			continue
		}
		payload := map[string]any{
			"doc_id":   doc.ID,
			"source":   doc.Source,
			"chunk_id": f.ChunkID,
			"page":     f.Page,
			"type":     string(f.Kind),
		}
		if f.Kind == domain.KindText {
			payload["content"] = f.Content
		} else {
			payload["format"] = f.Format
		}
		out = append(out, VectorRecord{ID: PointID(doc.ID, f.ChunkID), Embedding: f.Embedding, Payload: payload})
	}
	return out
}

// Index mirrors doc into the collection, creating it on first use.
func (v *VectorStore) Index(ctx context.Context, doc *store.Document) error {
	records := Records(doc)
	if len(records) == 0 {
		return nil
	}
	if err := v.EnsureCollection(ctx, len(records[0].Embedding)); err != nil {
		return err
	}
	return v.Upsert(ctx, records)
}

// Upsert stores embedding records into Qdrant.
func (v *VectorStore) Upsert(ctx context.Context, records []VectorRecord) error {
	if len(records) == 0 {
		return nil
	}

	points := make([]*pb.PointStruct, len(records))
	for i, r := range records {
		payload := make(map[string]*pb.Value, len(r.Payload))
		for k, val := range r.Payload {
			switch tv := val.(type) {
			case string:
				payload[k] = &pb.Value{Kind: &pb.Value_StringValue{StringValue: tv}}
			case int:
				payload[k] = &pb.Value{Kind: &pb.Value_IntegerValue{IntegerValue: int64(tv)}}
			case int64:
				payload[k] = &pb.Value{Kind: &pb.Value_IntegerValue{IntegerValue: tv}}
			case float64:
				payload[k] = &pb.Value{Kind: &pb.Value_DoubleValue{DoubleValue: tv}}
			case bool:
				payload[k] = &pb.Value{Kind: &pb.Value_BoolValue{BoolValue: tv}}
			default:
				payload[k] = &pb.Value{Kind: &pb.Value_StringValue{StringValue: fmt.Sprint(tv)}}
			}
		}

		points[i] = &pb.PointStruct{
			Id: &pb.PointId{
				PointIdOptions: &pb.PointId_Uuid{Uuid: r.ID},
			},
			Vectors: &pb.Vectors{
				VectorsOptions: &pb.Vectors_Vector{
					Vector: &pb.Vector{Data: r.Embedding},
				},
			},
			Payload: payload,
		}
	}

	wait := true
	_, err := v.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: v.collection,
		Wait:           &wait,
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("semantic: upsert %d points: %w", len(records), err)
	}
	return nil
}

// DeleteByDocID removes all points of a document.
func (v *VectorStore) DeleteByDocID(ctx context.Context, docID string) error {
	wait := true
	_, err := v.points.Delete(ctx, &pb.DeletePoints{
		CollectionName: v.collection,
		Wait:           &wait,
		Points: &pb.PointsSelector{
			PointsSelectorOneOf: &pb.PointsSelector_Filter{
				Filter: &pb.Filter{
					Must: []*pb.Condition{
						fieldMatch("doc_id", docID),
					},
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("semantic: delete by doc_id %s: %w", docID, err)
	}
	return nil
}

// Search performs k-NN similarity search, optionally restricted to one
// document. It backs retrieve.Index.
func (v *VectorStore) Search(ctx context.Context, embedding []float32, topK int, docID string) ([]SearchResult, error) {
	req := &pb.SearchPoints{
		CollectionName: v.collection,
		Vector:         embedding,
		Limit:          uint64(topK),
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
	}
	if docID != "" {
		req.Filter = &pb.Filter{Must: []*pb.Condition{fieldMatch("doc_id", docID)}}
	}

	resp, err := v.points.Search(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("semantic: search: %w", err)
	}

	results := make([]SearchResult, len(resp.GetResult()))
	for i, r := range resp.GetResult() {
		p := r.GetPayload()
		results[i] = SearchResult{
			ID:      r.GetId().GetUuid(),
			Score:   r.GetScore(),
			DocID:   p["doc_id"].GetStringValue(),
			Source:  p["source"].GetStringValue(),
			ChunkID: int(p["chunk_id"].GetIntegerValue()),
			Page:    int(p["page"].GetIntegerValue()),
			Kind:    domain.Kind(p["type"].GetStringValue()),
			Content: p["content"].GetStringValue(),
			Format:  p["format"].GetStringValue(),
		}
	}
	return results, nil
}

func fieldMatch(key, value string) *pb.Condition {
	return &pb.Condition{
		ConditionOneOf: &pb.Condition_Field{
			Field: &pb.FieldCondition{
				Key: key,
				Match: &pb.Match{
					MatchValue: &pb.Match_Keyword{Keyword: value},
				},
			},
		},
	}
}
