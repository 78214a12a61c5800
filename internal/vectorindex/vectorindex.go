// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch

// Package vectorindex wraps Qdrant as the security-aware retrieval core's
// vector store. It pushes a coarse permission pre-filter into the ANN
// search itself (§4.10) and returns the live metadata needed for the
// caller to re-check exact permissions against current grants.
package vectorindex

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/northbound/hiverag/internal/access"
	"github.com/northbound/hiverag/internal/errs"
	qdrant "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
)

// Point is one chunk's embedding plus the payload the index stores
// alongside it. SharedWith is a denormalized snapshot of every principal
// (user or group id) holding at least read on the chunk's document at
// write time — it drives the pre-filter; access.Predicate.Allows is the
// authoritative re-check against live grants.
type Point struct {
	ChunkID    string
	DocumentID string
	OwnerID    string
	Visibility access.Visibility
	Content    string
	Tags       []string
	SharedWith []string
	Vector     []float32
}

// Hit is a single ranked retrieval result.
type Hit struct {
	ChunkID    string
	DocumentID string
	Score      float32
	Content    string
	OwnerID    string
	Visibility access.Visibility
	Tags       []string
}

// Index describes the behaviour the query pipeline and ingestion pipeline
// need from the vector store.
type Index interface {
	Upsert(ctx context.Context, points []Point) error
	Search(ctx context.Context, queryVector []float32, topK int, pred access.Predicate, relevanceFloor float32) ([]Hit, error)
	UpdateTags(ctx context.Context, chunkID string, tags []string) error
	DeleteByDocument(ctx context.Context, documentID string) error
	DeleteByChunk(ctx context.Context, chunkID string) error
	Count(ctx context.Context) (int, error)
}

// QdrantIndex is a thin wrapper around the Qdrant gRPC service clients.
type QdrantIndex struct {
	collectionsSvc qdrant.CollectionsClient
	pointsSvc      qdrant.PointsClient
	collection     string
	dimension      int
}

// NewQdrantIndex constructs a wrapper over an existing gRPC connection and
// ensures the collection exists with the given vector dimension.
func NewQdrantIndex(ctx context.Context, conn *grpc.ClientConn, collection string, dimension int) (*QdrantIndex, error) {
	if conn == nil {
		return nil, errors.New("vectorindex: gRPC connection is required")
	}
	if collection == "" {
		collection = "hiverag_chunks"
	}
	if dimension <= 0 {
		dimension = 1536
	}

	idx := &QdrantIndex{
		collectionsSvc: qdrant.NewCollectionsClient(conn),
		pointsSvc:      qdrant.NewPointsClient(conn),
		collection:     collection,
		dimension:      dimension,
	}
	if err := idx.ensureCollection(ctx, dimension); err != nil {
		return nil, errs.Wrap(errs.Fatal, "vectorindex", err, "ensure collection")
	}
	return idx, nil
}

func (q *QdrantIndex) ensureCollection(ctx context.Context, dim int) error {
	collections, err := q.collectionsSvc.List(ctx, &qdrant.ListCollectionsRequest{})
	if err != nil {
		return fmt.Errorf("list collections: %w", err)
	}

	for _, c := range collections.Collections {
		if c.Name == q.collection {
			q.dimension = dim
			return nil
		}
	}

	_, err = q.collectionsSvc.Create(ctx, &qdrant.CreateCollection{
		CollectionName: q.collection,
		VectorsConfig: &qdrant.VectorsConfig{
			Config: &qdrant.VectorsConfig_Params{
				Params: &qdrant.VectorParams{
					Size:     uint64(dim),
					Distance: qdrant.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("create collection: %w", err)
	}
	q.dimension = dim
	return nil
}

func stringValue(v string) *qdrant.Value {
	return &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: v}}
}

func pointIDFor(id string) *qdrant.PointId {
	return &qdrant.PointId{PointIdOptions: &qdrant.PointId_Uuid{Uuid: id}}
}

// Upsert stores or replaces a batch of chunk vectors.
func (q *QdrantIndex) Upsert(ctx context.Context, points []Point) error {
	if len(points) == 0 {
		return nil
	}

	qpoints := make([]*qdrant.PointStruct, 0, len(points))
	for _, p := range points {
		if len(p.Vector) == 0 {
			return errs.Validationf("vectorindex", "vector", "vector for chunk %s is empty", p.ChunkID)
		}
		sharedJSON, err := json.Marshal(p.SharedWith)
		if err != nil {
			return errs.Wrap(errs.Validation, "vectorindex", err, "marshal shared_with")
		}
		tagsJSON, err := json.Marshal(p.Tags)
		if err != nil {
			return errs.Wrap(errs.Validation, "vectorindex", err, "marshal tags")
		}

		payload := map[string]*qdrant.Value{
			"document_id": stringValue(p.DocumentID),
			"owner_id":    stringValue(p.OwnerID),
			"visibility":  stringValue(string(p.Visibility)),
			"content":     stringValue(p.Content),
			"tags":        stringValue(string(tagsJSON)),
			"shared_with": stringValue(string(sharedJSON)),
		}
		for _, principal := range p.SharedWith {
			payload["shared_with_"+principal] = stringValue(principal)
		}

		qpoints = append(qpoints, &qdrant.PointStruct{
			Id: pointIDFor(p.ChunkID),
			Vectors: &qdrant.Vectors{
				VectorsOptions: &qdrant.Vectors_Vector{Vector: &qdrant.Vector{Data: p.Vector}},
			},
			Payload: payload,
		})
	}

	if _, err := q.pointsSvc.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: q.collection,
		Points:         qpoints,
	}); err != nil {
		return errs.Wrap(errs.Transient, "vectorindex", err, "upsert points")
	}
	return nil
}

// buildFilter translates an access.Predicate into a coarse Qdrant filter:
// owner match, public visibility, or membership in the denormalized
// shared_with set. This is a pre-filter only — the caller must still run
// access.Predicate.Allows against live grants on every returned Hit.
func buildFilter(pred access.Predicate) *qdrant.Filter {
	should := []*qdrant.Condition{
		{
			ConditionOneOf: &qdrant.Condition_Field{
				Field: &qdrant.FieldCondition{
					Key:   "owner_id",
					Match: &qdrant.Match{MatchValue: &qdrant.Match_Keyword{Keyword: pred.UserID}},
				},
			},
		},
	}
	if pred.RequiredLevel <= access.LevelRead {
		should = append(should, &qdrant.Condition{
			ConditionOneOf: &qdrant.Condition_Field{
				Field: &qdrant.FieldCondition{
					Key:   "visibility",
					Match: &qdrant.Match{MatchValue: &qdrant.Match_Keyword{Keyword: string(access.VisibilityPublic)}},
				},
			},
		})
	}
	should = append(should, &qdrant.Condition{
		ConditionOneOf: &qdrant.Condition_Field{
			Field: &qdrant.FieldCondition{
				Key:   "shared_with_" + pred.UserID,
				Match: &qdrant.Match{MatchValue: &qdrant.Match_Keyword{Keyword: pred.UserID}},
			},
		},
	})
	for _, group := range pred.MemberOf {
		should = append(should, &qdrant.Condition{
			ConditionOneOf: &qdrant.Condition_Field{
				Field: &qdrant.FieldCondition{
					Key:   "shared_with_" + group,
					Match: &qdrant.Match{MatchValue: &qdrant.Match_Keyword{Keyword: group}},
				},
			},
		})
	}
	return &qdrant.Filter{Should: should}
}

// Search performs a similarity search with the permission pre-filter
// applied, then drops any hit scoring below relevanceFloor (§4.3/§4.10).
func (q *QdrantIndex) Search(ctx context.Context, queryVector []float32, topK int, pred access.Predicate, relevanceFloor float32) ([]Hit, error) {
	if len(queryVector) == 0 {
		return nil, errs.Validationf("vectorindex", "vector", "query vector cannot be empty")
	}
	if topK <= 0 {
		topK = 10
	}

	result, err := q.pointsSvc.Search(ctx, &qdrant.SearchPoints{
		CollectionName: q.collection,
		Vector:         queryVector,
		Limit:          uint64(topK),
		Filter:         buildFilter(pred),
		WithPayload:    &qdrant.WithPayloadSelector{SelectorOptions: &qdrant.WithPayloadSelector_Enable{Enable: true}},
		WithVectors:    &qdrant.WithVectorsSelector{SelectorOptions: &qdrant.WithVectorsSelector_Enable{Enable: false}},
	})
	if err != nil {
		return nil, errs.Wrap(errs.Transient, "vectorindex", err, "search")
	}

	hits := make([]Hit, 0, len(result.Result))
	for _, sp := range result.Result {
		if sp.Score < relevanceFloor {
			continue
		}
		var chunkID string
		if sp.Id != nil {
			chunkID = sp.Id.GetUuid()
		}
		var h Hit
		h.ChunkID = chunkID
		h.Score = sp.Score
		if sp.Payload != nil {
			if v, ok := sp.Payload["document_id"]; ok {
				h.DocumentID = v.GetStringValue()
			}
			if v, ok := sp.Payload["owner_id"]; ok {
				h.OwnerID = v.GetStringValue()
			}
			if v, ok := sp.Payload["visibility"]; ok {
				h.Visibility = access.Visibility(v.GetStringValue())
			}
			if v, ok := sp.Payload["content"]; ok {
				h.Content = v.GetStringValue()
			}
			if v, ok := sp.Payload["tags"]; ok {
				_ = json.Unmarshal([]byte(v.GetStringValue()), &h.Tags)
			}
		}
		hits = append(hits, h)
	}
	return hits, nil
}

// UpdateTags rewrites a chunk's tag payload without touching its vector,
// mirroring the teacher's SetPayload-only update.
func (q *QdrantIndex) UpdateTags(ctx context.Context, chunkID string, tags []string) error {
	tagsJSON, err := json.Marshal(tags)
	if err != nil {
		return errs.Wrap(errs.Validation, "vectorindex", err, "marshal tags")
	}
	payload := map[string]*qdrant.Value{"tags": stringValue(string(tagsJSON))}

	_, err = q.pointsSvc.SetPayload(ctx, &qdrant.SetPayloadPoints{
		CollectionName: q.collection,
		Payload:        payload,
		PointsSelector: &qdrant.PointsSelector{
			PointsSelectorOneOf: &qdrant.PointsSelector_Points{
				Points: &qdrant.PointsIdsList{Ids: []*qdrant.PointId{pointIDFor(chunkID)}},
			},
		},
	})
	if err != nil {
		return errs.Wrap(errs.Transient, "vectorindex", err, "update tags")
	}
	return nil
}

// DeleteByDocument removes every point tagged with documentID, used when a
// document is deleted or re-ingested from scratch.
func (q *QdrantIndex) DeleteByDocument(ctx context.Context, documentID string) error {
	filter := &qdrant.Filter{
		Must: []*qdrant.Condition{
			{
				ConditionOneOf: &qdrant.Condition_Field{
					Field: &qdrant.FieldCondition{
						Key:   "document_id",
						Match: &qdrant.Match{MatchValue: &qdrant.Match_Keyword{Keyword: documentID}},
					},
				},
			},
		},
	}
	_, err := q.pointsSvc.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: q.collection,
		Points: &qdrant.PointsSelector{
			PointsSelectorOneOf: &qdrant.PointsSelector_Filter{Filter: filter},
		},
	})
	if err != nil {
		return errs.Wrap(errs.Transient, "vectorindex", err, "delete by document")
	}
	return nil
}

// DeleteByChunk removes a single point, used when a permission change
// drops a chunk's last grantee rather than the whole document being
// deleted.
func (q *QdrantIndex) DeleteByChunk(ctx context.Context, chunkID string) error {
	_, err := q.pointsSvc.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: q.collection,
		Points: &qdrant.PointsSelector{
			PointsSelectorOneOf: &qdrant.PointsSelector_Points{
				Points: &qdrant.PointsIdsList{Ids: []*qdrant.PointId{pointIDFor(chunkID)}},
			},
		},
	})
	if err != nil {
		return errs.Wrap(errs.Transient, "vectorindex", err, "delete by chunk")
	}
	return nil
}

func (q *QdrantIndex) Count(ctx context.Context) (int, error) {
	info, err := q.collectionsSvc.Get(ctx, &qdrant.GetCollectionInfoRequest{CollectionName: q.collection})
	if err != nil {
		return 0, errs.Wrap(errs.Transient, "vectorindex", err, "get collection info")
	}
	if info.Result == nil || info.Result.PointsCount == nil {
		return 0, nil
	}
	return int(*info.Result.PointsCount), nil
}
