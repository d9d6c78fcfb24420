// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package search

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/pdiddy/scholarqa/pkg/types"
)

// Payload keys of a passage point in the Qdrant collection.
const (
	payloadDocID       = "doc_id"
	payloadText        = "text"
	payloadTitle       = "title"
	payloadSection     = "section"
	payloadRefMentions = "ref_mentions"
)

// QueryEmbedder turns a query into a vector. langchaingo's
// embeddings.Embedder satisfies it.
type QueryEmbedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// pointSearcher is the subset of pb.PointsClient the backend needs.
type pointSearcher interface {
	Search(ctx context.Context, in *pb.SearchPoints, opts ...grpc.CallOption) (*pb.SearchResponse, error)
}

// QdrantBackend searches a pre-built passage index in Qdrant. Each point
// holds one passage; ref_mentions is a JSON array of types.RefMention with
// byte offsets into text.
type QdrantBackend struct {
	conn       *grpc.ClientConn
	points     pointSearcher
	collection string
	embedder   QueryEmbedder
}

// NewQdrantBackend connects to Qdrant at the given gRPC address.
func NewQdrantBackend(addr, collection string, embedder QueryEmbedder) (*QdrantBackend, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("dial qdrant %s: %w", addr, err)
	}
	return &QdrantBackend{
		conn:       conn,
		points:     pb.NewPointsClient(conn),
		collection: collection,
		embedder:   embedder,
	}, nil
}

// Close closes the underlying gRPC connection.
func (b *QdrantBackend) Close() error {
	if b.conn == nil {
		return nil
	}
	return b.conn.Close()
}

// Name returns the backend identifier.
func (b *QdrantBackend) Name() string { return "qdrant" }

// Search embeds query and returns the limit nearest passages.
func (b *QdrantBackend) Search(ctx context.Context, query string, _ types.SearchMode, limit int) ([]types.Candidate, error) {
	if limit <= 0 {
		limit = defaultTaskLimit
	}
	vec, err := b.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	resp, err := b.points.Search(ctx, &pb.SearchPoints{
		CollectionName: b.collection,
		Vector:         vec,
		Limit:          uint64(limit),
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant search: %w", err)
	}

	cands := make([]types.Candidate, 0, len(resp.GetResult()))
	for _, p := range resp.GetResult() {
		c, ok := pointCandidate(p)
		if !ok {
			continue
		}
		cands = append(cands, c)
	}
	return cands, nil
}

// pointCandidate reads a passage from a scored point. Points without a
// document ID or text are skipped.
func pointCandidate(p *pb.ScoredPoint) (types.Candidate, bool) {
	payload := p.GetPayload()
	c := types.Candidate{
		DocID:        payloadString(payload[payloadDocID]),
		Text:         payloadString(payload[payloadText]),
		Title:        payloadString(payload[payloadTitle]),
		SectionTitle: payloadString(payload[payloadSection]),
		Kind:         types.KindPassage,
		Source:       "qdrant",
		Score:        float64(p.GetScore()),
	}
	if c.DocID == "" || c.Text == "" {
		return types.Candidate{}, false
	}
	if raw := payloadString(payload[payloadRefMentions]); raw != "" {
		var mentions []types.RefMention
		if err := json.Unmarshal([]byte(raw), &mentions); err == nil {
			for _, m := range mentions {
				if m.Start >= 0 && m.End > m.Start && m.End <= len(c.Text) {
					c.RefMentions = append(c.RefMentions, m)
				}
			}
		}
	}
	return c, true
}

func payloadString(v *pb.Value) string {
	if v == nil {
		return ""
	}
	switch k := v.GetKind().(type) {
	case *pb.Value_StringValue:
		return k.StringValue
	case *pb.Value_IntegerValue:
		return strconv.FormatInt(k.IntegerValue, 10)
	default:
		return ""
	}
}
