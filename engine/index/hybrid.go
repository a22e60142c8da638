package index

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"

	"github.com/ragproc/ragproc/pkg/embed"
)

// Vector names inside the hybrid collection.
const (
	denseVectorName  = "dense"
	sparseVectorName = "sparse"
)

// DefaultDim is the dense vector size when dense retrieval is enabled.
const DefaultDim = 512

// SearchMode selects which side of the hybrid index serves a query.
type SearchMode string

const (
	SearchDense  SearchMode = "dense"
	SearchSparse SearchMode = "sparse"
	SearchHybrid SearchMode = "hybrid"
)

// VectorStore is the surface the index worker writes through.
type VectorStore interface {
	Insert(ctx context.Context, nodes []Node) error
	DeleteBatch(ctx context.Context, ids []string) error
}

// SearchResult is one retrieval hit.
type SearchResult struct {
	ID       string
	Score    float32
	Text     string
	Metadata map[string]string
}

// Config describes the hybrid collection.
type Config struct {
	URI            string
	Token          string
	CollectionName string
	Dim            int
	EnableSparse   bool
	EnableDense    bool
	Overwrite      bool
}

func (c *Config) validate() error {
	if c.URI == "" {
		return fmt.Errorf("index: config uri is required")
	}
	if !c.EnableSparse && !c.EnableDense {
		return fmt.Errorf("index: at least one of enable_sparse/enable_dense must be set")
	}
	if c.EnableDense && c.Dim <= 0 {
		c.Dim = DefaultDim
	}
	return nil
}

// HybridStore owns all Qdrant operations: a named dense vector embedded via
// the TEI client and a named sparse vector encoded locally. Known collection
// names are soft-cached per process and re-synced against the remote list.
type HybridStore struct {
	conn        *grpc.ClientConn
	points      pb.PointsClient
	collections pb.CollectionsClient
	cfg         Config
	embedder    embed.Embedder

	mu    sync.Mutex
	known map[string]struct{}
}

// NewHybridStore validates the config and dials Qdrant. A dense-enabled
// store requires an embedder.
func NewHybridStore(cfg Config, embedder embed.Embedder) (*HybridStore, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.EnableDense && embedder == nil {
		return nil, fmt.Errorf("index: dense retrieval requires an embedder")
	}

	opts := []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}
	if cfg.Token != "" {
		token := cfg.Token
		opts = append(opts, grpc.WithUnaryInterceptor(
			func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, callOpts ...grpc.CallOption) error {
				ctx = metadata.AppendToOutgoingContext(ctx, "api-key", token)
				return invoker(ctx, method, req, reply, cc, callOpts...)
			}))
	}
	conn, err := grpc.NewClient(cfg.URI, opts...)
	if err != nil {
		return nil, fmt.Errorf("index: dial qdrant %s: %w", cfg.URI, err)
	}
	return &HybridStore{
		conn:        conn,
		points:      pb.NewPointsClient(conn),
		collections: pb.NewCollectionsClient(conn),
		cfg:         cfg,
		embedder:    embedder,
		known:       make(map[string]struct{}),
	}, nil
}

// Close closes the underlying gRPC connection.
func (h *HybridStore) Close() error { return h.conn.Close() }

// ReloadSync refreshes the collection cache against the remote list: names
// gone remotely are evicted, names present remotely are added.
func (h *HybridStore) ReloadSync(ctx context.Context) error {
	list, err := h.collections.List(ctx, &pb.ListCollectionsRequest{})
	if err != nil {
		return fmt.Errorf("index: list collections: %w", err)
	}
	remote := make(map[string]struct{}, len(list.GetCollections()))
	for _, c := range list.GetCollections() {
		remote[c.GetName()] = struct{}{}
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for name := range h.known {
		if _, ok := remote[name]; !ok {
			delete(h.known, name)
		}
	}
	for name := range remote {
		h.known[name] = struct{}{}
	}
	return nil
}

// EnsureCollection creates the hybrid collection when missing; with
// Overwrite set it is dropped and recreated.
func (h *HybridStore) EnsureCollection(ctx context.Context) error {
	name := h.cfg.CollectionName

	if h.cfg.Overwrite {
		if _, err := h.collections.Delete(ctx, &pb.DeleteCollection{CollectionName: name}); err != nil {
			return fmt.Errorf("index: overwrite collection %s: %w", name, err)
		}
		h.mu.Lock()
		delete(h.known, name)
		h.mu.Unlock()
	} else {
		h.mu.Lock()
		_, cached := h.known[name]
		h.mu.Unlock()
		if cached {
			return nil
		}
		if err := h.ReloadSync(ctx); err != nil {
			return err
		}
		h.mu.Lock()
		_, cached = h.known[name]
		h.mu.Unlock()
		if cached {
			return nil
		}
	}

	req := &pb.CreateCollection{CollectionName: name}
	if h.cfg.EnableDense {
		req.VectorsConfig = &pb.VectorsConfig{
			Config: &pb.VectorsConfig_ParamsMap{
				ParamsMap: &pb.VectorParamsMap{
					Map: map[string]*pb.VectorParams{
						denseVectorName: {
							Size:     uint64(h.cfg.Dim),
							Distance: pb.Distance_Cosine,
						},
					},
				},
			},
		}
	}
	if h.cfg.EnableSparse {
		req.SparseVectorsConfig = &pb.SparseVectorConfig{
			Map: map[string]*pb.SparseVectorParams{
				sparseVectorName: {},
			},
		}
	}
	if _, err := h.collections.Create(ctx, req); err != nil {
		return fmt.Errorf("index: create collection %s: %w", name, err)
	}

	h.mu.Lock()
	h.known[name] = struct{}{}
	h.mu.Unlock()
	return nil
}

// pointID maps a stable node id onto the UUID space Qdrant accepts.
func pointID(stableID string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(stableID)).String()
}

// Insert implements VectorStore. The batch either fully reaches Qdrant
// (upsert with wait) or errors.
func (h *HybridStore) Insert(ctx context.Context, nodes []Node) error {
	if len(nodes) == 0 {
		return nil
	}

	var dense [][]float32
	if h.cfg.EnableDense {
		texts := make([]string, len(nodes))
		for i, n := range nodes {
			texts[i] = n.Text
		}
		vectors, err := h.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return fmt.Errorf("index: embed batch: %w", err)
		}
		dense = vectors
	}

	points := make([]*pb.PointStruct, len(nodes))
	for i, n := range nodes {
		vectors := make(map[string]*pb.Vector, 2)
		if h.cfg.EnableDense {
			vectors[denseVectorName] = &pb.Vector{Data: dense[i]}
		}
		if h.cfg.EnableSparse {
			indices, values := EncodeSparse(n.Text)
			vectors[sparseVectorName] = &pb.Vector{
				Data:    values,
				Indices: &pb.SparseIndices{Data: indices},
			}
		}

		payload := make(map[string]*pb.Value, len(n.Metadata)+2)
		payload["id"] = &pb.Value{Kind: &pb.Value_StringValue{StringValue: n.ID}}
		payload["text"] = &pb.Value{Kind: &pb.Value_StringValue{StringValue: n.Text}}
		for k, v := range n.Metadata {
			payload[k] = &pb.Value{Kind: &pb.Value_StringValue{StringValue: v}}
		}

		points[i] = &pb.PointStruct{
			Id:      &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: pointID(n.ID)}},
			Vectors: &pb.Vectors{VectorsOptions: &pb.Vectors_Vectors{Vectors: &pb.NamedVectors{Vectors: vectors}}},
			Payload: payload,
		}
	}

	wait := true
	if _, err := h.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: h.cfg.CollectionName,
		Wait:           &wait,
		Points:         points,
	}); err != nil {
		return fmt.Errorf("index: upsert %d points: %w", len(points), err)
	}
	return nil
}

// DeleteBatch implements VectorStore. ids are the stable node ids assigned
// at construction; the uuid mapping is applied here.
func (h *HybridStore) DeleteBatch(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	pointIDs := make([]*pb.PointId, len(ids))
	for i, id := range ids {
		pointIDs[i] = &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: pointID(id)}}
	}
	wait := true
	if _, err := h.points.Delete(ctx, &pb.DeletePoints{
		CollectionName: h.cfg.CollectionName,
		Wait:           &wait,
		Points: &pb.PointsSelector{
			PointsSelectorOneOf: &pb.PointsSelector_Points{
				Points: &pb.PointsIdsList{Ids: pointIDs},
			},
		},
	}); err != nil {
		return fmt.Errorf("index: delete %d points: %w", len(ids), err)
	}
	return nil
}

// Search serves a query in the requested mode. Hybrid fetches 2*topK from
// each side and de-duplicates by stable id, dense hits first. Ingestion
// never calls this; it exists for the retrieval surface.
func (h *HybridStore) Search(ctx context.Context, query string, mode SearchMode, topK int) ([]SearchResult, error) {
	switch mode {
	case SearchDense:
		return h.searchDense(ctx, query, topK)
	case SearchSparse:
		return h.searchSparse(ctx, query, topK)
	case SearchHybrid, "":
		dense, err := h.searchDense(ctx, query, 2*topK)
		if err != nil {
			return nil, err
		}
		sparse, err := h.searchSparse(ctx, query, 2*topK)
		if err != nil {
			return nil, err
		}
		seen := make(map[string]struct{}, len(dense)+len(sparse))
		var out []SearchResult
		for _, r := range append(dense, sparse...) {
			if _, ok := seen[r.ID]; ok {
				continue
			}
			seen[r.ID] = struct{}{}
			out = append(out, r)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("index: unknown search mode %q", mode)
	}
}

func (h *HybridStore) searchDense(ctx context.Context, query string, topK int) ([]SearchResult, error) {
	if !h.cfg.EnableDense {
		return nil, fmt.Errorf("index: dense retrieval disabled")
	}
	vectors, err := h.embedder.EmbedBatch(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("index: embed query: %w", err)
	}
	name := denseVectorName
	return h.search(ctx, &pb.SearchPoints{
		CollectionName: h.cfg.CollectionName,
		Vector:         vectors[0],
		VectorName:     &name,
		Limit:          uint64(topK),
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
	})
}

func (h *HybridStore) searchSparse(ctx context.Context, query string, topK int) ([]SearchResult, error) {
	if !h.cfg.EnableSparse {
		return nil, fmt.Errorf("index: sparse retrieval disabled")
	}
	indices, values := EncodeSparse(query)
	name := sparseVectorName
	return h.search(ctx, &pb.SearchPoints{
		CollectionName: h.cfg.CollectionName,
		Vector:         values,
		SparseIndices:  &pb.SparseIndices{Data: indices},
		VectorName:     &name,
		Limit:          uint64(topK),
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
	})
}

func (h *HybridStore) search(ctx context.Context, req *pb.SearchPoints) ([]SearchResult, error) {
	resp, err := h.points.Search(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("index: search: %w", err)
	}
	results := make([]SearchResult, len(resp.GetResult()))
	for i, r := range resp.GetResult() {
		sr := SearchResult{Score: r.GetScore(), Metadata: make(map[string]string)}
		for k, v := range r.GetPayload() {
			s := v.GetStringValue()
			switch k {
			case "id":
				sr.ID = s
			case "text":
				sr.Text = s
			default:
				sr.Metadata[k] = s
			}
		}
		results[i] = sr
	}
	return results, nil
}
