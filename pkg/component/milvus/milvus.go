// Package milvus wraps the Milvus v2 SDK with the collection layout used for
// table-retrieval indexes: an explicit int64 primary key, one float vector
// field and VarChar metadata fields.
package milvus

import (
	"context"
	"fmt"
	"strconv"

	"github.com/milvus-io/milvus/client/v2/column"
	"github.com/milvus-io/milvus/client/v2/entity"
	"github.com/milvus-io/milvus/client/v2/index"
	"github.com/milvus-io/milvus/client/v2/milvusclient"

	milvusopts "github.com/kart-io/qgpt/pkg/options/milvus"
)

const (
	// PrimaryField is the int64 primary key field name.
	PrimaryField = "id"
	// VectorField is the float vector field name.
	VectorField = "vector"
)

// Client wraps the Milvus SDK client bound to one database.
type Client struct {
	client *milvusclient.Client
	opts   *milvusopts.Options
	dbName string
}

// New connects to Milvus. An empty dbName selects the server default database.
func New(ctx context.Context, opts *milvusopts.Options, dbName string) (*Client, error) {
	if opts == nil {
		return nil, fmt.Errorf("milvus options is nil")
	}

	ctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	c, err := milvusclient.New(ctx, &milvusclient.ClientConfig{
		Address:  opts.Address,
		Username: opts.Username,
		Password: opts.Password,
		DBName:   dbName,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to milvus: %w", err)
	}

	return &Client{client: c, opts: opts, dbName: dbName}, nil
}

// Close closes the Milvus client connection.
func (c *Client) Close(ctx context.Context) error {
	return c.client.Close(ctx)
}

// Database returns the database this client is bound to.
func (c *Client) Database() string {
	return c.dbName
}

// ListDatabases lists all databases on the server.
func (c *Client) ListDatabases(ctx context.Context) ([]string, error) {
	dbs, err := c.client.ListDatabase(ctx, milvusclient.NewListDatabaseOption())
	if err != nil {
		return nil, fmt.Errorf("failed to list databases: %w", err)
	}
	return dbs, nil
}

// CreateDatabase creates a database.
func (c *Client) CreateDatabase(ctx context.Context, name string) error {
	if err := c.client.CreateDatabase(ctx, milvusclient.NewCreateDatabaseOption(name)); err != nil {
		return fmt.Errorf("failed to create database %s: %w", name, err)
	}
	return nil
}

// HasCollection reports whether a collection exists.
func (c *Client) HasCollection(ctx context.Context, name string) (bool, error) {
	ok, err := c.client.HasCollection(ctx, milvusclient.NewHasCollectionOption(name))
	if err != nil {
		return false, fmt.Errorf("failed to check collection existence: %w", err)
	}
	return ok, nil
}

// ListCollections lists the collections of the bound database.
func (c *Client) ListCollections(ctx context.Context) ([]string, error) {
	names, err := c.client.ListCollections(ctx, milvusclient.NewListCollectionOption())
	if err != nil {
		return nil, fmt.Errorf("failed to list collections: %w", err)
	}
	return names, nil
}

// CollectionSchema defines the schema for a vector collection.
type CollectionSchema struct {
	Name        string
	Description string
	Dimension   int
	Metric      entity.MetricType
	MetaFields  []MetaField
}

// MetaField defines a metadata field in the collection.
type MetaField struct {
	Name     string
	DataType entity.FieldType
	MaxLen   int // For VARCHAR type
}

// CreateCollection creates the collection, builds an IVF_FLAT index with the
// schema's metric and loads it. An existing collection is left untouched.
func (c *Client) CreateCollection(ctx context.Context, schema *CollectionSchema) error {
	exists, err := c.HasCollection(ctx, schema.Name)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	collSchema := entity.NewSchema().
		WithName(schema.Name).
		WithDescription(schema.Description).
		WithAutoID(false)

	// 主键由调用方指定（语料内的位置序号）
	collSchema.WithField(
		entity.NewField().
			WithName(PrimaryField).
			WithDataType(entity.FieldTypeInt64).
			WithIsPrimaryKey(true).
			WithIsAutoID(false),
	)
	collSchema.WithField(
		entity.NewField().
			WithName(VectorField).
			WithDataType(entity.FieldTypeFloatVector).
			WithDim(int64(schema.Dimension)),
	)
	for _, f := range schema.MetaFields {
		field := entity.NewField().
			WithName(f.Name).
			WithDataType(f.DataType)
		if f.DataType == entity.FieldTypeVarChar && f.MaxLen > 0 {
			field.WithMaxLength(int64(f.MaxLen))
		}
		collSchema.WithField(field)
	}

	if err := c.client.CreateCollection(ctx, milvusclient.NewCreateCollectionOption(schema.Name, collSchema)); err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	idx := index.NewIvfFlatIndex(schema.Metric, c.opts.NList)
	createIdxTask, err := c.client.CreateIndex(ctx, milvusclient.NewCreateIndexOption(schema.Name, VectorField, idx))
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}
	if err := createIdxTask.Await(ctx); err != nil {
		return fmt.Errorf("failed to wait for index creation: %w", err)
	}

	return c.load(ctx, schema.Name)
}

func (c *Client) load(ctx context.Context, name string) error {
	loadTask, err := c.client.LoadCollection(ctx, milvusclient.NewLoadCollectionOption(name))
	if err != nil {
		return fmt.Errorf("failed to load collection: %w", err)
	}
	if err := loadTask.Await(ctx); err != nil {
		return fmt.Errorf("failed to wait for collection loading: %w", err)
	}
	return nil
}

// InsertData is one column-oriented batch. All slices share one length.
type InsertData struct {
	IDs        []int64
	Embeddings [][]float32
	VarChars   map[string][]string
}

// Insert writes one batch and flushes it so it is immediately searchable.
func (c *Client) Insert(ctx context.Context, collectionName string, data *InsertData) (int, error) {
	if len(data.IDs) == 0 {
		return 0, nil
	}
	if len(data.Embeddings) != len(data.IDs) {
		return 0, fmt.Errorf("insert: %d ids but %d vectors", len(data.IDs), len(data.Embeddings))
	}

	columns := make([]column.Column, 0, len(data.VarChars)+2)
	columns = append(columns,
		column.NewColumnInt64(PrimaryField, data.IDs),
		column.NewColumnFloatVector(VectorField, len(data.Embeddings[0]), data.Embeddings),
	)
	for name, values := range data.VarChars {
		columns = append(columns, column.NewColumnVarChar(name, values))
	}

	result, err := c.client.Insert(ctx, milvusclient.NewColumnBasedInsertOption(collectionName, columns...))
	if err != nil {
		return 0, fmt.Errorf("failed to insert data: %w", err)
	}

	flushTask, err := c.client.Flush(ctx, milvusclient.NewFlushOption(collectionName))
	if err != nil {
		return 0, fmt.Errorf("failed to flush collection: %w", err)
	}
	if err := flushTask.Await(ctx); err != nil {
		return 0, fmt.Errorf("failed to wait for flush: %w", err)
	}

	return int(result.InsertCount), nil
}

// SearchResult represents a single search hit. Score is the raw Milvus score
// for the collection metric.
type SearchResult struct {
	ID       int64
	Score    float32
	Metadata map[string]string
}

// Search performs a vector similarity search on a loaded collection.
func (c *Client) Search(ctx context.Context, collectionName string, vector []float32, topK int, outputFields []string) ([]SearchResult, error) {
	if err := c.load(ctx, collectionName); err != nil {
		return nil, err
	}

	results, err := c.client.Search(ctx, milvusclient.NewSearchOption(
		collectionName,
		topK,
		[]entity.Vector{entity.FloatVector(vector)},
	).WithANNSField(VectorField).
		WithSearchParam("nprobe", strconv.Itoa(c.opts.NProbe)).
		WithOutputFields(outputFields...))
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}

	if len(results) == 0 {
		return []SearchResult{}, nil
	}

	rs := results[0]
	hits := make([]SearchResult, 0, rs.ResultCount)
	for i := 0; i < rs.ResultCount; i++ {
		hit := SearchResult{
			Score:    rs.Scores[i],
			Metadata: make(map[string]string, len(outputFields)),
		}
		if idCol, ok := rs.IDs.(*column.ColumnInt64); ok {
			hit.ID = idCol.Data()[i]
		}
		for _, field := range rs.Fields {
			if col, ok := field.(*column.ColumnVarChar); ok {
				hit.Metadata[col.Name()] = col.Data()[i]
			}
		}
		hits = append(hits, hit)
	}

	return hits, nil
}

// DropCollection drops a collection.
func (c *Client) DropCollection(ctx context.Context, collectionName string) error {
	if err := c.client.DropCollection(ctx, milvusclient.NewDropCollectionOption(collectionName)); err != nil {
		return fmt.Errorf("failed to drop collection: %w", err)
	}
	return nil
}

// Count returns the number of entities in a collection.
func (c *Client) Count(ctx context.Context, collectionName string) (int64, error) {
	stats, err := c.client.GetCollectionStats(ctx, milvusclient.NewGetCollectionStatsOption(collectionName))
	if err != nil {
		return 0, fmt.Errorf("failed to get collection stats: %w", err)
	}

	if val, ok := stats["row_count"]; ok {
		return strconv.ParseInt(val, 10, 64)
	}
	return 0, nil
}

// IndexMetric returns the metric recorded on the vector field's index.
func (c *Client) IndexMetric(ctx context.Context, collectionName string) (entity.MetricType, error) {
	desc, err := c.client.DescribeIndex(ctx, milvusclient.NewDescribeIndexOption(collectionName, VectorField))
	if err != nil {
		return "", fmt.Errorf("failed to describe index: %w", err)
	}
	if desc.Index == nil {
		return "", fmt.Errorf("collection %s has no index on %s", collectionName, VectorField)
	}
	return IndexParamsMetric(desc.Params())
}

// IndexParamsMetric reads the metric type from index params.
func IndexParamsMetric(params map[string]string) (entity.MetricType, error) {
	name, ok := params[index.MetricTypeKey]
	if !ok || name == "" {
		return "", fmt.Errorf("index params have no %s", index.MetricTypeKey)
	}
	return ParseMetric(name)
}

// ParseMetric maps a metric name to the SDK metric type.
func ParseMetric(name string) (entity.MetricType, error) {
	switch name {
	case "COSINE", "cosine":
		return entity.COSINE, nil
	case "L2", "l2":
		return entity.L2, nil
	case "IP", "ip":
		return entity.IP, nil
	default:
		return "", fmt.Errorf("unsupported metric %q", name)
	}
}
