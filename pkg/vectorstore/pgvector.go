package vectorstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/pgvector/pgvector-go"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PgVectorCollection records a logical collection and its dimension.
type PgVectorCollection struct {
	Name      string         `gorm:"type:varchar(63);primaryKey"`
	Dimension int            `gorm:"not null"`
	Metadata  datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt time.Time      `gorm:"autoCreateTime"`
}

func (PgVectorCollection) TableName() string {
	return "vector_collections"
}

// PgVectorEmbedding stores every vector of every collection. The embedding
// column is dimensionless; each collection gets its own partial index with a
// dimension cast.
type PgVectorEmbedding struct {
	Collection string          `gorm:"type:varchar(63);primaryKey"`
	VectorID   string          `gorm:"type:varchar(64);primaryKey"`
	Embedding  pgvector.Vector `gorm:"type:vector"`
	Metadata   datatypes.JSON  `gorm:"type:jsonb"`
	CreatedAt  time.Time       `gorm:"autoCreateTime"`
	UpdatedAt  time.Time       `gorm:"autoUpdateTime"`
}

func (PgVectorEmbedding) TableName() string {
	return "vector_embeddings"
}

// PgVectorConfig configures the pgvector adapter.
type PgVectorConfig struct {
	// IndexMethod is "hnsw" (default) or "ivfflat".
	IndexMethod string
}

// PgVectorStore keeps vectors in Postgres through gorm.
type PgVectorStore struct {
	db          *gorm.DB
	indexMethod string
}

var _ Store = (*PgVectorStore)(nil)

func NewPgVectorStore(db *gorm.DB, cfg PgVectorConfig) *PgVectorStore {
	method := strings.ToLower(strings.TrimSpace(cfg.IndexMethod))
	if method != "ivfflat" {
		method = "hnsw"
	}
	return &PgVectorStore{db: db, indexMethod: method}
}

// Migrate creates the extension and the backing tables.
func (s *PgVectorStore) Migrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).Exec("CREATE EXTENSION IF NOT EXISTS vector").Error; err != nil {
		return opErr("migrate", OperationErrorQueryFailed, "create vector extension failed", err)
	}
	if err := s.db.WithContext(ctx).AutoMigrate(&PgVectorCollection{}, &PgVectorEmbedding{}); err != nil {
		return opErr("migrate", OperationErrorQueryFailed, "auto migrate failed", err)
	}
	return nil
}

func (s *PgVectorStore) CollectionExists(ctx context.Context, name string) (bool, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&PgVectorCollection{}).Where("name = ?", name).Count(&count).Error; err != nil {
		return false, opErr("collection_exists", OperationErrorQueryFailed, "count collections failed", err)
	}
	return count > 0, nil
}

func (s *PgVectorStore) CreateCollection(ctx context.Context, name string, dimension int, metadata map[string]any) error {
	if dimension <= 0 {
		return opErr("create_collection", OperationErrorValidation, "dimension must be positive", nil)
	}
	raw, err := json.Marshal(metadata)
	if err != nil {
		return opErr("create_collection", OperationErrorEncodeFailed, "encode metadata failed", err)
	}
	col := PgVectorCollection{Name: name, Dimension: dimension, Metadata: datatypes.JSON(raw)}
	if err := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&col).Error; err != nil {
		return opErr("create_collection", OperationErrorQueryFailed, "insert collection failed", err)
	}
	return s.createIndex(ctx, name, dimension)
}

func (s *PgVectorStore) createIndex(ctx context.Context, name string, dimension int) error {
	index := indexName(name)
	stmt := fmt.Sprintf(
		"CREATE INDEX IF NOT EXISTS %s ON vector_embeddings USING %s ((embedding::vector(%d)) vector_cosine_ops) WHERE collection = '%s'",
		index, s.indexMethod, dimension, name,
	)
	if err := s.db.WithContext(ctx).Exec(stmt).Error; err != nil {
		return opErr("create_index", OperationErrorQueryFailed, "create vector index failed", err)
	}
	return nil
}

func (s *PgVectorStore) DeleteCollection(ctx context.Context, name string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec("DROP INDEX IF EXISTS " + indexName(name)).Error; err != nil {
			return opErr("delete_collection", OperationErrorQueryFailed, "drop index failed", err)
		}
		if err := tx.Where("collection = ?", name).Delete(&PgVectorEmbedding{}).Error; err != nil {
			return opErr("delete_collection", OperationErrorQueryFailed, "delete embeddings failed", err)
		}
		if err := tx.Where("name = ?", name).Delete(&PgVectorCollection{}).Error; err != nil {
			return opErr("delete_collection", OperationErrorQueryFailed, "delete collection failed", err)
		}
		return nil
	})
}

func (s *PgVectorStore) ListCollections(ctx context.Context) ([]string, error) {
	var names []string
	if err := s.db.WithContext(ctx).Model(&PgVectorCollection{}).Order("name").Pluck("name", &names).Error; err != nil {
		return nil, opErr("list_collections", OperationErrorQueryFailed, "list collections failed", err)
	}
	return names, nil
}

func (s *PgVectorStore) InsertVectors(ctx context.Context, name string, vectors [][]float32, metadata []map[string]any, ids []string) ([]string, error) {
	if err := validateInsert("insert_vectors", vectors, metadata, ids); err != nil {
		return nil, err
	}

	var col PgVectorCollection
	err := s.db.WithContext(ctx).Where("name = ?", name).First(&col).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, opErr("insert_vectors", OperationErrorCollectionNotFound, "collection "+name+" does not exist", nil)
	}
	if err != nil {
		return nil, opErr("insert_vectors", OperationErrorQueryFailed, "load collection failed", err)
	}

	rows := make([]PgVectorEmbedding, len(ids))
	for i, id := range ids {
		if len(vectors[i]) != col.Dimension {
			return nil, opErr("insert_vectors", OperationErrorValidation, fmt.Sprintf("vector %s has dimension %d, collection expects %d", id, len(vectors[i]), col.Dimension), nil)
		}
		raw, err := json.Marshal(metadataAt(metadata, i))
		if err != nil {
			return nil, opErr("insert_vectors", OperationErrorEncodeFailed, "encode metadata failed", err)
		}
		rows[i] = PgVectorEmbedding{
			Collection: name,
			VectorID:   id,
			Embedding:  pgvector.NewVector(vectors[i]),
			Metadata:   datatypes.JSON(raw),
		}
	}

	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "collection"}, {Name: "vector_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"embedding", "metadata", "updated_at"}),
	}).Create(&rows).Error
	if err != nil {
		return nil, opErr("insert_vectors", OperationErrorQueryFailed, "upsert embeddings failed", err)
	}
	return ids, nil
}

func (s *PgVectorStore) DeleteVectors(ctx context.Context, name string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	err := s.db.WithContext(ctx).Where("collection = ? AND vector_id IN ?", name, ids).Delete(&PgVectorEmbedding{}).Error
	if err != nil {
		return opErr("delete_vectors", OperationErrorQueryFailed, "delete embeddings failed", err)
	}
	return nil
}

type pgvectorRow struct {
	VectorID string
	Score    float64
	Metadata datatypes.JSON
}

func (s *PgVectorStore) SearchVectors(ctx context.Context, name string, query Query) ([]Result, error) {
	cond, err := ParseFilter(query.Filter)
	if err != nil {
		return nil, err
	}

	var col PgVectorCollection
	err = s.db.WithContext(ctx).Where("name = ?", name).First(&col).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return []Result{}, nil
	}
	if err != nil {
		return nil, opErr("search_vectors", OperationErrorQueryFailed, "load collection failed", err)
	}
	if len(query.Vector) != col.Dimension {
		return nil, opErr("search_vectors", OperationErrorValidation, fmt.Sprintf("query has dimension %d, collection expects %d", len(query.Vector), col.Dimension), nil)
	}

	limit := query.Limit
	if limit <= 0 {
		limit = 10
	}

	distance := fmt.Sprintf("(embedding::vector(%d)) <=> ?::vector(%d)", col.Dimension, col.Dimension)
	vec := pgvector.NewVector(query.Vector)

	sql := strings.Builder{}
	args := []any{vec, name, vec, query.MinSimilarity}
	sql.WriteString("SELECT vector_id, 1 - (" + distance + ") AS score, metadata FROM vector_embeddings")
	sql.WriteString(" WHERE collection = ? AND 1 - (" + distance + ") >= ?")
	if cond != nil {
		where, whereArgs := pgvectorWhere(*cond)
		sql.WriteString(" AND " + where)
		args = append(args, whereArgs...)
	}
	sql.WriteString(" ORDER BY score DESC, vector_id DESC LIMIT ? OFFSET ?")
	args = append(args, limit, query.Offset)

	var rows []pgvectorRow
	if err := s.db.WithContext(ctx).Raw(sql.String(), args...).Scan(&rows).Error; err != nil {
		return nil, opErr("search_vectors", OperationErrorQueryFailed, "vector search failed", err)
	}

	results := make([]Result, 0, len(rows))
	for _, r := range rows {
		meta := map[string]any{}
		if len(r.Metadata) > 0 {
			_ = json.Unmarshal(r.Metadata, &meta)
		}
		results = append(results, Result{ID: r.VectorID, Score: clampScore(r.Score), Metadata: meta})
	}
	return results, nil
}

var nonIdent = regexp.MustCompile(`[^a-z0-9_]`)

func indexName(collection string) string {
	name := "vector_embeddings_" + nonIdent.ReplaceAllString(collection, "_") + "_idx"
	if len(name) > 63 {
		name = name[:63]
	}
	return name
}

// pgvectorWhere renders a condition as a parameterized SQL fragment over the
// jsonb metadata column. Equality uses containment so types are preserved.
func pgvectorWhere(c Condition) (string, []any) {
	switch c.Op {
	case FilterAnd, FilterOr:
		joiner := " AND "
		if c.Op == FilterOr {
			joiner = " OR "
		}
		parts := make([]string, 0, len(c.Children))
		var args []any
		for _, child := range c.Children {
			p, a := pgvectorWhere(child)
			parts = append(parts, p)
			args = append(args, a...)
		}
		return "(" + strings.Join(parts, joiner) + ")", args
	case FilterNot:
		p, a := pgvectorWhere(c.Children[0])
		return "NOT " + p, a
	case FilterEq:
		return "(metadata @> ?::jsonb)", []any{containment(c.Field, c.Value)}
	case FilterNe:
		return "NOT (metadata @> ?::jsonb)", []any{containment(c.Field, c.Value)}
	case FilterIn, FilterNin:
		items := c.Value.([]any)
		if len(items) == 0 {
			if c.Op == FilterIn {
				return "(FALSE)", nil
			}
			return "(TRUE)", nil
		}
		parts := make([]string, len(items))
		args := make([]any, len(items))
		for i, v := range items {
			parts[i] = "metadata @> ?::jsonb"
			args[i] = containment(c.Field, v)
		}
		expr := "(" + strings.Join(parts, " OR ") + ")"
		if c.Op == FilterNin {
			expr = "NOT " + expr
		}
		return expr, args
	default:
		op := map[string]string{FilterGt: ">", FilterGte: ">=", FilterLt: "<", FilterLte: "<="}[c.Op]
		return "((jsonb_extract_path_text(metadata, ?))::numeric " + op + " ?)", []any{c.Field, c.Value}
	}
}

func containment(field string, value any) string {
	raw, _ := json.Marshal(map[string]any{field: value})
	return string(raw)
}
