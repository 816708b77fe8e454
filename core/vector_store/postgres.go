package vector_store

import (
	"context"
	"fmt"
	"strings"

	"github.com/Malowking/finrag/core/config"
	"github.com/Malowking/finrag/pkg/schema"
	"github.com/gogf/gf/v2/frame/g"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// PostgresIndex 一个命名空间对应 pgvector 中的一张表
type PostgresIndex struct {
	pool  *pgxpool.Pool
	table string // 已清理并带 schema 前缀的表名
}

var _ VectorIndex = (*PostgresIndex)(nil)

// NewPostgresPool 初始化 PostgreSQL 连接池
func NewPostgresPool(ctx context.Context, conf config.PostgresConfig) (*pgxpool.Pool, error) {
	if conf.Host == "" || conf.User == "" || conf.Database == "" {
		return nil, fmt.Errorf("postgres configuration is incomplete. Required: host, user, database")
	}

	g.Log().Infof(ctx, "Connecting to PostgreSQL at: %s:%s, database: %s", conf.Host, conf.Port, conf.Database)

	pool, err := pgxpool.New(ctx, conf.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}
	return pool, nil
}

// NewPostgresIndex 创建表检索器
func NewPostgresIndex(pool *pgxpool.Pool, schemaName, table string) (*PostgresIndex, error) {
	if pool == nil {
		return nil, fmt.Errorf("postgres pool cannot be nil")
	}
	if table == "" {
		return nil, fmt.Errorf("table name cannot be empty")
	}
	return &PostgresIndex{
		pool:  pool,
		table: qualifiedTableName(schemaName, table),
	}, nil
}

// Name 返回表名
func (p *PostgresIndex) Name() string {
	return p.table
}

// Search 按余弦相似度检索 topK 个候选
func (p *PostgresIndex) Search(ctx context.Context, vector []float32, topK int) ([]*schema.Document, error) {
	if len(vector) == 0 {
		return nil, fmt.Errorf("query vector is empty")
	}

	// 余弦距离: 0=相同, 2=相反，转换为相似度: 1=相同, -1=相反
	searchSQL := fmt.Sprintf(`
		SELECT id::text, text, metadata, 1 - (vector <=> $1) AS similarity_score
		FROM %s
		ORDER BY vector <=> $1
		LIMIT $2
	`, p.table)

	rows, err := p.pool.Query(ctx, searchSQL, pgvector.NewVector(vector), topK)
	if err != nil {
		return nil, fmt.Errorf("failed to execute vector search on %s: %w", p.table, err)
	}
	defer rows.Close()

	var results []*schema.Document
	for rows.Next() {
		var (
			id, text      string
			metadataBytes []byte
			score         float64
		)
		if err := rows.Scan(&id, &text, &metadataBytes, &score); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		doc := &schema.Document{
			ID:       id,
			Content:  text,
			MetaData: make(map[string]any),
			Score:    float32(score),
		}
		mergeMetadata(doc, metadataBytes)
		finalizeDocument(doc)
		results = append(results, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over rows: %w", err)
	}

	if results == nil {
		results = []*schema.Document{}
	}
	return results, nil
}

// sanitizeIdentifier 简单的标识符清理：只允许字母、数字和下划线
func sanitizeIdentifier(name string) string {
	var result strings.Builder
	for _, char := range name {
		if (char >= 'a' && char <= 'z') || (char >= 'A' && char <= 'Z') || (char >= '0' && char <= '9') || char == '_' {
			result.WriteRune(char)
		} else {
			result.WriteRune('_')
		}
	}
	return result.String()
}

func qualifiedTableName(schemaName, table string) string {
	if schemaName == "" {
		return sanitizeIdentifier(table)
	}
	return sanitizeIdentifier(schemaName) + "." + sanitizeIdentifier(table)
}
