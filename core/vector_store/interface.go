package vector_store

import (
	"context"

	"github.com/Malowking/finrag/pkg/schema"
)

// 向量库类型
const (
	VectorStoreTypeMilvus     = "milvus"
	VectorStoreTypePostgreSQL = "pgvector"
)

// VectorIndex 单个命名空间的向量索引
// Search 返回按相似度降序排列的候选，Score 为余弦相似度，不返回原始向量
type VectorIndex interface {
	Search(ctx context.Context, vector []float32, topK int) ([]*schema.Document, error)
	Name() string
}

// NamespaceIndexes 命名空间到向量索引的映射
type NamespaceIndexes map[string]VectorIndex

// Lookup 查找命名空间对应的索引，未映射时使用 fallback
func (n NamespaceIndexes) Lookup(namespace, fallback string) (VectorIndex, string, bool) {
	if idx, ok := n[namespace]; ok && idx != nil {
		return idx, namespace, true
	}
	if idx, ok := n[fallback]; ok && idx != nil {
		return idx, fallback, true
	}
	return nil, "", false
}
