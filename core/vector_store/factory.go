package vector_store

import (
	"context"
	"strings"

	"github.com/Malowking/finrag/core/config"
	"github.com/Malowking/finrag/core/errors"
	"github.com/gogf/gf/v2/frame/g"
)

// NewNamespaceIndexes 根据配置为每个命名空间创建向量索引
// 返回的 closer 用于释放底层连接
func NewNamespaceIndexes(ctx context.Context, conf config.VectorStoreConfig) (NamespaceIndexes, func(), error) {
	g.Log().Infof(ctx, "Initializing vector store with type: %s", conf.Type)

	switch strings.ToLower(conf.Type) {
	case VectorStoreTypeMilvus:
		if len(conf.Milvus.Collections) == 0 {
			return nil, nil, errors.New(errors.ErrVectorStoreInit, "milvus.collections must map at least one namespace")
		}
		client, err := NewMilvusClient(ctx, conf.Milvus)
		if err != nil {
			return nil, nil, errors.Wrap(errors.ErrVectorStoreInit, err, "failed to initialize Milvus vector store")
		}
		indexes := make(NamespaceIndexes, len(conf.Milvus.Collections))
		for namespace, collection := range conf.Milvus.Collections {
			idx, err := NewMilvusIndex(client, collection, conf.Milvus.VectorField)
			if err != nil {
				_ = client.Close(ctx)
				return nil, nil, errors.Wrapf(errors.ErrVectorStoreInit, err, "namespace %s", namespace)
			}
			indexes[namespace] = idx
		}
		g.Log().Infof(ctx, "Milvus vector store initialized successfully, namespaces: %v", conf.Milvus.Collections)
		return indexes, func() { _ = client.Close(context.Background()) }, nil

	case VectorStoreTypePostgreSQL, "postgres", "postgresql":
		if len(conf.Postgres.Tables) == 0 {
			return nil, nil, errors.New(errors.ErrVectorStoreInit, "postgres.tables must map at least one namespace")
		}
		pool, err := NewPostgresPool(ctx, conf.Postgres)
		if err != nil {
			return nil, nil, errors.Wrap(errors.ErrVectorStoreInit, err, "failed to initialize PostgreSQL vector store")
		}
		indexes := make(NamespaceIndexes, len(conf.Postgres.Tables))
		for namespace, table := range conf.Postgres.Tables {
			idx, err := NewPostgresIndex(pool, conf.Postgres.Schema, table)
			if err != nil {
				pool.Close()
				return nil, nil, errors.Wrapf(errors.ErrVectorStoreInit, err, "namespace %s", namespace)
			}
			indexes[namespace] = idx
		}
		g.Log().Infof(ctx, "PostgreSQL vector store initialized successfully, namespaces: %v", conf.Postgres.Tables)
		return indexes, pool.Close, nil

	default:
		return nil, nil, errors.Newf(errors.ErrInvalidParameter, "unsupported vector database type: %s. Supported types: milvus, pgvector", conf.Type)
	}
}
