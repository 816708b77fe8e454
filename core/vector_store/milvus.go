package vector_store

import (
	"context"
	"fmt"

	"github.com/Malowking/finrag/core/common"
	"github.com/Malowking/finrag/core/config"
	"github.com/Malowking/finrag/pkg/schema"
	"github.com/gogf/gf/v2/frame/g"
	"github.com/milvus-io/milvus/client/v2/column"
	"github.com/milvus-io/milvus/client/v2/entity"
	"github.com/milvus-io/milvus/client/v2/milvusclient"
)

// MilvusIndex 一个命名空间对应一个 Milvus 集合
type MilvusIndex struct {
	client      *milvusclient.Client
	collection  string
	vectorField string
}

var _ VectorIndex = (*MilvusIndex)(nil)

// NewMilvusClient 创建 Milvus 客户端
func NewMilvusClient(ctx context.Context, conf config.MilvusConfig) (*milvusclient.Client, error) {
	if conf.Address == "" {
		return nil, fmt.Errorf("milvus.address is required but not found in config file. Please check your config.yaml file and ensure milvus.address is properly set")
	}

	g.Log().Infof(ctx, "Connecting to Milvus at: %s, database: %s", conf.Address, conf.Database)

	client, err := milvusclient.New(ctx, &milvusclient.ClientConfig{
		Address:  conf.Address,
		Username: conf.Username,
		Password: conf.Password,
		DBName:   conf.Database,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create milvus client (address: %s, database: %s): %w", conf.Address, conf.Database, err)
	}
	return client, nil
}

// NewMilvusIndex 创建集合检索器
func NewMilvusIndex(client *milvusclient.Client, collection, vectorField string) (*MilvusIndex, error) {
	if client == nil {
		return nil, fmt.Errorf("milvus client cannot be nil")
	}
	if collection == "" {
		return nil, fmt.Errorf("collection name cannot be empty")
	}
	if vectorField == "" {
		vectorField = common.FieldContentVector
	}
	return &MilvusIndex{
		client:      client,
		collection:  collection,
		vectorField: vectorField,
	}, nil
}

// Name 返回集合名
func (m *MilvusIndex) Name() string {
	return m.collection
}

// Search 按向量检索 topK 个候选
func (m *MilvusIndex) Search(ctx context.Context, vector []float32, topK int) ([]*schema.Document, error) {
	if len(vector) == 0 {
		return nil, fmt.Errorf("query vector is empty")
	}

	searchOpt := milvusclient.NewSearchOption(m.collection, topK, []entity.Vector{entity.FloatVector(vector)}).
		WithANNSField(m.vectorField).
		WithOutputFields(common.FieldID, common.FieldContent, common.FieldMetadata).
		WithConsistencyLevel(entity.ClBounded)

	results, err := m.client.Search(ctx, searchOpt)
	if err != nil {
		return nil, fmt.Errorf("search collection %s has error: %w", m.collection, err)
	}
	if len(results) == 0 {
		return []*schema.Document{}, nil
	}

	return convertColumnsToDocuments(results[0].Fields, results[0].Scores)
}

// convertColumnsToDocuments 转换搜索结果为文档
func convertColumnsToDocuments(columns []column.Column, scores []float32) ([]*schema.Document, error) {
	if len(columns) == 0 {
		return []*schema.Document{}, nil
	}

	numDocs := columns[0].Len()
	result := make([]*schema.Document, numDocs)
	for i := range result {
		result[i] = &schema.Document{
			MetaData: make(map[string]any),
		}
		if i < len(scores) {
			result[i].Score = scores[i]
		}
	}

	for _, col := range columns {
		for i := 0; i < col.Len() && i < numDocs; i++ {
			val, err := col.Get(i)
			if err != nil {
				if col.Name() == common.FieldID {
					return nil, fmt.Errorf("failed to get id: %w", err)
				}
				continue
			}
			if val == nil {
				continue
			}

			switch col.Name() {
			case common.FieldID:
				result[i].ID = fmt.Sprint(val)
			case common.FieldContent:
				if str, ok := val.(string); ok {
					result[i].Content = str
				}
			case common.FieldMetadata:
				switch v := val.(type) {
				case []byte:
					mergeMetadata(result[i], v)
				case string:
					mergeMetadata(result[i], []byte(v))
				}
			case common.FieldContentVector:
				// 不返回原始向量
			default:
				result[i].MetaData[col.Name()] = val
			}
		}
	}

	for _, doc := range result {
		finalizeDocument(doc)
	}
	return result, nil
}
