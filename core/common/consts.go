package common

// 向量索引列名，Milvus 集合与 pgvector 表共用
const (
	FieldID            = "id"
	FieldContent       = "text"
	FieldContentVector = "vector"
	FieldMetadata      = "metadata"
	FieldPageContent   = "page_content"
)
