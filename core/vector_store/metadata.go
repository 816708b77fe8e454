package vector_store

import (
	"github.com/Malowking/finrag/core/common"
	"github.com/Malowking/finrag/pkg/schema"
	"github.com/bytedance/sonic"
	"github.com/gogf/gf/v2/util/gconv"
)

// mergeMetadata 把 JSON 元数据展开到文档元数据中
func mergeMetadata(doc *schema.Document, raw []byte) {
	if len(raw) == 0 {
		return
	}
	var metadata map[string]any
	if err := sonic.Unmarshal(raw, &metadata); err != nil {
		return
	}
	for k, v := range metadata {
		doc.MetaData[k] = v
	}
}

// finalizeDocument 补全 page_content：优先使用正文列，其次使用元数据中的 page_content
func finalizeDocument(doc *schema.Document) {
	if doc.Content == "" {
		if v, ok := doc.MetaData[common.FieldPageContent]; ok && v != nil {
			doc.Content = gconv.String(v)
		}
	}
	delete(doc.MetaData, common.FieldPageContent)
	delete(doc.MetaData, common.FieldContentVector)
}
