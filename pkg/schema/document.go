package schema

import "github.com/gogf/gf/v2/util/gconv"

// Document 表示检索到的文档片段
type Document struct {
	// ID 文档唯一标识
	ID string `json:"id,omitempty"`
	// Content 文档内容（page_content）
	Content string `json:"content"`
	// MetaData 命名空间相关的元数据（净值、收益率、标题、日期等）
	MetaData map[string]interface{} `json:"metadata,omitempty"`
	// Score 向量检索相似度 - 使用float32以直接与向量库兼容
	Score float32 `json:"score"`
	// LexicalScore BM25 预筛选得分，仅在词法重排后存在
	LexicalScore *float64 `json:"lexical_score,omitempty"`
	// RerankScore 语义重排得分，仅在语义重排后存在
	RerankScore *float64 `json:"rerank_score,omitempty"`
	// Sources 上下文压缩后附带的去重来源
	Sources []Source `json:"sources,omitempty"`
}

// Source 引用来源描述
type Source struct {
	SourceName  string `json:"source_name,omitempty"`
	SourceURL   string `json:"source_url,omitempty"`
	Article     string `json:"article,omitempty"`
	SourceFile  string `json:"source_file,omitempty"`
	SourceType  string `json:"source_type,omitempty"`
	LastUpdated string `json:"last_updated,omitempty"`
}

// Key 去重键：优先 source_url，其次 source_file
func (s Source) Key() string {
	if s.SourceURL != "" {
		return s.SourceURL
	}
	return s.SourceFile
}

// IsEmpty 所有字段都为空
func (s Source) IsEmpty() bool {
	return s == Source{}
}

// SourceFromMetadata 从文档元数据中提取来源字段
func SourceFromMetadata(meta map[string]interface{}) Source {
	get := func(key string) string {
		if v, ok := meta[key]; ok && v != nil {
			return gconv.String(v)
		}
		return ""
	}
	return Source{
		SourceName:  get("source_name"),
		SourceURL:   get("source_url"),
		Article:     get("article"),
		SourceFile:  get("source_file"),
		SourceType:  get("source_type"),
		LastUpdated: get("last_updated"),
	}
}

// Clone 深拷贝文档，元数据按浅层复制
func (d *Document) Clone() *Document {
	if d == nil {
		return nil
	}
	cp := *d
	if d.MetaData != nil {
		cp.MetaData = make(map[string]interface{}, len(d.MetaData))
		for k, v := range d.MetaData {
			cp.MetaData[k] = v
		}
	}
	if d.LexicalScore != nil {
		v := *d.LexicalScore
		cp.LexicalScore = &v
	}
	if d.RerankScore != nil {
		v := *d.RerankScore
		cp.RerankScore = &v
	}
	if d.Sources != nil {
		cp.Sources = append([]Source(nil), d.Sources...)
	}
	return &cp
}
