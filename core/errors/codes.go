package errors

// ErrCode 业务错误码类型
type ErrCode int

const (
	// 通用错误 1000-1999
	ErrInvalidParameter ErrCode = 1001 // 参数错误
	ErrInternalError    ErrCode = 1003 // 内部错误
	ErrOperationFailed  ErrCode = 1006 // 操作失败
	ErrConfigInvalid    ErrCode = 1007 // 配置无效

	// 模型相关 2000-2999
	ErrModelConfigInvalid ErrCode = 2002 // 模型配置无效
	ErrEmbeddingFailed    ErrCode = 2003 // Embedding失败
	ErrLLMCallFailed      ErrCode = 2004 // LLM调用失败
	ErrModelNotConfigured ErrCode = 2005 // 模型未配置
	ErrRerankFailed       ErrCode = 2006 // Rerank失败
	ErrStreamingFailed    ErrCode = 2007 // 流式响应失败
	ErrEmptyCompletion    ErrCode = 2008 // 模型返回空内容

	// 向量数据库 5000-5999
	ErrVectorStoreInit     ErrCode = 5001 // 向量库初始化失败
	ErrVectorSearch        ErrCode = 5002 // 向量搜索失败
	ErrVectorStoreNotFound ErrCode = 5005 // 向量库不存在

	// 查询改写 9000-9999
	ErrRewriteFailed ErrCode = 9002 // 查询重写失败
	ErrExpandFailed  ErrCode = 9003 // 查询扩展失败

	// 推理工作流 10000-10999
	ErrPlanFailed         ErrCode = 10001 // 计划生成失败
	ErrStepFailed         ErrCode = 10002 // 步骤查询生成失败
	ErrClassifyFailed     ErrCode = 10003 // 命名空间分类失败
	ErrCondenseFailed     ErrCode = 10004 // 上下文压缩失败
	ErrGenerateFailed     ErrCode = 10005 // 答案生成失败
	ErrSummarizeFailed    ErrCode = 10006 // 最终总结失败
	ErrIterationCeiling   ErrCode = 10007 // 超过最大迭代次数
	ErrInvariantViolation ErrCode = 10008 // 运行状态不变量被破坏
	ErrRunCancelled       ErrCode = 10009 // 运行被取消
	ErrRunNotFound        ErrCode = 10010 // 运行不存在
	ErrRunAlreadyActive   ErrCode = 10011 // 同一会话已有运行中的任务
	ErrWorkflowBuild      ErrCode = 10012 // 工作流编译失败
)

// IsFatal 致命错误会终止整个运行
func (e ErrCode) IsFatal() bool {
	switch e {
	case ErrIterationCeiling, ErrInvariantViolation, ErrRunCancelled:
		return true
	}
	return false
}

// HTTPStatusCode 返回错误码对应的HTTP状态码
func (e ErrCode) HTTPStatusCode() int {
	switch {
	case e >= 1001 && e <= 1999:
		// 通用错误
		switch e {
		case ErrInvalidParameter:
			return 400
		default:
			return 500
		}
	case e >= 2000 && e <= 2999:
		// 模型相关错误
		return 502
	case e >= 10000 && e <= 10999:
		switch e {
		case ErrRunNotFound:
			return 404
		case ErrRunAlreadyActive:
			return 409
		case ErrRunCancelled:
			return 499
		default:
			return 500
		}
	default:
		return 500
	}
}
