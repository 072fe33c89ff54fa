package errors

// 通用错误，所有命令与接口共用。
var (
	OK              = MustDefine(ServiceCommon, CategorySuccess, 0, "Success", "成功")
	ErrBadRequest   = MustDefine(ServiceCommon, CategoryRequest, 0, "Bad request", "请求错误")
	ErrInvalidParam = MustDefine(ServiceCommon, CategoryRequest, 1, "Invalid parameter", "参数无效")
	ErrInternal     = MustDefine(ServiceCommon, CategoryInternal, 0, "Internal server error", "服务器内部错误")
)

// qgpt error codes, service 21.
//
// Configuration errors abort the current corpus or query and are never
// retried. Validation errors fail one corpus build. Partial writes leave the
// collection populated up to the reported count.
var (
	// 请求/校验错误 (类别 01)
	ErrCorpusInvalid   = MustDefine(ServiceQGPT, CategoryRequest, 1, "Corpus validation failed", "语料库校验失败")
	ErrTestFileInvalid = MustDefine(ServiceQGPT, CategoryRequest, 2, "Invalid test file", "测试文件无效")
	ErrAmbiguousTarget = MustDefine(ServiceQGPT, CategoryRequest, 3, "Target database must be given explicitly", "必须显式指定目标数据库")

	// 资源错误 (类别 04)
	ErrDatabaseNotFound   = MustDefine(ServiceQGPT, CategoryResource, 1, "Database not found", "数据库不存在")
	ErrCollectionNotFound = MustDefine(ServiceQGPT, CategoryResource, 2, "Collection not found", "集合不存在")
	ErrCorpusNotFound     = MustDefine(ServiceQGPT, CategoryResource, 3, "Corpus file not found", "语料库文件不存在")

	// 冲突错误 (类别 05)
	ErrIdentityCollision = MustDefine(ServiceQGPT, CategoryConflict, 1, "Corpus identity collides with another corpus", "语料库标识与其他语料库冲突")

	// 存储错误 (类别 08)
	ErrPartialWrite = MustDefine(ServiceQGPT, CategoryDatabase, 1, "Bulk insert stopped partway", "批量写入中途失败")
	ErrStoreFailed  = MustDefine(ServiceQGPT, CategoryDatabase, 2, "Vector store operation failed", "向量存储操作失败")

	// 网络错误 (类别 10)
	ErrEmbeddingFailed = MustDefine(ServiceQGPT, CategoryNetwork, 1, "Embedding request failed", "向量嵌入请求失败")

	// 配置错误 (类别 12)
	ErrQGPTConfig        = MustDefine(ServiceQGPT, CategoryConfig, 1, "Invalid pipeline configuration", "流水线配置无效")
	ErrIdentityTooLong   = MustDefine(ServiceQGPT, CategoryConfig, 2, "Generated identifier exceeds store limit", "生成的标识超过存储长度限制")
	ErrDimensionMismatch = MustDefine(ServiceQGPT, CategoryConfig, 3, "Embedding dimension mismatch", "向量维度不匹配")
)
