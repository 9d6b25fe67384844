package util

const (
	// ContextUserKey gin.Context 中保存 JWT Claims 的键
	ContextUserKey = "user"
)
