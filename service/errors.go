package service

import "errors"

// 错误分类（API 层按此映射响应码）：
//   - ErrInvalidState / ErrPrecondition → 客户端可纠正（400）
//   - models.ErrNotFound → 404
//   - ErrExternal / ErrMissingFile → 服务端失败（500）
//   - "还在生成中"不是错误，用 CheckResult 的状态表达
var (
	// ErrInvalidState 当前状态不允许请求的状态迁移
	ErrInvalidState = errors.New("invalid state transition")
	// ErrPrecondition 缺少必需的前置条件（首帧、音频样本等）
	ErrPrecondition = errors.New("precondition not met")
	// ErrExternal 外部生成能力调用失败
	ErrExternal = errors.New("external generation failure")
	// ErrMissingFile 期望存在的本地媒体文件缺失
	ErrMissingFile = errors.New("media file missing")
)
