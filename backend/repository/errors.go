package repository

import "errors"

// 通用仓储错误
var (
	// ErrNotFound 实体不存在
	ErrNotFound = errors.New("entity not found")

	// ErrInvalidData 数据无效
	ErrInvalidData = errors.New("invalid entity data")
)

// Profile 相关错误
var (
	// ErrProfileNotFound 服务器配置不存在
	ErrProfileNotFound = errors.New("profile not found")

	// ErrNameConflict 服务器名称已存在
	ErrNameConflict = errors.New("profile name already exists")

	// ErrLastProfile 拒绝删除最后一个服务器配置
	ErrLastProfile = errors.New("cannot delete the last remaining profile")
)

// 进程相关错误
var (
	// ErrProcessRunning 进程运行期间拒绝的操作（切换配置等）
	ErrProcessRunning = errors.New("proxy process is running")

	// ErrProcessNotRunning 进程未运行
	ErrProcessNotRunning = errors.New("proxy process is not running")
)
