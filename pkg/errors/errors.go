package errors

import "errors"

// ErrOptimisticLock 乐观锁冲突：记录已被其他请求修改（version 不匹配）
var ErrOptimisticLock = errors.New("记录已被其他操作修改，请刷新后重试")

// IsOptimisticLock 判断错误链中是否包含乐观锁冲突
func IsOptimisticLock(err error) bool {
	return errors.Is(err, ErrOptimisticLock)
}
