package zoho

import (
	"errors"
	"fmt"
)

var (
	ErrNotConnected        = errors.New("当前组织尚未连接 Zoho People")
	ErrRefreshFailed       = errors.New("Zoho access token 刷新失败")
	ErrAuthFailed          = errors.New("Zoho 授权已失效，请重新连接")
	ErrExchangeFailed      = errors.New("Zoho 授权码换取 token 失败")
	ErrMissingRefreshToken = errors.New("Zoho 未返回 refresh token")
	ErrUpstreamUnavailable = errors.New("Zoho 服务暂不可用")
	ErrInvalidDate         = errors.New("日期格式无效，应为 yyyy-mm-dd 或 dd-MMM-yyyy")
)

// UpstreamError Zoho 返回非 2xx 时携带远端状态码与（截断后的）响应体
type UpstreamError struct {
	Status int
	Body   string
	Err    error
}

func (e *UpstreamError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("zoho upstream %d: %v", e.Status, e.Err)
	}
	return fmt.Sprintf("zoho upstream %d", e.Status)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

const maxErrorBody = 2048

func truncateBody(b []byte) string {
	if len(b) > maxErrorBody {
		return string(b[:maxErrorBody]) + "…"
	}
	return string(b)
}
