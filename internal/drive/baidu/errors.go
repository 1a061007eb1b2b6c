package baidu

import (
	"encoding/json"
	"fmt"

	"github.com/ypsync/ypsync/internal/drive"
)

// apiError maps a Baidu errno to a classified error. errno 0 is success.
func apiError(op string, errno int, message string) error {
	if errno == 0 {
		return nil
	}

	var sentinel error

	switch errno {
	case -6, -62:
		sentinel = drive.ErrAuth
	case -9:
		sentinel = drive.ErrNotFound
	case -7, 105:
		sentinel = drive.ErrPathInvalid
	case 111:
		sentinel = drive.ErrConflict
	case -10, -32:
		sentinel = drive.ErrQuotaExceeded
	case -33:
		sentinel = drive.ErrBatchLimit
	case 4, 12, 120, 130:
		sentinel = drive.ErrTransferFailed
	case 31034:
		sentinel = drive.ErrRateLimit
	case 31066:
		sentinel = drive.ErrDeleteFailed
	default:
		sentinel = drive.ErrUnknown
	}

	if message == "" {
		message = errnoText(errno)
	}

	return drive.NewError(providerType, op, errno, message, sentinel)
}

// errnoText supplies the provider's message for the errnos it never sends
// one for.
func errnoText(errno int) string {
	switch errno {
	case -6:
		return "身份验证失败"
	case -9:
		return "文件或目录不存在"
	case -10, -32:
		return "剩余空间不足，无法转存"
	case -33:
		return "一次支持操作999个，减点试试吧"
	case 12:
		return "部分文件已存在"
	case 111:
		return "存在未完成的任务"
	case 120, 130:
		return "转存文件数超限"
	case 31034:
		return "接口请求过于频繁"
	case 31066:
		return "文件不存在"
	default:
		return fmt.Sprintf("errno %d", errno)
	}
}

// decode unmarshals a response payload; garbage from the provider counts as
// a network failure.
func decode(op string, payload []byte, v any) error {
	if err := json.Unmarshal(payload, v); err != nil {
		return drive.NewError(providerType, op, 6, "decoding response: "+err.Error(), drive.ErrNetwork)
	}

	return nil
}
