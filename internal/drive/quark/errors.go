package quark

import (
	"encoding/json"

	"github.com/ypsync/ypsync/internal/drive"
)

// apiError maps a Quark response code to a classified error. code 0 is
// success.
func apiError(op string, code int, message string) error {
	if code == 0 {
		return nil
	}

	var sentinel error

	switch code {
	case 11001, 14001:
		sentinel = drive.ErrAuth
	case 32003:
		sentinel = drive.ErrNotFound
	case 31001:
		sentinel = drive.ErrQuotaExceeded
	case 41013:
		sentinel = drive.ErrConflict
	default:
		sentinel = drive.ErrUnknown
	}

	if message == "" {
		message = "未知错误"
	}

	return drive.NewError(providerType, op, code, message, sentinel)
}

// decode unmarshals a response payload; garbage from the provider counts as
// a network failure.
func decode(op string, payload []byte, v any) error {
	if err := json.Unmarshal(payload, v); err != nil {
		return drive.NewError(providerType, op, 6, "decoding response: "+err.Error(), drive.ErrNetwork)
	}

	return nil
}
