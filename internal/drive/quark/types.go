package quark

import (
	"time"

	"github.com/ypsync/ypsync/internal/drive"
)

// envelope is the common response frame. Code 0 means success; Message
// carries the provider's reason otherwise.
type envelope struct {
	Status  int    `json:"status"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// quarkFile is one entry as the sort and sharepage endpoints report it.
// Timestamps are epoch milliseconds.
type quarkFile struct {
	Fid           string `json:"fid"`
	FileName      string `json:"file_name"`
	PdirFid       string `json:"pdir_fid"`
	Dir           bool   `json:"dir"`
	Size          int64  `json:"size"`
	CreatedAt     int64  `json:"created_at"`
	UpdatedAt     int64  `json:"updated_at"`
	ShareFidToken string `json:"share_fid_token"`
}

func (q *quarkFile) toFileInfo(parentID string) *drive.FileInfo {
	return &drive.FileInfo{
		FileID:    q.Fid,
		FileName:  q.FileName,
		IsFolder:  q.Dir,
		FileSize:  q.Size,
		ParentID:  parentID,
		CreatedAt: time.UnixMilli(q.CreatedAt),
		UpdatedAt: time.UnixMilli(q.UpdatedAt),
	}
}

type listResponse struct {
	envelope
	Data struct {
		List []quarkFile `json:"list"`
	} `json:"data"`
}

type shareDetailListResponse struct {
	envelope
	Data struct {
		List []quarkFile `json:"list"`
	} `json:"data"`
}

type mkdirResponse struct {
	envelope
	Data struct {
		Fid string `json:"fid"`
	} `json:"data"`
}

type taskIDResponse struct {
	envelope
	Data struct {
		TaskID string `json:"task_id"`
	} `json:"data"`
}

type taskResponse struct {
	envelope
	Data struct {
		TaskID  string `json:"task_id"`
		Status  int    `json:"status"`
		ShareID string `json:"share_id"`
	} `json:"data"`
}

type shareTokenResponse struct {
	envelope
	Data struct {
		Stoken string `json:"stoken"`
	} `json:"data"`
}

type sharePasswordResponse struct {
	envelope
	Data shareItem `json:"data"`
}

// shareItem is one share as the mypage and password endpoints report it.
// ExpiredType here is the provider enum (1 permanent, 2 one day, 3 seven
// days, 4 thirty days), not the normalized day count.
type shareItem struct {
	ShareID     string `json:"share_id"`
	Title       string `json:"title"`
	PwdID       string `json:"pwd_id"`
	ShareURL    string `json:"share_url"`
	Passcode    string `json:"passcode"`
	ExpiredType int    `json:"expired_type"`
	ExpiredAt   int64  `json:"expired_at"`
	Status      int    `json:"status"`
	ClickPv     int    `json:"click_pv"`
	AuditStatus int    `json:"audit_status"`
	FirstFid    string `json:"first_fid"`
	Size        int64  `json:"size"`
	PathInfo    string `json:"path_info"`
}

type sharePageResponse struct {
	envelope
	Data struct {
		List []shareItem `json:"list"`
	} `json:"data"`
}

type memberResponse struct {
	envelope
	Data struct {
		TotalCapacity int64  `json:"total_capacity"`
		UseCapacity   int64  `json:"use_capacity"`
		MemberType    string `json:"member_type"`
	} `json:"data"`
}

type accountInfoResponse struct {
	Success bool `json:"success"`
	Data    struct {
		Nickname  string `json:"nickname"`
		AvatarURI string `json:"avatarUri"`
		Mobile    string `json:"mobile"`
	} `json:"data"`
}
