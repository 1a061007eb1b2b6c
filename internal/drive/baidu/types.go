package baidu

import (
	"encoding/json"
	"path"
	"strconv"
	"time"

	"github.com/ypsync/ypsync/internal/drive"
)

// errnoResponse is the minimal envelope every endpoint shares.
type errnoResponse struct {
	Errno int `json:"errno"`
}

// diskItem is one entry as the list, share, and create endpoints report it.
// Timestamps are epoch seconds.
type diskItem struct {
	FsID           uint64 `json:"fs_id"`
	Path           string `json:"path"`
	ServerFilename string `json:"server_filename"`
	IsDir          int    `json:"isdir"`
	Size           int64  `json:"size"`
	ServerCtime    int64  `json:"server_ctime"`
	ServerMtime    int64  `json:"server_mtime"`
}

func (d *diskItem) fileID() string {
	return strconv.FormatUint(d.FsID, 10)
}

func (d *diskItem) name() string {
	if d.ServerFilename != "" {
		return d.ServerFilename
	}

	return path.Base(d.Path)
}

func (d *diskItem) toFileInfo(parentID string) *drive.FileInfo {
	return &drive.FileInfo{
		FileID:    d.fileID(),
		FileName:  d.name(),
		FilePath:  d.Path,
		IsFolder:  d.IsDir != 0,
		FileSize:  d.Size,
		ParentID:  parentID,
		CreatedAt: time.Unix(d.ServerCtime, 0),
		UpdatedAt: time.Unix(d.ServerMtime, 0),
	}
}

type listResponse struct {
	Errno int        `json:"errno"`
	List  []diskItem `json:"list"`
}

type createResponse struct {
	Errno int    `json:"errno"`
	FsID  uint64 `json:"fs_id"`
	Path  string `json:"path"`
	Ctime int64  `json:"ctime"`
	Mtime int64  `json:"mtime"`
}

type quotaResponse struct {
	Errno int   `json:"errno"`
	Total int64 `json:"total"`
	Used  int64 `json:"used"`
}

type uinfoResponse struct {
	Errno     int    `json:"errno"`
	UK        int64  `json:"uk"`
	BaiduName string `json:"baidu_name"`
	AvatarURL string `json:"avatar_url"`
	VipType   int    `json:"vip_type"`
}

type templateVariableResponse struct {
	Errno  int `json:"errno"`
	Result struct {
		Bdstoken string `json:"bdstoken"`
	} `json:"result"`
}

// friendMsg is one share event in a friend session. Numeric ids arrive as
// either numbers or strings depending on the endpoint, hence json.Number.
type friendMsg struct {
	MsgID    json.Number `json:"msg_id"`
	FromUK   json.Number `json:"from_uk"`
	FileList struct {
		List []diskItem `json:"list"`
	} `json:"filelist"`
}

type friendShareListResponse struct {
	Errno   int `json:"errno"`
	Records struct {
		List []friendMsg `json:"list"`
	} `json:"records"`
}

// groupMsg is one share event in a group session. The sharer arrives as uk
// and the root items as a flat file_list.
type groupMsg struct {
	MsgID    json.Number `json:"msg_id"`
	UK       json.Number `json:"uk"`
	FileList []diskItem  `json:"file_list"`
}

type groupShareListResponse struct {
	Errno   int `json:"errno"`
	Records struct {
		MsgList []groupMsg `json:"msg_list"`
	} `json:"records"`
}

type shareDetailResponse struct {
	Errno   int        `json:"errno"`
	Records []diskItem `json:"records"`
	HasMore int        `json:"has_more"`
}

type shareSetResponse struct {
	Errno    int    `json:"errno"`
	ShareID  int64  `json:"shareid"`
	Link     string `json:"link"`
	ShortURL string `json:"shorturl"`
}

type shareRecord struct {
	ShareID     int64    `json:"shareId"`
	ShortURL    string   `json:"shorturl"`
	TypicalPath string   `json:"typicalPath"`
	ExpiredType int      `json:"expiredType"`
	ExpiredTime int64    `json:"expiredTime"`
	ViewCount   int      `json:"vCnt"`
	Passwd      string   `json:"passwd"`
	Status      int      `json:"status"`
	FsIDs       []uint64 `json:"fsIds"`
}

type shareRecordResponse struct {
	Errno int           `json:"errno"`
	List  []shareRecord `json:"list"`
}

type shorturlInfoResponse struct {
	Errno       int    `json:"errno"`
	Title       string `json:"title"`
	ShareID     int64  `json:"shareid"`
	UK          int64  `json:"uk"`
	ShortURL    string `json:"shorturl"`
	ExpiredType int    `json:"expiredType"`
	ExpiredTime int64  `json:"expired_time"`
}
