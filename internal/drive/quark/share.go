package quark

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/ypsync/ypsync/internal/drive"
)

// expiredTypeToQuark maps the normalized day count onto the provider enum.
var expiredTypeToQuark = map[int]int{
	0:  1,
	1:  2,
	7:  3,
	30: 4,
}

// quarkToExpiredType is the reverse mapping for shares read back from the
// provider.
var quarkToExpiredType = map[int]int{
	1: 0,
	2: 1,
	3: 7,
	4: 30,
}

var pwdIDPattern = regexp.MustCompile(`quark\.cn/s/([0-9a-zA-Z]+)`)

// parseShareSource splits a share source into pwd_id and passcode. The
// source is either a bare pwd_id or a share URL, optionally suffixed with
// "|password".
func parseShareSource(sourceID string) (pwdID, passcode string, err error) {
	raw := sourceID

	if idx := strings.IndexByte(sourceID, '|'); idx >= 0 {
		raw = strings.TrimSpace(sourceID[:idx])
		passcode = strings.TrimSpace(sourceID[idx+1:])
	}

	if m := pwdIDPattern.FindStringSubmatch(raw); m != nil {
		return m[1], passcode, nil
	}

	if !strings.Contains(raw, "http") && !strings.Contains(raw, "quark") {
		return strings.TrimSpace(raw), passcode, nil
	}

	return "", "", fmt.Errorf("无法从分享链接中提取pwd_id: %s", sourceID)
}

// getStoken fetches the share access token for one pwd_id.
func (c *Client) getStoken(ctx context.Context, pwdID, passcode string) (string, error) {
	body, err := json.Marshal(map[string]string{
		"pwd_id":   pwdID,
		"passcode": passcode,
	})
	if err != nil {
		return "", drive.NewError(providerType, "share_token", 0, err.Error(), drive.ErrUnknown)
	}

	payload, err := c.http.PostJSON(ctx, apiPrefix+"/share/sharepage/token", commonQuery(), body)
	if err != nil {
		return "", err
	}

	var resp shareTokenResponse
	if err := decode("share_token", payload, &resp); err != nil {
		return "", err
	}

	if resp.Code != 0 {
		return "", apiError("share_token", resp.Code, resp.Message)
	}

	if resp.Data.Stoken == "" {
		return "", drive.NewError(providerType, "share_token", 0, "分享token为空", drive.ErrPathInvalid)
	}

	return resp.Data.Stoken, nil
}

// listSharePage pages through one directory inside a share.
func (c *Client) listSharePage(ctx context.Context, pwdID, stoken, pdirFid string) ([]quarkFile, error) {
	var all []quarkFile

	for page := 1; ; page++ {
		q := commonQuery()
		q.Set("pwd_id", pwdID)
		q.Set("stoken", stoken)
		q.Set("pdir_fid", pdirFid)
		q.Set("_page", strconv.Itoa(page))
		q.Set("_size", strconv.Itoa(pageSize))
		q.Set("_fetch_total", "1")
		q.Set("_sort", "file_type:asc,file_name:asc")

		payload, err := c.http.Get(ctx, apiPrefix+"/share/sharepage/detail", q)
		if err != nil {
			return nil, err
		}

		var resp shareDetailListResponse
		if err := decode("share_detail", payload, &resp); err != nil {
			return nil, err
		}

		if resp.Code != 0 {
			return nil, apiError("share_detail", resp.Code, resp.Message)
		}

		all = append(all, resp.Data.List...)

		if len(resp.Data.List) < pageSize {
			return all, nil
		}
	}
}

// ListShare lists one level inside a link share, descending the path by name
// matching. Each returned item carries pwd_id, stoken, its share_fid_token,
// and its parent fid so the transfer call can reuse them verbatim.
func (c *Client) ListShare(ctx context.Context, sourceType drive.SourceType, sourceID, sharePath string, extParams map[string]string) ([]*drive.FileInfo, error) {
	if sourceType != drive.SourceLink {
		return nil, drive.NewError(providerType, "list_share", 0,
			fmt.Sprintf("不支持的分享来源类型: %s", sourceType), drive.ErrPathInvalid)
	}

	pwdID, passcode, err := parseShareSource(sourceID)
	if err != nil {
		return nil, drive.NewError(providerType, "list_share", 0, err.Error(), drive.ErrPathInvalid)
	}

	// Reuse a previously fetched stoken when the caller has one. Fetching
	// anew would invalidate the share_fid_tokens already captured.
	stoken := extParams["stoken"]
	if stoken == "" {
		stoken, err = c.getStoken(ctx, pwdID, passcode)
		if err != nil {
			return nil, err
		}
	}

	curFid := "0"
	curPath := ""
	items, err := c.listSharePage(ctx, pwdID, stoken, curFid)
	if err != nil {
		return nil, err
	}

	normalized := strings.Trim(sharePath, "/")
	if normalized != "" {
		components := strings.Split(normalized, "/")

		for idx, component := range components {
			var found *quarkFile

			for i := range items {
				if items[i].FileName == component {
					found = &items[i]
					break
				}
			}

			if found == nil {
				return nil, drive.NewError(providerType, "list_share", 32003,
					fmt.Sprintf("分享中不存在 %q", component), drive.ErrNotFound)
			}

			last := idx == len(components)-1

			if !found.Dir && !last {
				return nil, drive.NewError(providerType, "list_share", 0,
					fmt.Sprintf("%q 是文件，路径无法继续解析", component), drive.ErrPathInvalid)
			}

			curPath = curPath + "/" + component

			if found.Dir {
				curFid = found.Fid

				items, err = c.listSharePage(ctx, pwdID, stoken, curFid)
				if err != nil {
					return nil, err
				}
			} else {
				// The target is a single file: return just it.
				items = []quarkFile{*found}
			}
		}
	}

	out := make([]*drive.FileInfo, 0, len(items))

	for i := range items {
		item := &items[i]
		fi := item.toFileInfo(curFid)

		if len(items) == 1 && !item.Dir && strings.HasSuffix(curPath, "/"+item.FileName) {
			fi.FilePath = curPath
		} else {
			fi.FilePath = curPath + "/" + item.FileName
		}

		fi.FileExt = map[string]string{
			"pwd_id":          pwdID,
			"stoken":          stoken,
			"share_fid_token": item.ShareFidToken,
			"pdir_fid":        curFid,
		}
		out = append(out, fi)
	}

	return out, nil
}

// Transfer saves share entries into the user's own drive. The per-file
// share_fid_tokens must line up with the fids one to one; a missing token
// would save the wrong file, so it fails the whole batch up front.
func (c *Client) Transfer(ctx context.Context, req drive.TransferRequest) error {
	if req.SourceType != drive.SourceLink {
		return drive.NewError(providerType, "transfer", 0,
			fmt.Sprintf("转存失败: 不支持的来源类型 %s", req.SourceType), drive.ErrTransferFailed)
	}

	if len(req.FileIDs) == 0 {
		return nil
	}

	if req.TargetID == "" {
		return drive.NewError(providerType, "transfer", 0,
			"转存失败: 目标目录缺少file_id", drive.ErrTransferFailed)
	}

	pwdID, _, err := parseShareSource(req.SourceID)
	if err != nil {
		return drive.NewError(providerType, "transfer", 0, "转存失败: "+err.Error(), drive.ErrTransferFailed)
	}

	extByID := make(map[string]map[string]string, len(req.FilesExtInfo))
	for _, e := range req.FilesExtInfo {
		extByID[e.FileID] = e.Ext
	}

	var (
		stoken  string
		pdirFid string
	)

	fidTokens := make([]string, len(req.FileIDs))

	for i, fid := range req.FileIDs {
		ext := extByID[fid]

		token := ext["share_fid_token"]
		if token == "" {
			return drive.NewError(providerType, "transfer", 0,
				"转存失败: 文件 "+fid+" 缺少share_fid_token", drive.ErrTransferFailed)
		}

		fidTokens[i] = token

		if stoken == "" {
			stoken = ext["stoken"]
		}

		if pdirFid == "" {
			pdirFid = ext["pdir_fid"]
		}
	}

	if stoken == "" {
		return drive.NewError(providerType, "transfer", 0, "转存失败: 缺少stoken", drive.ErrTransferFailed)
	}

	if pdirFid == "" {
		return drive.NewError(providerType, "transfer", 0, "转存失败: 缺少分享父目录ID", drive.ErrTransferFailed)
	}

	body, err := json.Marshal(map[string]any{
		"fid_list":       req.FileIDs,
		"fid_token_list": fidTokens,
		"to_pdir_fid":    req.TargetID,
		"pwd_id":         pwdID,
		"stoken":         stoken,
		"pdir_fid":       pdirFid,
		"scene":          "link",
	})
	if err != nil {
		return drive.NewError(providerType, "transfer", 0, "转存失败: "+err.Error(), drive.ErrTransferFailed)
	}

	payload, err := c.http.PostJSON(ctx, apiPrefix+"/share/sharepage/save", commonQuery(), body)
	if err != nil {
		return err
	}

	var resp taskIDResponse
	if err := decode("transfer", payload, &resp); err != nil {
		return err
	}

	if resp.Code != 0 {
		return drive.NewError(providerType, "transfer", resp.Code, "转存失败: "+resp.Message, drive.ErrTransferFailed)
	}

	if resp.Data.TaskID == "" {
		return nil
	}

	_, err = c.waitTask(ctx, "transfer", resp.Data.TaskID, drive.ErrTransferFailed, "批量转存失败")

	return err
}

/// CreateShare publishes the given fids: create the share task, poll it for
// the share id, then fetch the link and passcode.
func (c *Client) CreateShare(ctx context.Context, req drive.CreateShareRequest) (*drive.ShareInfo, error) {
	if err := drive.ValidateExpiry(req.ExpiredType); err != nil {
		return nil, err
	}

	// The provider has no one-year option; longer requests take the longest
	// window it offers.
	quarkExpired, ok := expiredTypeToQuark[req.ExpiredType]
	if !ok {
		quarkExpired = expiredTypeToQuark[30]
	}

	body, err := json.Marshal(map[string]any{
		"fid_list":     req.FileIDs,
		"title":        req.FileName,
		"url_type":     1,
		"expired_type": quarkExpired,
	})
	if err != nil {
		return nil, drive.NewError(providerType, "create_share", 0, err.Error(), drive.ErrUnknown)
	}

	payload, err := c.http.PostJSON(ctx, apiPrefix+"/share", commonQuery(), body)
	if err != nil {
		return nil, err
	}

	var created taskIDResponse
	if err := decode("create_share", payload, &created); err != nil {
		return nil, err
	}

	if created.Code != 0 {
		return nil, apiError("create_share", created.Code, created.Message)
	}

	if created.Data.TaskID == "" {
		return nil, drive.NewError(providerType, "create_share", 0, "创建分享任务失败：未获取到task_id", drive.ErrUnknown)
	}

	task, err := c.waitTask(ctx, "create_share", created.Data.TaskID, drive.ErrUnknown, "分享任务失败")
	if err != nil {
		return nil, err
	}

	if task.Data.ShareID == "" {
		return nil, drive.NewError(providerType, "create_share", 0, "分享任务未返回share_id", drive.ErrUnknown)
	}

	body, err = json.Marshal(map[string]string{"share_id": task.Data.ShareID})
	if err != nil {
		return nil, drive.NewError(providerType, "create_share", 0, err.Error(), drive.ErrUnknown)
	}

	payload, err = c.http.PostJSON(ctx, apiPrefix+"/share/password", commonQuery(), body)
	if err != nil {
		return nil, err
	}

	var pw sharePasswordResponse
	if err := decode("create_share", payload, &pw); err != nil {
		return nil, err
	}

	if pw.Code != 0 {
		return nil, apiError("create_share", pw.Code, pw.Message)
	}

	info := shareItemToInfo(&pw.Data, time.Now())
	info.ShareID = task.Data.ShareID
	info.ExpiredType = req.ExpiredType

	if info.Title == "" {
		info.Title = req.FileName
	}

	if info.FileID == "" && len(req.FileIDs) > 0 {
		info.FileID = req.FileIDs[0]
	}

	return info, nil
}

// CancelShare revokes the given share ids.
func (c *Client) CancelShare(ctx context.Context, shareIDs []string) error {
	if len(shareIDs) == 0 {
		return nil
	}

	body, err := json.Marshal(map[string]any{"share_ids": shareIDs})
	if err != nil {
		return drive.NewError(providerType, "cancel_share", 0, err.Error(), drive.ErrUnknown)
	}

	payload, err := c.http.PostJSON(ctx, apiPrefix+"/share/delete", commonQuery(), body)
	if err != nil {
		return err
	}

	var resp envelope
	if err := decode("cancel_share", payload, &resp); err != nil {
		return err
	}

	return apiError("cancel_share", resp.Code, resp.Message)
}

// ListShareInfo lists the user's own shares, or resolves the metadata of
// one external link via its share token.
func (c *Client) ListShareInfo(ctx context.Context, req drive.ListShareInfoRequest) ([]*drive.ShareInfo, error) {
	switch req.SourceType {
	case drive.SourceLocal:
		return c.listOwnShares(ctx, req)
	case drive.SourceLink:
		return c.resolveLinkShare(ctx, req.SourceID)
	default:
		return nil, drive.NewError(providerType, "share_info", 0,
			fmt.Sprintf("不支持的分享来源类型: %s", req.SourceType), drive.ErrPathInvalid)
	}
}

func (c *Client) listOwnShares(ctx context.Context, req drive.ListShareInfoRequest) ([]*drive.ShareInfo, error) {
	page := req.Page
	if page <= 0 {
		page = 1
	}

	size := req.Size
	if size <= 0 {
		size = pageSize
	}

	order := req.OrderBy
	if order == "" {
		order = "created_at"
	}

	q := commonQuery()
	q.Set("_page", strconv.Itoa(page))
	q.Set("_size", strconv.Itoa(size))
	q.Set("_order_field", order)
	q.Set("_order_type", "desc")
	q.Set("_fetch_total", "1")

	payload, err := c.http.Get(ctx, apiPrefix+"/share/mypage/detail", q)
	if err != nil {
		return nil, err
	}

	var resp sharePageResponse
	if err := decode("share_info", payload, &resp); err != nil {
		return nil, err
	}

	if resp.Code != 0 {
		return nil, apiError("share_info", resp.Code, resp.Message)
	}

	now := time.Now()
	out := make([]*drive.ShareInfo, 0, len(resp.Data.List))

	for i := range resp.Data.List {
		out = append(out, shareItemToInfo(&resp.Data.List[i], now))
	}

	return out, nil
}

func (c *Client) resolveLinkShare(ctx context.Context, sourceID string) ([]*drive.ShareInfo, error) {
	pwdID, passcode, err := parseShareSource(sourceID)
	if err != nil {
		return nil, drive.NewError(providerType, "share_info", 0, err.Error(), drive.ErrPathInvalid)
	}

	stoken, err := c.getStoken(ctx, pwdID, passcode)
	if err != nil {
		return nil, err
	}

	q := commonQuery()
	q.Set("pwd_id", pwdID)
	q.Set("stoken", stoken)

	payload, err := c.http.Get(ctx, apiPrefix+"/share/sharepage/detail_info", q)
	if err != nil {
		return nil, err
	}

	var resp sharePasswordResponse
	if err := decode("share_info", payload, &resp); err != nil {
		return nil, err
	}

	if resp.Code != 0 {
		return nil, apiError("share_info", resp.Code, resp.Message)
	}

	info := shareItemToInfo(&resp.Data, time.Now())
	if info.URL == "" {
		info.URL = sourceID
	}

	if info.PwdID == "" {
		info.PwdID = pwdID
	}

	return []*drive.ShareInfo{info}, nil
}

// shareItemToInfo normalizes one provider share record. The provider enum
// maps back to the day count; an already expired share becomes -1 with a
// negative ExpiredLeft.
func shareItemToInfo(item *shareItem, now time.Time) *drive.ShareInfo {
	info := &drive.ShareInfo{
		Title:       item.Title,
		ShareID:     item.ShareID,
		PwdID:       item.PwdID,
		URL:         item.ShareURL,
		Password:    item.Passcode,
		Status:      item.Status,
		ViewCount:   item.ClickPv,
		AuditStatus: item.AuditStatus,
		FileID:      item.FirstFid,
		FileSize:    item.Size,
		PathInfo:    item.PathInfo,
	}

	if days, ok := quarkToExpiredType[item.ExpiredType]; ok {
		info.ExpiredType = days
	}

	if item.ExpiredAt > 0 {
		info.ExpiredAt = time.UnixMilli(item.ExpiredAt)
		info.ExpiredLeft = int(info.ExpiredAt.Sub(now).Hours() / 24)

		if info.ExpiredAt.Before(now) {
			info.ExpiredType = -1
		}
	}

	return info
}
