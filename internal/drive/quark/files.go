package quark

import (
	"context"
	"encoding/json"
	"net/url"
	"path"
	"strconv"
	"strings"

	"github.com/ypsync/ypsync/internal/drive"
)

// commonQuery returns the boilerplate parameters every drive endpoint wants.
func commonQuery() url.Values {
	return url.Values{
		"pr": {"ucpro"},
		"fr": {"pc"},
	}
}

// ListDisk lists one directory of the user's own drive. Quark addresses
// directories by fid; when only a path is known it is resolved by walking
// name components from the root fid "0".
func (c *Client) ListDisk(ctx context.Context, dirPath, fileID string) ([]*drive.FileInfo, error) {
	pdirFid := fileID
	if pdirFid == "" {
		resolved, err := c.resolvePath(ctx, dirPath)
		if err != nil {
			return nil, err
		}

		pdirFid = resolved
	}

	items, err := c.listDir(ctx, pdirFid)
	if err != nil {
		return nil, err
	}

	base := strings.TrimSuffix(dirPath, "/")
	out := make([]*drive.FileInfo, 0, len(items))

	for i := range items {
		fi := items[i].toFileInfo(pdirFid)
		fi.FilePath = base + "/" + fi.FileName
		out = append(out, fi)
	}

	return out, nil
}

// listDir pages through one directory by fid.
func (c *Client) listDir(ctx context.Context, pdirFid string) ([]quarkFile, error) {
	var all []quarkFile

	for page := 1; ; page++ {
		q := commonQuery()
		q.Set("pdir_fid", pdirFid)
		q.Set("_page", strconv.Itoa(page))
		q.Set("_size", strconv.Itoa(pageSize))
		q.Set("_fetch_total", "1")
		q.Set("_sort", "file_type:asc,file_name:asc")

		payload, err := c.http.Get(ctx, apiPrefix+"/file/sort", q)
		if err != nil {
			return nil, err
		}

		var resp listResponse
		if err := decode("list", payload, &resp); err != nil {
			return nil, err
		}

		if resp.Code != 0 {
			return nil, apiError("list", resp.Code, resp.Message)
		}

		all = append(all, resp.Data.List...)

		if len(resp.Data.List) < pageSize {
			return all, nil
		}
	}
}

// resolvePath walks dirPath from the root fid, matching one name per level.
func (c *Client) resolvePath(ctx context.Context, dirPath string) (string, error) {
	cur := "0"

	normalized := strings.Trim(dirPath, "/")
	if normalized == "" {
		return cur, nil
	}

	for _, component := range strings.Split(normalized, "/") {
		items, err := c.listDir(ctx, cur)
		if err != nil {
			return "", err
		}

		found := false

		for i := range items {
			if items[i].FileName == component {
				if !items[i].Dir {
					return "", drive.NewError(providerType, "resolve_path", 0,
						"路径中的 "+component+" 是文件", drive.ErrPathInvalid)
				}

				cur = items[i].Fid
				found = true

				break
			}
		}

		if !found {
			return "", drive.NewError(providerType, "resolve_path", 32003,
				"目录不存在: "+component, drive.ErrNotFound)
		}
	}

	return cur, nil
}

// Mkdir creates a directory under req.ParentID (resolved from the path when
// absent). With ReturnIfExist an existing directory wins over creating.
func (c *Client) Mkdir(ctx context.Context, req drive.MkdirRequest) (*drive.FileInfo, error) {
	name := req.Name
	if name == "" {
		name = path.Base(req.Path)
	}

	parent := req.ParentID
	if parent == "" {
		resolved, err := c.resolvePath(ctx, path.Dir(req.Path))
		if err != nil {
			return nil, err
		}

		parent = resolved
	}

	if req.ReturnIfExist {
		items, err := c.listDir(ctx, parent)
		if err != nil {
			return nil, err
		}

		for i := range items {
			if items[i].Dir && items[i].FileName == name {
				fi := items[i].toFileInfo(parent)
				fi.FilePath = req.Path

				return fi, nil
			}
		}
	}

	body, err := json.Marshal(map[string]any{
		"pdir_fid":      parent,
		"file_name":     name,
		"dir_path":      "",
		"dir_init_lock": false,
	})
	if err != nil {
		return nil, drive.NewError(providerType, "mkdir", 0, err.Error(), drive.ErrUnknown)
	}

	payload, err := c.http.PostJSON(ctx, apiPrefix+"/file", commonQuery(), body)
	if err != nil {
		return nil, err
	}

	var resp mkdirResponse
	if err := decode("mkdir", payload, &resp); err != nil {
		return nil, err
	}

	if resp.Code != 0 {
		return nil, apiError("mkdir", resp.Code, resp.Message)
	}

	return &drive.FileInfo{
		FileID:   resp.Data.Fid,
		FileName: name,
		FilePath: req.Path,
		IsFolder: true,
		ParentID: parent,
	}, nil
}

// Remove deletes the given fids. The call is asynchronous server-side, so
// the returned task is polled to completion.
func (c *Client) Remove(ctx context.Context, req drive.RemoveRequest) error {
	if len(req.FileIDs) == 0 {
		return drive.NewError(providerType, "remove", 0, "删除失败: 缺少文件ID", drive.ErrDeleteFailed)
	}

	body, err := json.Marshal(map[string]any{
		"action_type":  2,
		"filelist":     req.FileIDs,
		"exclude_fids": []string{},
	})
	if err != nil {
		return drive.NewError(providerType, "remove", 0, "删除失败: "+err.Error(), drive.ErrDeleteFailed)
	}

	payload, err := c.http.PostJSON(ctx, apiPrefix+"/file/delete", commonQuery(), body)
	if err != nil {
		return err
	}

	var resp taskIDResponse
	if err := decode("remove", payload, &resp); err != nil {
		return err
	}

	if resp.Code != 0 {
		return drive.NewError(providerType, "remove", resp.Code, "批量删除失败: "+resp.Message, drive.ErrDeleteFailed)
	}

	if resp.Data.TaskID == "" {
		return nil
	}

	_, err = c.waitTask(ctx, "remove", resp.Data.TaskID, drive.ErrDeleteFailed, "批量删除失败")

	return err
}

// waitTask polls one asynchronous task until it completes or fails.
func (c *Client) waitTask(ctx context.Context, op, taskID string, failSentinel error, failMsg string) (*taskResponse, error) {
	for i := 0; i < taskPollMax; i++ {
		q := commonQuery()
		q.Set("task_id", taskID)
		q.Set("retry_index", strconv.Itoa(i))

		payload, err := c.http.Get(ctx, apiPrefix+"/task", q)
		if err != nil {
			return nil, err
		}

		var resp taskResponse
		if err := decode(op, payload, &resp); err != nil {
			return nil, err
		}

		if resp.Code != 0 {
			return nil, apiError(op, resp.Code, resp.Message)
		}

		switch resp.Data.Status {
		case taskStatusDone:
			return &resp, nil
		case taskStatusFailed:
			return nil, drive.NewError(providerType, op, 0, failMsg+": 任务 "+taskID+" 执行失败", failSentinel)
		}

		if err := c.sleepFunc(ctx, taskPollInterval); err != nil {
			return nil, err
		}
	}

	return nil, drive.NewError(providerType, op, 0, failMsg+": 任务 "+taskID+" 超时", failSentinel)
}

const (
	taskStatusDone   = 2
	taskStatusFailed = 3
)

// GetUserInfo fetches the account profile and drive quota in two calls, one
// per host.
func (c *Client) GetUserInfo(ctx context.Context) (*drive.UserInfo, error) {
	payload, err := c.account.Get(ctx, "/account/info", url.Values{
		"fr":       {"pc"},
		"platform": {"pc"},
	})
	if err != nil {
		return nil, err
	}

	var info accountInfoResponse
	if err := decode("account_info", payload, &info); err != nil {
		return nil, err
	}

	if !info.Success || info.Data.Nickname == "" {
		return nil, drive.NewError(providerType, "account_info", 11001, "身份验证失败", drive.ErrAuth)
	}

	q := commonQuery()
	q.Set("fetch_subscribe", "true")
	q.Set("_ch", "home")
	q.Set("fetch_total", "true")

	payload, err = c.http.Get(ctx, apiPrefix+"/member", q)
	if err != nil {
		return nil, err
	}

	var member memberResponse
	if err := decode("member", payload, &member); err != nil {
		return nil, err
	}

	if member.Code != 0 {
		return nil, apiError("member", member.Code, member.Message)
	}

	memberType := member.Data.MemberType

	return &drive.UserInfo{
		UserID:     info.Data.Mobile,
		Username:   info.Data.Nickname,
		AvatarURL:  info.Data.AvatarURI,
		Quota:      member.Data.TotalCapacity,
		Used:       member.Data.UseCapacity,
		IsVIP:      memberType == "VIP" || memberType == "SUPER_VIP" || memberType == "Z_VIP",
		IsSuperVIP: memberType == "SUPER_VIP" || memberType == "Z_VIP",
	}, nil
}
