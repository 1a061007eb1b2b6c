package baidu

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"path"
	"strconv"
	"time"

	"github.com/ypsync/ypsync/internal/drive"
)

// ListDisk lists one directory of the user's own drive, paginating until the
// provider returns a short page. Baidu addresses directories by path, so
// fileID is unused.
func (c *Client) ListDisk(ctx context.Context, dirPath, fileID string) ([]*drive.FileInfo, error) {
	if dirPath == "" {
		dirPath = "/"
	}

	var out []*drive.FileInfo

	for page := 1; ; page++ {
		q := url.Values{
			"dir":   {dirPath},
			"page":  {strconv.Itoa(page)},
			"num":   {strconv.Itoa(listPageSize)},
			"order": {"name"},
			"web":   {"1"},
		}

		payload, err := c.http.Get(ctx, "/api/list", q)
		if err != nil {
			return nil, err
		}

		var resp listResponse
		if err := decode("list", payload, &resp); err != nil {
			return nil, err
		}

		if resp.Errno != 0 {
			return nil, apiError("list", resp.Errno, "")
		}

		for i := range resp.List {
			out = append(out, resp.List[i].toFileInfo(fileID))
		}

		if len(resp.List) < listPageSize {
			return out, nil
		}
	}
}

// Mkdir creates req.Path. With ReturnIfExist an existing directory is looked
// up in its parent listing and returned as is.
func (c *Client) Mkdir(ctx context.Context, req drive.MkdirRequest) (*drive.FileInfo, error) {
	dirPath := req.Path
	if dirPath == "" {
		dirPath = path.Join("/", req.Name)
	}

	if req.ReturnIfExist {
		existing, err := c.findDir(ctx, dirPath)
		if err != nil {
			return nil, err
		}

		if existing != nil {
			return existing, nil
		}
	}

	token, err := c.getBdstoken(ctx)
	if err != nil {
		return nil, err
	}

	q := url.Values{
		"a":        {"commit"},
		"bdstoken": {token},
	}
	form := url.Values{
		"path":       {dirPath},
		"isdir":      {"1"},
		"rtype":      {"0"},
		"block_list": {"[]"},
	}

	payload, err := c.http.PostForm(ctx, "/api/create", q, form)
	if err != nil {
		return nil, err
	}

	var resp createResponse
	if err := decode("mkdir", payload, &resp); err != nil {
		return nil, err
	}

	if resp.Errno != 0 {
		return nil, apiError("mkdir", resp.Errno, "")
	}

	created := dirPath
	if resp.Path != "" {
		created = resp.Path
	}

	return &drive.FileInfo{
		FileID:    strconv.FormatUint(resp.FsID, 10),
		FileName:  path.Base(created),
		FilePath:  created,
		IsFolder:  true,
		ParentID:  req.ParentID,
		CreatedAt: time.Unix(resp.Ctime, 0),
		UpdatedAt: time.Unix(resp.Mtime, 0),
	}, nil
}

// findDir looks for dirPath in its parent's listing. A missing parent is not
// an error: the directory simply does not exist yet.
func (c *Client) findDir(ctx context.Context, dirPath string) (*drive.FileInfo, error) {
	parent := path.Dir(dirPath)
	name := path.Base(dirPath)

	items, err := c.ListDisk(ctx, parent, "")
	if err != nil {
		if errors.Is(err, drive.ErrNotFound) {
			return nil, nil
		}

		return nil, err
	}

	for _, fi := range items {
		if fi.IsFolder && fi.FileName == name {
			return fi, nil
		}
	}

	return nil, nil
}

// Remove deletes the given paths in one filemanager call. Baidu deletes by
// path only.
func (c *Client) Remove(ctx context.Context, req drive.RemoveRequest) error {
	if len(req.FilePaths) == 0 {
		return drive.NewError(providerType, "remove", 0, "删除失败: 缺少文件路径", drive.ErrDeleteFailed)
	}

	token, err := c.getBdstoken(ctx)
	if err != nil {
		return err
	}

	filelist, err := json.Marshal(req.FilePaths)
	if err != nil {
		return drive.NewError(providerType, "remove", 0, "删除失败: "+err.Error(), drive.ErrDeleteFailed)
	}

	q := url.Values{
		"opera":    {"delete"},
		"async":    {"0"},
		"onnest":   {"fail"},
		"bdstoken": {token},
	}
	form := url.Values{
		"filelist": {string(filelist)},
	}

	payload, err := c.http.PostForm(ctx, "/api/filemanager", q, form)
	if err != nil {
		return err
	}

	var resp errnoResponse
	if err := decode("remove", payload, &resp); err != nil {
		return err
	}

	if resp.Errno != 0 {
		return drive.NewError(providerType, "remove", resp.Errno, "批量删除失败", drive.ErrDeleteFailed)
	}

	return nil
}

// GetUserInfo fetches identity and quota in two calls.
func (c *Client) GetUserInfo(ctx context.Context) (*drive.UserInfo, error) {
	payload, err := c.http.Get(ctx, "/rest/2.0/xpan/nas", url.Values{"method": {"uinfo"}})
	if err != nil {
		return nil, err
	}

	var info uinfoResponse
	if err := decode("uinfo", payload, &info); err != nil {
		return nil, err
	}

	if info.Errno != 0 {
		return nil, apiError("uinfo", info.Errno, "")
	}

	payload, err = c.http.Get(ctx, "/api/quota", url.Values{
		"checkfree":   {"1"},
		"checkexpire": {"1"},
	})
	if err != nil {
		return nil, err
	}

	var quota quotaResponse
	if err := decode("quota", payload, &quota); err != nil {
		return nil, err
	}

	if quota.Errno != 0 {
		return nil, apiError("quota", quota.Errno, "")
	}

	uk := strconv.FormatInt(info.UK, 10)

	c.mu.Lock()
	c.uk = uk
	c.mu.Unlock()

	return &drive.UserInfo{
		UserID:     uk,
		Username:   info.BaiduName,
		AvatarURL:  info.AvatarURL,
		Quota:      quota.Total,
		Used:       quota.Used,
		IsVIP:      info.VipType >= 1,
		IsSuperVIP: info.VipType == 2,
	}, nil
}

// getBdstoken fetches and caches the anti-CSRF token mutating endpoints need.
func (c *Client) getBdstoken(ctx context.Context) (string, error) {
	c.mu.Lock()
	token := c.bdstoken
	c.mu.Unlock()

	if token != "" {
		return token, nil
	}

	payload, err := c.http.Get(ctx, "/api/gettemplatevariable", url.Values{
		"fields": {`["bdstoken"]`},
	})
	if err != nil {
		return "", err
	}

	var resp templateVariableResponse
	if err := decode("bdstoken", payload, &resp); err != nil {
		return "", err
	}

	if resp.Errno != 0 {
		return "", apiError("bdstoken", resp.Errno, "")
	}

	c.mu.Lock()
	c.bdstoken = resp.Result.Bdstoken
	c.mu.Unlock()

	return resp.Result.Bdstoken, nil
}

// currentUK returns the cached account uk, fetching user info on first use.
func (c *Client) currentUK(ctx context.Context) (string, error) {
	c.mu.Lock()
	uk := c.uk
	c.mu.Unlock()

	if uk != "" {
		return uk, nil
	}

	if _, err := c.GetUserInfo(ctx); err != nil {
		return "", err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	return c.uk, nil
}
