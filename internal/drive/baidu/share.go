package baidu

import (
	"context"
	"fmt"
	"math/rand/v2"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/ypsync/ypsync/internal/drive"
)

// shareEvent is one resolved share message: who shared it, which message
// carried it, and the root items it contains.
type shareEvent struct {
	msgID  string
	fromUK string
	roots  []diskItem
}

// ListShare lists one level inside a friend or group share. The first path
// component selects the share event whose root item carries that name; the
// rest descend by name matching. Every returned item carries the from_uk and
// msg_id the transfer call needs.
func (c *Client) ListShare(ctx context.Context, sourceType drive.SourceType, sourceID, sharePath string, extParams map[string]string) ([]*drive.FileInfo, error) {
	if sourceType != drive.SourceFriend && sourceType != drive.SourceGroup {
		return nil, drive.NewError(providerType, "list_share", 0,
			fmt.Sprintf("不支持的分享来源类型: %s", sourceType), drive.ErrPathInvalid)
	}

	events, err := c.listShareEvents(ctx, sourceType, sourceID)
	if err != nil {
		return nil, err
	}

	normalized := strings.Trim(sharePath, "/")
	if normalized == "" {
		// The share root level is one entry per share event.
		out := make([]*drive.FileInfo, 0, len(events))

		for _, ev := range events {
			if len(ev.roots) == 0 {
				continue
			}

			root := ev.roots[0]
			fi := root.toFileInfo("")
			fi.FilePath = "/" + root.name()
			fi.FileExt = map[string]string{
				"from_uk": ev.fromUK,
				"msg_id":  ev.msgID,
			}
			out = append(out, fi)
		}

		return out, nil
	}

	components := strings.Split(normalized, "/")

	var target *shareEvent

	for i := range events {
		if len(events[i].roots) > 0 && events[i].roots[0].name() == components[0] {
			target = &events[i]
			break
		}
	}

	if target == nil {
		return nil, drive.NewError(providerType, "list_share", -9,
			fmt.Sprintf("分享中不存在根目录 %q", components[0]), drive.ErrNotFound)
	}

	curID := target.roots[0].fileID()
	curPath := "/" + target.roots[0].name()

	for idx := 1; idx < len(components); idx++ {
		items, err := c.listShareDir(ctx, sourceType, sourceID, target, curID)
		if err != nil {
			return nil, err
		}

		var next *diskItem

		for i := range items {
			if items[i].name() == components[idx] {
				next = &items[i]
				break
			}
		}

		if next == nil {
			return nil, drive.NewError(providerType, "list_share", -9,
				fmt.Sprintf("分享目录中不存在 %q", components[idx]), drive.ErrNotFound)
		}

		if next.IsDir == 0 && idx < len(components)-1 {
			return nil, drive.NewError(providerType, "list_share", 0,
				fmt.Sprintf("%q 是文件，路径无法继续解析", components[idx]), drive.ErrPathInvalid)
		}

		curID = next.fileID()
		curPath = curPath + "/" + next.name()
	}

	items, err := c.listShareDir(ctx, sourceType, sourceID, target, curID)
	if err != nil {
		return nil, err
	}

	// Listing a file's own id yields that single file.
	singleFile := len(items) == 1 && items[0].fileID() == curID && items[0].IsDir == 0

	out := make([]*drive.FileInfo, 0, len(items))

	for i := range items {
		item := &items[i]
		fi := item.toFileInfo(curID)

		if singleFile {
			fi.FilePath = curPath
		} else {
			fi.FilePath = curPath + "/" + item.name()
		}

		fi.FileExt = map[string]string{
			"from_uk": target.fromUK,
			"msg_id":  target.msgID,
		}
		out = append(out, fi)
	}

	return out, nil
}

// listShareEvents fetches the share messages of one friend or group session.
func (c *Client) listShareEvents(ctx context.Context, sourceType drive.SourceType, sourceID string) ([]shareEvent, error) {
	if sourceType == drive.SourceFriend {
		q := url.Values{
			"type":  {"2"},
			"to_uk": {sourceID},
			"num":   {strconv.Itoa(sharePageSize)},
		}

		payload, err := c.http.Get(ctx, "/mbox/msg/sharelist", q)
		if err != nil {
			return nil, err
		}

		var resp friendShareListResponse
		if err := decode("share_events", payload, &resp); err != nil {
			return nil, err
		}

		if resp.Errno != 0 {
			return nil, apiError("share_events", resp.Errno, "")
		}

		events := make([]shareEvent, 0, len(resp.Records.List))
		for _, msg := range resp.Records.List {
			events = append(events, shareEvent{
				msgID:  msg.MsgID.String(),
				fromUK: msg.FromUK.String(),
				roots:  msg.FileList.List,
			})
		}

		return events, nil
	}

	q := url.Values{
		"type":  {"2"},
		"gid":   {sourceID},
		"limit": {strconv.Itoa(sharePageSize)},
		"desc":  {"1"},
	}

	payload, err := c.http.Get(ctx, "/mbox/group/sharelist", q)
	if err != nil {
		return nil, err
	}

	var resp groupShareListResponse
	if err := decode("share_events", payload, &resp); err != nil {
		return nil, err
	}

	if resp.Errno != 0 {
		return nil, apiError("share_events", resp.Errno, "")
	}

	events := make([]shareEvent, 0, len(resp.Records.MsgList))
	for _, msg := range resp.Records.MsgList {
		events = append(events, shareEvent{
			msgID:  msg.MsgID.String(),
			fromUK: msg.UK.String(),
			roots:  msg.FileList,
		})
	}

	return events, nil
}

// listShareDir pages through one directory of a share event.
func (c *Client) listShareDir(ctx context.Context, sourceType drive.SourceType, sourceID string, ev *shareEvent, fsID string) ([]diskItem, error) {
	var (
		endpoint string
		all      []diskItem
	)

	uk, err := c.currentUK(ctx)
	if err != nil {
		return nil, err
	}

	for page := 1; ; page++ {
		q := url.Values{
			"from_uk": {ev.fromUK},
			"msg_id":  {ev.msgID},
			"fs_id":   {fsID},
			"page":    {strconv.Itoa(page)},
			"num":     {strconv.Itoa(sharePageSize)},
		}

		if sourceType == drive.SourceFriend {
			endpoint = "/mbox/msg/shareinfo"
			q.Set("type", "1")
			q.Set("to_uk", uk)
		} else {
			endpoint = "/mbox/group/shareinfo"
			q.Set("type", "2")
			q.Set("gid", sourceID)
			q.Set("limit", strconv.Itoa(sharePageSize))
			q.Set("desc", "1")
		}

		payload, err := c.http.Get(ctx, endpoint, q)
		if err != nil {
			return nil, err
		}

		var resp shareDetailResponse
		if err := decode("share_detail", payload, &resp); err != nil {
			return nil, err
		}

		if resp.Errno != 0 {
			return nil, apiError("share_detail", resp.Errno, "")
		}

		all = append(all, resp.Records...)

		if resp.HasMore == 0 {
			return all, nil
		}
	}
}

// Transfer saves share entries into the user's own drive. The message id and
// sharer come from the per-file ext captured at listing time.
func (c *Client) Transfer(ctx context.Context, req drive.TransferRequest) error {
	if req.SourceType != drive.SourceFriend && req.SourceType != drive.SourceGroup {
		return drive.NewError(providerType, "transfer", 0,
			fmt.Sprintf("转存失败: 不支持的来源类型 %s", req.SourceType), drive.ErrTransferFailed)
	}

	if len(req.FileIDs) == 0 {
		return nil
	}

	ext := transferExt(req)

	msgID := ext["msg_id"]
	if msgID == "" {
		return drive.NewError(providerType, "transfer", 0, "转存失败: 缺少 msg_id", drive.ErrTransferFailed)
	}

	fromUK := ext["from_uk"]
	if fromUK == "" && req.SourceType == drive.SourceFriend {
		fromUK = req.SourceID
	}

	if fromUK == "" {
		return drive.NewError(providerType, "transfer", 0, "转存失败: 缺少 from_uk", drive.ErrTransferFailed)
	}

	uk, err := c.currentUK(ctx)
	if err != nil {
		return err
	}

	token, err := c.getBdstoken(ctx)
	if err != nil {
		return err
	}

	transferType := "1"
	if req.SourceType == drive.SourceGroup {
		transferType = "2"
	}

	q := url.Values{
		"from_uk":  {fromUK},
		"to_uk":    {uk},
		"msg_id":   {msgID},
		"type":     {transferType},
		"bdstoken": {token},
	}

	if req.SourceType == drive.SourceGroup {
		q.Set("gid", req.SourceID)
	}

	form := url.Values{
		"fsidlist": {"[" + strings.Join(req.FileIDs, ",") + "]"},
		"path":     {req.TargetPath},
		"ondup":    {"newcopy"},
		"async":    {"1"},
	}

	payload, err := c.http.PostForm(ctx, "/mbox/msg/transfer", q, form)
	if err != nil {
		return err
	}

	var resp errnoResponse
	if err := decode("transfer", payload, &resp); err != nil {
		return err
	}

	return apiError("transfer", resp.Errno, "")
}

// transferExt picks the shared event metadata for a batch: every entry in a
// level carries the same msg_id, so the first non-empty ext wins, with the
// request-level ext params as fallback.
func transferExt(req drive.TransferRequest) map[string]string {
	for _, e := range req.FilesExtInfo {
		if len(e.Ext) > 0 {
			return e.Ext
		}
	}

	if req.ExtParams != nil {
		return req.ExtParams
	}

	return map[string]string{}
}

// CreateShare publishes the given fs_ids as a password protected link.
func (c *Client) CreateShare(ctx context.Context, req drive.CreateShareRequest) (*drive.ShareInfo, error) {
	if err := drive.ValidateExpiry(req.ExpiredType); err != nil {
		return nil, err
	}

	token, err := c.getBdstoken(ctx)
	if err != nil {
		return nil, err
	}

	pwd := req.Password
	if pwd == "" {
		pwd = randomPassword()
	}

	q := url.Values{
		"channel":  {"chunlei"},
		"web":      {"1"},
		"bdstoken": {token},
	}
	form := url.Values{
		"fid_list": {"[" + strings.Join(req.FileIDs, ",") + "]"},
		"schannel": {"4"},
		"pwd":      {pwd},
		"period":   {strconv.Itoa(req.ExpiredType)},
	}

	payload, err := c.http.PostForm(ctx, "/share/set", q, form)
	if err != nil {
		return nil, err
	}

	var resp shareSetResponse
	if err := decode("create_share", payload, &resp); err != nil {
		return nil, err
	}

	if resp.Errno != 0 {
		return nil, apiError("create_share", resp.Errno, "")
	}

	info := &drive.ShareInfo{
		Title:       req.FileName,
		ShareID:     strconv.FormatInt(resp.ShareID, 10),
		URL:         resp.Link,
		Password:    pwd,
		ExpiredType: req.ExpiredType,
		ExpiredLeft: req.ExpiredType,
	}

	if info.URL == "" {
		info.URL = resp.ShortURL
	}

	if req.ExpiredType > 0 {
		info.ExpiredAt = time.Now().AddDate(0, 0, req.ExpiredType)
	}

	return info, nil
}

// CancelShare revokes the given share ids.
func (c *Client) CancelShare(ctx context.Context, shareIDs []string) error {
	if len(shareIDs) == 0 {
		return nil
	}

	token, err := c.getBdstoken(ctx)
	if err != nil {
		return err
	}

	form := url.Values{
		"shareid_list": {"[" + strings.Join(shareIDs, ",") + "]"},
	}

	payload, err := c.http.PostForm(ctx, "/share/cancel", url.Values{"bdstoken": {token}}, form)
	if err != nil {
		return err
	}

	var resp errnoResponse
	if err := decode("cancel_share", payload, &resp); err != nil {
		return err
	}

	return apiError("cancel_share", resp.Errno, "")
}

// ListShareInfo lists the user's own share records, or resolves the metadata
// of one external link.
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
		size = 20
	}

	order := req.OrderBy
	if order == "" {
		order = "ctime"
	}

	q := url.Values{
		"page":  {strconv.Itoa(page)},
		"num":   {strconv.Itoa(size)},
		"order": {order},
		"desc":  {"1"},
	}

	payload, err := c.http.Get(ctx, "/share/record", q)
	if err != nil {
		return nil, err
	}

	var resp shareRecordResponse
	if err := decode("share_record", payload, &resp); err != nil {
		return nil, err
	}

	if resp.Errno != 0 {
		return nil, apiError("share_record", resp.Errno, "")
	}

	now := time.Now()
	out := make([]*drive.ShareInfo, 0, len(resp.List))

	for _, rec := range resp.List {
		info := &drive.ShareInfo{
			Title:       rec.TypicalPath,
			ShareID:     strconv.FormatInt(rec.ShareID, 10),
			URL:         rec.ShortURL,
			Password:    rec.Passwd,
			ExpiredType: rec.ExpiredType,
			Status:      rec.Status,
			ViewCount:   rec.ViewCount,
			PathInfo:    rec.TypicalPath,
		}

		if len(rec.FsIDs) > 0 {
			info.FileID = strconv.FormatUint(rec.FsIDs[0], 10)
		}

		if rec.ExpiredTime > 0 {
			info.ExpiredAt = time.Unix(rec.ExpiredTime, 0)
			info.ExpiredLeft = daysUntil(now, info.ExpiredAt)
		}

		out = append(out, info)
	}

	return out, nil
}

func (c *Client) resolveLinkShare(ctx context.Context, shareURL string) ([]*drive.ShareInfo, error) {
	short, err := extractShortURL(shareURL)
	if err != nil {
		return nil, drive.NewError(providerType, "share_info", 105, err.Error(), drive.ErrPathInvalid)
	}

	q := url.Values{
		"shorturl": {short},
		"root":     {"1"},
	}

	payload, err := c.http.Get(ctx, "/api/shorturlinfo", q)
	if err != nil {
		return nil, err
	}

	var resp shorturlInfoResponse
	if err := decode("share_info", payload, &resp); err != nil {
		return nil, err
	}

	if resp.Errno != 0 {
		return nil, apiError("share_info", resp.Errno, "")
	}

	info := &drive.ShareInfo{
		Title:       resp.Title,
		ShareID:     strconv.FormatInt(resp.ShareID, 10),
		URL:         shareURL,
		ExpiredType: resp.ExpiredType,
	}

	if resp.ExpiredTime > 0 {
		info.ExpiredAt = time.Unix(resp.ExpiredTime, 0)
		info.ExpiredLeft = daysUntil(time.Now(), info.ExpiredAt)
	}

	return []*drive.ShareInfo{info}, nil
}

var (
	shortURLPattern = regexp.MustCompile(`baidu\.com/s/([\w-]+)`)
	surlPattern     = regexp.MustCompile(`[?&]surl=([\w-]+)`)
)

// extractShortURL pulls the short id out of a share URL. A bare id passes
// through unchanged.
func extractShortURL(shareURL string) (string, error) {
	if m := shortURLPattern.FindStringSubmatch(shareURL); m != nil {
		return m[1], nil
	}

	if m := surlPattern.FindStringSubmatch(shareURL); m != nil {
		return "1" + m[1], nil
	}

	if !strings.Contains(shareURL, "http") && !strings.Contains(shareURL, "baidu") {
		return shareURL, nil
	}

	return "", fmt.Errorf("无法从分享链接中提取短链接ID: %s", shareURL)
}

// daysUntil counts whole days from now to deadline, negative once past.
func daysUntil(now, deadline time.Time) int {
	return int(deadline.Sub(now).Hours() / 24)
}

const passwordAlphabet = "abcdefghjkmnpqrstuvwxyz23456789"

func randomPassword() string {
	b := make([]byte, 4)
	for i := range b {
		b[i] = passwordAlphabet[rand.IntN(len(passwordAlphabet))] //nolint:gosec // share passcodes are not secrets
	}

	return string(b)
}
