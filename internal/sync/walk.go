package sync

import (
	"context"
	"errors"
	"log/slog"
	"path"
	"time"

	"golang.org/x/text/unicode/norm"

	"github.com/ypsync/ypsync/internal/drive"
	"github.com/ypsync/ypsync/internal/rules"
	"github.com/ypsync/ypsync/internal/store"
)

// job carries the per-run state of one sync walk.
type job struct {
	engine    *Engine
	logger    *slog.Logger
	taskID    int64
	source    store.SrcMeta
	srcRoot   string
	dstRoot   string
	dstRootID string
	strategy  string
	speed     Speed
	filter    *rules.ItemFilter
	renames   []*rules.RenameRule
	stats     *Stats
	policy    *errorPolicy
	aborted   bool
}

// entry wraps a listed item with its display name (after rename rules, for
// source entries) and its canonical level key.
type entry struct {
	info *drive.FileInfo
	name string
	key  string
}

// canonicalKey builds the per-level comparison key: NFC-normalized name,
// with a trailing slash for folders so "movie" the file and "movie" the
// directory never collide.
func canonicalKey(name string, isFolder bool) string {
	key := norm.NFC.String(name)
	if isFolder {
		key += "/"
	}

	return key
}

// syncWithHave diffs one level where the target directory exists.
// Per-level order: transfer missing files first, then recurse into common
// and new folders, and for the full strategy delete strays last.
func (j *job) syncWithHave(ctx context.Context, srcPath, dstPath, dstID string, depth int) {
	if j.stopped(ctx) {
		return
	}

	if depth > j.engine.maxDepth {
		j.logger.Warn("max depth exceeded, stopping descent",
			slog.String("src_path", srcPath), slog.Int("depth", depth))
		return
	}

	src, ok := j.listSourceWithPolicy(ctx, srcPath)
	if !ok {
		return
	}

	dst, missing, ok := j.listTargetWithPolicy(ctx, dstPath, dstID)
	if !ok {
		return
	}

	if missing {
		j.syncWithoutHave(ctx, srcPath, dstPath, dstID, depth)
		return
	}

	dstByKey := make(map[string]*entry, len(dst))
	for _, d := range dst {
		dstByKey[d.key] = d
	}

	srcByKey := make(map[string]*entry, len(src))
	for _, s := range src {
		srcByKey[s.key] = s
	}

	// Files missing on the target, or present with a different size,
	// in source listing order. Equality is name + byte size.
	var toTransfer []*entry

	for _, s := range src {
		if s.info.IsFolder {
			continue
		}

		j.stats.FilesProcessed++

		if t, exists := dstByKey[s.key]; exists && t.info.FileSize == s.info.FileSize {
			j.stats.FilesSkipped++
			continue
		}

		toTransfer = append(toTransfer, s)
	}

	j.transferBatch(ctx, srcPath, dstPath, dstID, toTransfer)

	for _, s := range src {
		if !s.info.IsFolder {
			continue
		}

		if j.stopped(ctx) {
			return
		}

		childSrc := path.Join(srcPath, s.info.FileName)
		childDst := path.Join(dstPath, s.name)

		if t, exists := dstByKey[s.key]; exists {
			j.syncWithHave(ctx, childSrc, childDst, t.info.FileID, depth+1)
		} else {
			j.syncWithoutHave(ctx, childSrc, childDst, dstID, depth+1)
		}
	}

	if j.strategy == store.MethodFull {
		var stray []*entry

		for _, d := range dst {
			if _, exists := srcByKey[d.key]; !exists {
				stray = append(stray, d)
			}
		}

		j.deleteBatch(ctx, dstPath, dstID, stray)
	}
}

// syncWithoutHave materializes a source subtree whose target directory does
// not exist yet: create the directory, transfer this level's files, then
// recurse into each source folder.
func (j *job) syncWithoutHave(ctx context.Context, srcPath, dstPath, parentID string, depth int) {
	if j.stopped(ctx) {
		return
	}

	if depth > j.engine.maxDepth {
		j.logger.Warn("max depth exceeded, stopping descent",
			slog.String("src_path", srcPath), slog.Int("depth", depth))
		return
	}

	dirID, ok := j.mkdirTarget(ctx, srcPath, dstPath, parentID)
	if !ok {
		return
	}

	src, ok := j.listSourceWithPolicy(ctx, srcPath)
	if !ok {
		return
	}

	var toTransfer []*entry

	for _, s := range src {
		if s.info.IsFolder {
			continue
		}

		j.stats.FilesProcessed++
		toTransfer = append(toTransfer, s)
	}

	j.transferBatch(ctx, srcPath, dstPath, dirID, toTransfer)

	for _, s := range src {
		if !s.info.IsFolder {
			continue
		}

		if j.stopped(ctx) {
			return
		}

		j.syncWithoutHave(ctx, path.Join(srcPath, s.info.FileName), path.Join(dstPath, s.name), dirID, depth+1)
	}
}

// runOverwrite resets the target root: one batched delete of everything
// under it, then one batched transfer of every source root entry. No
// recursion; the provider copies directories server-side.
func (j *job) runOverwrite(ctx context.Context) {
	dst, missing, ok := j.listTargetWithPolicy(ctx, j.dstRoot, j.dstRootID)
	if !ok {
		return
	}

	if missing {
		dirID, created := j.mkdirTarget(ctx, j.srcRoot, j.dstRoot, "")
		if !created {
			return
		}

		j.dstRootID = dirID
	}

	j.deleteBatch(ctx, j.dstRoot, j.dstRootID, dst)

	if j.stopped(ctx) {
		return
	}

	src, ok := j.listSourceWithPolicy(ctx, j.srcRoot)
	if !ok {
		return
	}

	for _, s := range src {
		if !s.info.IsFolder {
			j.stats.FilesProcessed++
		}
	}

	j.transferBatch(ctx, j.srcRoot, j.dstRoot, j.dstRootID, src)
}

// stopped reports whether the walk should go no further.
func (j *job) stopped(ctx context.Context) bool {
	if j.aborted {
		return true
	}

	if ctx.Err() != nil {
		j.aborted = true
		return true
	}

	return false
}

// listSourceWithPolicy lists one share level, applying the exclusion filter
// and rename rules, retrying per the error policy.
func (j *job) listSourceWithPolicy(ctx context.Context, srcPath string) ([]*entry, bool) {
	var out []*entry

	ok := j.callWithPolicy(ctx, srcPath, func() error {
		items, err := j.engine.client.ListShare(ctx,
			drive.SourceType(j.source.SourceType), j.source.SourceID, srcPath, j.source.ExtParams)
		if err != nil {
			return err
		}

		out = out[:0]

		for _, fi := range items {
			if j.filter.ShouldExclude(fi.FileName, fi.FilePath, fi.IsFolder) {
				continue
			}

			name := rules.ApplyRenames(j.renames, fi.FileName, fi.FilePath)
			out = append(out, &entry{
				info: fi,
				name: name,
				key:  canonicalKey(name, fi.IsFolder),
			})
		}

		return nil
	})

	return out, ok
}

// listTargetWithPolicy lists one level of the user's own drive. A missing
// directory is not an error: it reports missing=true so the caller can
// switch to the create-then-fill path.
func (j *job) listTargetWithPolicy(ctx context.Context, dstPath, dstID string) (entries []*entry, missing, ok bool) {
	for {
		if j.stopped(ctx) {
			return nil, false, false
		}

		items, err := j.engine.client.ListDisk(ctx, dstPath, dstID)
		if err == nil {
			j.policy.recordSuccess()

			out := make([]*entry, 0, len(items))

			for _, fi := range items {
				if j.filter.ShouldExclude(fi.FileName, fi.FilePath, fi.IsFolder) {
					continue
				}

				out = append(out, &entry{
					info: fi,
					name: fi.FileName,
					key:  canonicalKey(fi.FileName, fi.IsFolder),
				})
			}

			return out, false, true
		}

		if errors.Is(err, drive.ErrNotFound) {
			return nil, true, true
		}

		j.stats.Errors = append(j.stats.Errors, err.Error())

		switch j.policy.decide(ctx, err, dstPath) {
		case actionRetry:
			continue
		case actionAbort:
			j.aborted = true
			return nil, false, false
		default:
			return nil, false, false
		}
	}
}

// callWithPolicy runs op until it succeeds or the policy stops retrying.
// Returns false when the batch was skipped or the job aborted.
func (j *job) callWithPolicy(ctx context.Context, where string, op func() error) bool {
	for {
		if j.stopped(ctx) {
			return false
		}

		err := op()
		if err == nil {
			j.policy.recordSuccess()
			return true
		}

		j.stats.Errors = append(j.stats.Errors, err.Error())

		switch j.policy.decide(ctx, err, where) {
		case actionRetry:
			continue
		case actionAbort:
			j.aborted = true
			return false
		default:
			return false
		}
	}
}

// mkdirTarget creates dstPath (idempotently) and records the create item.
// Returns the new directory's id.
func (j *job) mkdirTarget(ctx context.Context, srcPath, dstPath, parentID string) (string, bool) {
	var dirID string

	ok := j.callWithPolicy(ctx, dstPath, func() error {
		fi, err := j.engine.client.Mkdir(ctx, drive.MkdirRequest{
			Path:          dstPath,
			ParentID:      parentID,
			Name:          path.Base(dstPath),
			ReturnIfExist: true,
		})
		if err != nil {
			return err
		}

		dirID = fi.FileID

		return nil
	})

	status := store.TaskCompleted
	errMsg := ""

	if !ok {
		status = store.TaskFailed
		errMsg = j.lastError()
	}

	j.recordItem(ctx, &store.SyncTaskItem{
		TaskID:   j.taskID,
		Type:     store.ItemCreate,
		SrcPath:  srcPath,
		DstPath:  dstPath,
		FileName: path.Base(dstPath),
		Status:   status,
		ErrMsg:   errMsg,
	})

	if ok {
		j.stats.FoldersCreated++
	}

	return dirID, ok
}

// transferBatch issues one batched server-side copy for this level and
// records one copy item per file. FilesExtInfo mirrors FileIDs index by
// index so adapters can correlate per-file tokens.
func (j *job) transferBatch(ctx context.Context, srcPath, dstPath, dstID string, batch []*entry) {
	if len(batch) == 0 || j.stopped(ctx) {
		return
	}

	fileIDs := make([]string, len(batch))
	extInfo := make([]drive.FileExtEntry, len(batch))

	for i, e := range batch {
		fileIDs[i] = e.info.FileID
		extInfo[i] = drive.FileExtEntry{FileID: e.info.FileID, Ext: e.info.FileExt}
	}

	req := drive.TransferRequest{
		SourceType:   drive.SourceType(j.source.SourceType),
		SourceID:     j.source.SourceID,
		SourcePath:   srcPath,
		TargetPath:   dstPath,
		TargetID:     dstID,
		FileIDs:      fileIDs,
		ExtParams:    j.source.ExtParams,
		FilesExtInfo: extInfo,
	}

	ok := j.callWithPolicy(ctx, srcPath, func() error {
		return j.engine.client.Transfer(ctx, req)
	})

	status := store.TaskCompleted
	errMsg := ""

	if !ok {
		status = store.TaskFailed
		errMsg = j.lastError()
	}

	for _, e := range batch {
		j.recordItem(ctx, &store.SyncTaskItem{
			TaskID:   j.taskID,
			Type:     store.ItemCopy,
			SrcPath:  path.Join(srcPath, e.info.FileName),
			DstPath:  path.Join(dstPath, e.name),
			FileName: e.name,
			FileSize: e.info.FileSize,
			Status:   status,
			ErrMsg:   errMsg,
		})
	}

	if ok {
		j.stats.FilesTransferred += len(batch)
		j.pause(ctx, j.speed.transferPause())
	}
}

// deleteBatch removes the given target entries in one call and records one
// delete item per entry.
func (j *job) deleteBatch(ctx context.Context, dstPath, dstID string, batch []*entry) {
	if len(batch) == 0 || j.stopped(ctx) {
		return
	}

	paths := make([]string, len(batch))
	ids := make([]string, len(batch))

	for i, e := range batch {
		p := e.info.FilePath
		if p == "" {
			p = path.Join(dstPath, e.info.FileName)
		}

		paths[i] = p
		ids[i] = e.info.FileID
	}

	ok := j.callWithPolicy(ctx, dstPath, func() error {
		return j.engine.client.Remove(ctx, drive.RemoveRequest{
			FilePaths: paths,
			FileIDs:   ids,
			ParentID:  dstID,
		})
	})

	status := store.TaskCompleted
	errMsg := ""

	if !ok {
		status = store.TaskFailed
		errMsg = j.lastError()
	}

	for i, e := range batch {
		j.recordItem(ctx, &store.SyncTaskItem{
			TaskID:   j.taskID,
			Type:     store.ItemDelete,
			DstPath:  paths[i],
			FileName: e.info.FileName,
			FileSize: e.info.FileSize,
			Status:   status,
			ErrMsg:   errMsg,
		})
	}

	if ok {
		j.stats.FilesDeleted += len(batch)
		j.pause(ctx, j.speed.deletePause())
	}
}

// recordItem appends a task item. Recording survives cancellation so an
// in-flight operation's outcome is never lost; persistence failures are
// logged, not fatal to the walk.
func (j *job) recordItem(ctx context.Context, item *store.SyncTaskItem) {
	if _, err := j.engine.store.AppendTaskItem(context.WithoutCancel(ctx), item); err != nil {
		j.logger.Error("recording task item",
			slog.String("type", item.Type),
			slog.String("file_name", item.FileName),
			slog.String("error", err.Error()),
		)
	}
}

// pause applies the speed throttle after a batched call.
func (j *job) pause(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}

	if err := j.engine.sleepFunc(ctx, d); err != nil {
		j.aborted = true
	}
}

// lastError returns the most recently collected error string.
func (j *job) lastError() string {
	if n := len(j.stats.Errors); n > 0 {
		return j.stats.Errors[n-1]
	}

	return ""
}
