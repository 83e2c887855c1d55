//go:build linux

package watcher

import (
	"context"
	"fmt"
	"iter"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"sync"

	"github.com/sourcegraph/conc/pool"

	"github.com/ZanzyTHEbar/inotify-watcher/inwatch/inotify"
)

// AddAll lazily walks the subtree rooted at root bottom-up (deepest
// subdirectories first, root itself last) and installs a watch on every
// directory, yielding each descriptor as it is added.
//
// Every subdirectory is added with mask|OnlyDir. Between a name being listed
// and its watch being installed, the entry may have been deleted and
// replaced by a non-directory of the same name; OnlyDir keeps such a watch
// from attaching to the wrong kind of object. root is added last with the
// caller's unmodified mask, since a non-directory root is legitimate.
//
// Errors in the ignorable set are skipped silently. Any other error is
// passed to onError when non-nil; a non-nil return aborts the walk and is
// yielded as the final pair. A nil onError ignores every error.
//
// The sequence must be drained for the walk to complete. Breaking out early
// leaves a partially-applied watch set; use AddTree for all-or-nothing
// semantics.
func (w *Watcher) AddAll(root string, mask uint32, onError ErrorPolicy) iter.Seq2[int, error] {
	root = filepath.Clean(root)
	return func(yield func(int, error) bool) {
		if !w.walkSubdirs(root, mask, onError, yield) {
			return
		}
		wd, err := w.Add(root, mask)
		if err != nil {
			if abort := w.walkError(err, onError); abort != nil {
				yield(-1, abort)
			}
			return
		}
		yield(wd, nil)
	}
}

// walkSubdirs adds watches for every directory strictly below dir, deepest
// first. It returns false when the walk was aborted, either by the error
// policy or by the consumer breaking out of the sequence.
func (w *Watcher) walkSubdirs(dir string, mask uint32, onError ErrorPolicy, yield func(int, error) bool) bool {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if abort := w.walkError(err, onError); abort != nil {
			yield(-1, abort)
			return false
		}
		return true
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		sub := filepath.Join(dir, entry.Name())
		if !w.walkSubdirs(sub, mask, onError, yield) {
			return false
		}
		wd, err := w.Add(sub, mask|inotify.OnlyDir)
		if err != nil {
			if abort := w.walkError(err, onError); abort != nil {
				yield(-1, abort)
				return false
			}
			continue
		}
		if !yield(wd, nil) {
			return false
		}
	}
	return true
}

// walkError applies the ignore set, then the caller's policy. A non-nil
// result aborts the walk.
func (w *Watcher) walkError(err error, onError ErrorPolicy) error {
	if Ignorable(err) {
		w.logger.Debug("ignoring benign walk error", "error", err)
		return nil
	}
	if onError == nil {
		w.logger.Debug("no error policy, skipping walk error", "error", err)
		return nil
	}
	return onError(err)
}

// AddTree is the eager, all-or-nothing variant of AddAll: the subtree is
// enumerated concurrently, watches are installed deepest level first, and on
// a non-ignorable failure the call undoes itself: watches it installed are
// removed and watches that existed before the call get their previous masks
// re-applied. On success, pre-existing watches keep their descriptors with
// the new mask.
func (w *Watcher) AddTree(ctx context.Context, root string, mask uint32) ([]int, error) {
	root = filepath.Clean(root)
	dirs, err := w.scanTree(ctx, root)
	if err != nil {
		return nil, err
	}

	wds := make([]int, 0, len(dirs)+1)
	added := make([]int, 0, len(dirs)+1)
	prior := make(map[string]uint32)
	rollback := func() {
		for _, wd := range added {
			if err := w.Remove(wd); err != nil {
				w.logger.Warn("rollback of partial tree failed", "wd", wd, "error", err)
			}
		}
		for path, prevMask := range prior {
			if _, err := w.Add(path, prevMask); err != nil {
				w.logger.Warn("rollback could not restore mask", "path", path, "error", err)
			}
		}
	}
	install := func(path string, addMask uint32) error {
		_, prevMask, existed := w.LookupPath(path)
		wd, err := w.Add(path, addMask)
		if err != nil {
			return err
		}
		wds = append(wds, wd)
		if existed {
			prior[path] = prevMask
		} else {
			added = append(added, wd)
		}
		return nil
	}

	for _, dir := range dirs {
		if err := install(dir, mask|inotify.OnlyDir); err != nil {
			if Ignorable(err) {
				continue
			}
			rollback()
			return nil, fmt.Errorf("watcher: add tree %s: %w", root, err)
		}
	}
	if err := install(root, mask); err != nil {
		rollback()
		return nil, fmt.Errorf("watcher: add tree %s: %w", root, err)
	}
	return wds, nil
}

// scanTree enumerates every directory strictly below root, level by level
// with a bounded worker pool, and returns them deepest level first. Paths in
// the same level come back sorted for deterministic registration order.
func (w *Watcher) scanTree(ctx context.Context, root string) ([]string, error) {
	maxWorkers := min(max(runtime.NumCPU()*2, 4), 32)

	levels := make([][]string, 0, 8)
	current := []string{root}
	for len(current) > 0 {
		next := make([]string, 0)
		var nextMu sync.Mutex

		levelPool := pool.New().WithMaxGoroutines(maxWorkers).WithContext(ctx)
		for _, dir := range current {
			levelPool.Go(func(ctx context.Context) error {
				entries, err := os.ReadDir(dir)
				if err != nil {
					if Ignorable(err) {
						return nil
					}
					return err
				}
				children := make([]string, 0, len(entries))
				for _, entry := range entries {
					if entry.IsDir() {
						children = append(children, filepath.Join(dir, entry.Name()))
					}
				}
				nextMu.Lock()
				next = append(next, children...)
				nextMu.Unlock()
				return nil
			})
		}
		if err := levelPool.Wait(); err != nil {
			return nil, fmt.Errorf("watcher: scan %s: %w", root, err)
		}

		if len(next) > 0 {
			sort.Strings(next)
			levels = append(levels, next)
		}
		current = next
	}

	dirs := make([]string, 0)
	for i := len(levels) - 1; i >= 0; i-- {
		dirs = append(dirs, levels[i]...)
	}
	return dirs, nil
}
