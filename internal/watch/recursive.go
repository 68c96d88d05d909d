package watch

import (
	"io/fs"
	"os"
	"path/filepath"
)

// addSpecWatches registers the configured roots, walking recursive specs
// down to every existing subdirectory.
func (watcher *Watcher) addSpecWatches() error {
	for _, spec := range watcher.specs {
		if err := watcher.addWatch(spec.Path); err != nil {
			return err
		}
		if !spec.Recursive {
			continue
		}
		dirs, err := collectSubdirs(spec.Path)
		if err != nil {
			return err
		}
		for _, dir := range dirs {
			if err := watcher.addWatch(dir); err != nil {
				return err
			}
		}
	}
	return nil
}

// maybeExtendRecursiveWatch registers a newly created directory (and any
// directories already created beneath it) when it falls under a recursive
// root, so events inside it are not missed going forward.
func (watcher *Watcher) maybeExtendRecursiveWatch(path string) {
	covered := false
	for _, spec := range watcher.specs {
		if spec.Recursive && spec.Covers(path) {
			covered = true
			break
		}
	}
	if !covered {
		return
	}

	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		return
	}

	if err := watcher.addWatch(path); err != nil {
		watcher.logWarn("recursive watch extension failed", map[string]string{
			"path":  path,
			"error": err.Error(),
		})
		return
	}
	dirs, err := collectSubdirs(path)
	if err != nil {
		return
	}
	for _, dir := range dirs {
		if err := watcher.addWatch(dir); err != nil {
			watcher.logWarn("recursive watch extension failed", map[string]string{
				"path":  dir,
				"error": err.Error(),
			})
		}
	}
}

func (watcher *Watcher) addWatch(path string) error {
	watcher.mutex.Lock()
	if watcher.closed {
		watcher.mutex.Unlock()
		return nil
	}
	if _, ok := watcher.watched[path]; ok {
		watcher.mutex.Unlock()
		return nil
	}
	watcher.watched[path] = struct{}{}
	source := watcher.watcher
	activeCount := len(watcher.watched)
	watcher.mutex.Unlock()

	if source == nil {
		return nil
	}
	if err := source.Add(path); err != nil {
		watcher.mutex.Lock()
		delete(watcher.watched, path)
		watcher.mutex.Unlock()
		return err
	}

	watcher.registry.SetActiveWatches(activeCount)
	watcher.logDebug("watch added", path, activeCount)
	return nil
}

func collectSubdirs(root string) ([]string, error) {
	dirs := []string{}
	err := filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !entry.IsDir() || path == root {
			return nil
		}
		dirs = append(dirs, path)
		return nil
	})
	return dirs, err
}
