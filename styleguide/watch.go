package styleguide

import (
	"context"
	"fmt"

	"github.com/fsnotify/fsnotify"
)

// Watch invalidates cached guidelines when their files change. It blocks
// until ctx is done.
func (p *DirProvider) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fsnotify watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(p.dir); err != nil {
		return fmt.Errorf("watch %s: %w", p.dir, err)
	}
	p.logger.Infof("watching %s for guideline changes", p.dir)

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !ev.Op.Has(fsnotify.Write) && !ev.Op.Has(fsnotify.Create) &&
				!ev.Op.Has(fsnotify.Remove) && !ev.Op.Has(fsnotify.Rename) {
				continue
			}
			id, ok := idFromPath(ev.Name)
			if !ok {
				continue
			}
			p.Invalidate(id)
			p.logger.Debugf("invalidated %s after %s", id, ev.Op)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			p.logger.Warnf("watch error: %v", err)
		}
	}
}
