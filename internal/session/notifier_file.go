package session

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/psichat/client-go/pkg/log"
)

// FileNotifier is the Notifier paired with a FileTable: local events travel
// over the in-process bus, and an fsnotify watcher on the table file turns
// writes made by other processes into ActionExternal events.
type FileNotifier struct {
	*Bus
	watcher *fsnotify.Watcher
	done    chan struct{}
}

// NewFileNotifier watches the given session table file. The parent directory
// is watched rather than the file itself, because atomic rename-based saves
// replace the inode on every write.
func NewFileNotifier(path string) (*FileNotifier, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create session watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch session directory: %w", err)
	}

	n := &FileNotifier{
		Bus:     NewBus(),
		watcher: watcher,
		done:    make(chan struct{}),
	}
	go n.run(filepath.Clean(path))
	return n, nil
}

func (n *FileNotifier) run(path string) {
	for {
		select {
		case <-n.done:
			return
		case ev, ok := <-n.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != path {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			n.Bus.Publish(context.Background(), Event{Action: ActionExternal})
		case err, ok := <-n.watcher.Errors:
			if !ok {
				return
			}
			logger := log.L()
			logger.Warn().Err(err).Msg("session watcher error")
		}
	}
}

func (n *FileNotifier) Close() error {
	close(n.done)
	err := n.watcher.Close()
	n.Bus.Close()
	return err
}

var _ Notifier = (*FileNotifier)(nil)
