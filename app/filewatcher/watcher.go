package filewatcher

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"wanx-studio/app/logger"
	"wanx-studio/app/storage"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce 合并短时间内连续事件的等待时间
const DefaultDebounce = 300 * time.Millisecond

// AssetsWatcher 监控任务目录的外部修改，变化时通知调用方刷新缓存
type AssetsWatcher struct {
	root     string
	onChange func()
	debounce time.Duration
	watcher  *fsnotify.Watcher
	logger   *logger.Logger

	stopCh   chan struct{}
	wg       sync.WaitGroup
	watching bool
	mu       sync.Mutex

	timerMu sync.Mutex
	timer   *time.Timer
}

// NewAssetsWatcher 创建任务目录监控器
func NewAssetsWatcher(root string, onChange func(), log *logger.Logger) (*AssetsWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("创建文件监控器失败: %w", err)
	}

	return &AssetsWatcher{
		root:     root,
		onChange: onChange,
		debounce: DefaultDebounce,
		watcher:  watcher,
		logger:   log,
		stopCh:   make(chan struct{}),
	}, nil
}

// Start 启动监控，根目录不存在时自动创建
func (w *AssetsWatcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.watching {
		return fmt.Errorf("任务目录监控器已经在运行")
	}

	if err := os.MkdirAll(w.root, 0755); err != nil {
		return fmt.Errorf("创建任务根目录失败: %w", err)
	}

	if err := w.addWatchPaths(); err != nil {
		return fmt.Errorf("添加监控路径失败: %w", err)
	}

	w.watching = true
	w.wg.Add(1)
	go w.watchLoop()

	w.logger.Infof("任务目录监控器已启动，监控目录: %s", w.root)
	return nil
}

// Stop 停止监控
func (w *AssetsWatcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.watching {
		return nil
	}

	close(w.stopCh)
	err := w.watcher.Close()
	w.wg.Wait()
	w.watching = false

	w.timerMu.Lock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timerMu.Unlock()

	w.logger.Info("任务目录监控器已停止")
	return err
}

// addWatchPaths 监控根目录和每个任务目录，任务目录下没有子目录
func (w *AssetsWatcher) addWatchPaths() error {
	if err := w.watcher.Add(w.root); err != nil {
		return fmt.Errorf("添加根监控目录失败: %w", err)
	}

	entries, err := os.ReadDir(w.root)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		path := filepath.Join(w.root, e.Name())
		if err := w.watcher.Add(path); err != nil {
			w.logger.Warnf("添加任务目录监控失败: %s, 错误: %v", path, err)
		}
	}
	return nil
}

// watchLoop 监控事件循环
func (w *AssetsWatcher) watchLoop() {
	defer w.wg.Done()

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Errorf("任务目录监控器错误: %v", err)

		case <-w.stopCh:
			return
		}
	}
}

// handleEvent 处理文件系统事件
func (w *AssetsWatcher) handleEvent(event fsnotify.Event) {
	name := filepath.Base(event.Name)
	if storage.IsTempFile(name) || event.Op == fsnotify.Chmod {
		return
	}

	// 根目录下新建的任务目录
	if event.Op&fsnotify.Create != 0 && filepath.Dir(event.Name) == filepath.Clean(w.root) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.watcher.Add(event.Name); err != nil {
				w.logger.Warnf("添加新任务目录监控失败: %s, 错误: %v", event.Name, err)
			} else {
				w.logger.Debugf("添加新任务目录监控: %s", event.Name)
			}
		}
	}

	if !isRelevant(w.root, event.Name) {
		return
	}

	w.logger.Debugf("任务目录变化: %s %s", event.Op, event.Name)
	w.schedule()
}

// isRelevant 任务目录本身、任务信息文件和图片文件的变化需要通知
func isRelevant(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return false
	}

	parts := strings.Split(filepath.ToSlash(rel), "/")
	switch len(parts) {
	case 1:
		return true
	case 2:
		name := parts[1]
		return name == storage.TaskInfoFile || strings.HasSuffix(strings.ToLower(name), ".png")
	default:
		return false
	}
}

// schedule 合并连续事件，只触发一次回调
func (w *AssetsWatcher) schedule() {
	w.timerMu.Lock()
	defer w.timerMu.Unlock()

	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.onChange)
}
