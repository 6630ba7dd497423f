package storage

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sort"

	"wanx-studio/app/logger"
	"wanx-studio/app/model"
)

// TaskDirectory 任务记录持久化：每个任务一个目录，目录下一个 task-info.json
type TaskDirectory struct {
	root   string
	logger *logger.Logger
}

// NewTaskDirectory 创建任务目录存储
func NewTaskDirectory(root string, log *logger.Logger) *TaskDirectory {
	return &TaskDirectory{
		root:   root,
		logger: log,
	}
}

// InfoPath 返回任务信息文件路径
func (d *TaskDirectory) InfoPath(taskID string) string {
	return filepath.Join(taskDir(d.root, taskID), TaskInfoFile)
}

// Load 读取任务记录，不存在或无法解析时返回 nil
func (d *TaskDirectory) Load(taskID string) *model.TaskRecord {
	rec, err := d.read(taskID)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			d.logger.Warnf("%v", err)
		}
		return nil
	}
	return rec
}

func (d *TaskDirectory) read(taskID string) (*model.TaskRecord, error) {
	path := d.InfoPath(taskID)
	if err := validateTaskID(taskID); err != nil {
		return nil, &StorageReadError{TaskID: taskID, Path: path, Err: err}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &StorageReadError{TaskID: taskID, Path: path, Err: err}
	}

	var rec model.TaskRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, &StorageReadError{TaskID: taskID, Path: path, Err: err}
	}
	if rec.TaskID == "" {
		rec.TaskID = taskID
	}
	if rec.Images == nil {
		rec.Images = []model.ArtifactRef{}
	}
	return &rec, nil
}

// Save 写入任务记录，原子替换旧文件
func (d *TaskDirectory) Save(taskID string, rec *model.TaskRecord) error {
	path := d.InfoPath(taskID)
	if err := validateTaskID(taskID); err != nil {
		return &StorageWriteError{TaskID: taskID, Path: path, Err: err}
	}

	// 确保任务目录存在
	if err := os.MkdirAll(taskDir(d.root, taskID), 0755); err != nil {
		return &StorageWriteError{TaskID: taskID, Path: path, Err: err}
	}

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return &StorageWriteError{TaskID: taskID, Path: path, Err: err}
	}

	if err := atomicWriteFile(path, data, 0644); err != nil {
		return &StorageWriteError{TaskID: taskID, Path: path, Err: err}
	}

	d.logger.Debugf("任务信息已保存到: %s", path)
	return nil
}

// TaskIDs 列出根目录下所有任务目录名，按字典序排序
func (d *TaskDirectory) TaskIDs() ([]string, error) {
	entries, err := os.ReadDir(d.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() || validateTaskID(e.Name()) != nil {
			continue
		}
		ids = append(ids, e.Name())
	}
	sort.Strings(ids)
	return ids, nil
}

// ScanAll 读取所有任务记录，跳过无法读取的记录
func (d *TaskDirectory) ScanAll() []*model.TaskRecord {
	ids, err := d.TaskIDs()
	if err != nil {
		d.logger.Errorf("扫描任务目录失败: %v", err)
		return nil
	}

	records := make([]*model.TaskRecord, 0, len(ids))
	for _, id := range ids {
		rec, err := d.read(id)
		if err != nil {
			d.logger.Debugf("跳过任务目录 %s: %v", id, err)
			continue
		}
		records = append(records, rec)
	}

	d.logger.Debugf("扫描到 %d 个任务目录", len(records))
	return records
}
