package services

import (
	"sync"
	"time"
)

// ProgressUpdate 进度更新消息
type ProgressUpdate struct {
	Progress float64 `json:"progress"`
	Message  string  `json:"message"`
	Status   string  `json:"status"`
}

// SliceTask 切片异步任务的内存态
type SliceTask struct {
	TaskID     string
	SessionID  string
	SourcePath string
	OutputDir  string
	StartTime  time.Time

	status   string // pending, running, completed, failed
	progress float64
	message  string
	errMsg   string
	endTime  *time.Time
	result   *SliceResponse

	mu          sync.RWMutex
	subscribers map[string]chan ProgressUpdate
}

// TaskStatus 任务状态快照
type TaskStatus struct {
	TaskID     string         `json:"task_id"`
	Status     string         `json:"status"`
	Progress   float64        `json:"progress"`
	Message    string         `json:"message"`
	SessionID  string         `json:"session_id"`
	SourcePath string         `json:"source_path"`
	OutputDir  string         `json:"output_dir"`
	StartTime  time.Time      `json:"start_time"`
	EndTime    *time.Time     `json:"end_time,omitempty"`
	Duration   string         `json:"duration,omitempty"`
	Error      string         `json:"error,omitempty"`
	Result     *SliceResponse `json:"result,omitempty"`
}

func NewSliceTask(taskID, sessionID, sourcePath, outputDir string) *SliceTask {
	return &SliceTask{
		TaskID:      taskID,
		SessionID:   sessionID,
		SourcePath:  sourcePath,
		OutputDir:   outputDir,
		StartTime:   time.Now(),
		status:      "pending",
		message:     "任务已创建",
		subscribers: make(map[string]chan ProgressUpdate),
	}
}

// Subscribe 注册进度订阅者，返回接收通道
func (t *SliceTask) Subscribe(id string) chan ProgressUpdate {
	ch := make(chan ProgressUpdate, 100)
	t.mu.Lock()
	t.subscribers[id] = ch
	t.mu.Unlock()
	return ch
}

// Unsubscribe 注销订阅者并关闭其通道
func (t *SliceTask) Unsubscribe(id string) {
	t.mu.Lock()
	if ch, ok := t.subscribers[id]; ok {
		delete(t.subscribers, id)
		close(ch)
	}
	t.mu.Unlock()
}

// Snapshot 当前状态快照
func (t *SliceTask) Snapshot() TaskStatus {
	t.mu.RLock()
	defer t.mu.RUnlock()

	st := TaskStatus{
		TaskID:     t.TaskID,
		Status:     t.status,
		Progress:   t.progress,
		Message:    t.message,
		SessionID:  t.SessionID,
		SourcePath: t.SourcePath,
		OutputDir:  t.OutputDir,
		StartTime:  t.StartTime,
		Error:      t.errMsg,
		Result:     t.result,
	}
	if t.endTime != nil {
		st.EndTime = t.endTime
		st.Duration = t.endTime.Sub(t.StartTime).String()
	}
	return st
}

// update 更新状态并广播给全部订阅者
func (t *SliceTask) update(status string, progress float64, message string) {
	t.mu.Lock()
	t.status = status
	t.progress = progress
	t.message = message
	t.mu.Unlock()

	t.broadcast(ProgressUpdate{Progress: progress, Message: message, Status: status})
}

func (t *SliceTask) complete(result *SliceResponse) {
	now := time.Now()
	t.mu.Lock()
	t.status = "completed"
	t.progress = 1.0
	t.message = "切片完成"
	t.result = result
	t.endTime = &now
	t.mu.Unlock()

	t.broadcast(ProgressUpdate{Progress: 1.0, Message: "切片完成", Status: "completed"})
}

func (t *SliceTask) fail(err error) {
	now := time.Now()
	t.mu.Lock()
	t.status = "failed"
	t.message = "切片失败"
	t.errMsg = err.Error()
	t.endTime = &now
	progress := t.progress
	t.mu.Unlock()

	t.broadcast(ProgressUpdate{Progress: progress, Message: err.Error(), Status: "failed"})
}

// broadcast 广播进度更新到所有订阅者
func (t *SliceTask) broadcast(update ProgressUpdate) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	for _, ch := range t.subscribers {
		select {
		case ch <- update:
		default:
			// 通道已满，跳过
		}
	}
}

// TaskManager 任务管理器
type TaskManager struct {
	tasks map[string]*SliceTask
	mu    sync.RWMutex
}

// 全局任务管理器
var SliceTasks = &TaskManager{
	tasks: make(map[string]*SliceTask),
}

// Add 添加任务
func (tm *TaskManager) Add(task *SliceTask) {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	tm.tasks[task.TaskID] = task
}

// Get 获取任务
func (tm *TaskManager) Get(taskID string) (*SliceTask, bool) {
	tm.mu.RLock()
	defer tm.mu.RUnlock()
	task, ok := tm.tasks[taskID]
	return task, ok
}

// Remove 移除任务
func (tm *TaskManager) Remove(taskID string) {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	delete(tm.tasks, taskID)
}
