package views

import (
	"errors"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/GrainArc/RasterLab/geotile"
	"github.com/GrainArc/RasterLab/response"
	"github.com/GrainArc/RasterLab/services"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

type TaskHandler struct {
	tileService *services.TileService
}

func NewTaskHandler() *TaskHandler {
	return &TaskHandler{
		tileService: &services.TileService{},
	}
}

// WebSocket升级器
var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // 生产环境需要更严格的检查
	},
}

// StartSliceTask 提交异步切片任务
// @Summary 对服务器上已有的GeoTIFF文件启动后台切片
// @Accept json
// @Param request body services.SliceRequest true "切片参数"
func (h *TaskHandler) StartSliceTask(c *gin.Context) {
	var req services.SliceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "请求参数格式错误: "+err.Error())
		return
	}
	if _, err := os.Stat(req.SourcePath); err != nil {
		response.BadRequest(c, "源文件不存在: "+req.SourcePath)
		return
	}

	result, err := h.tileService.StartSliceTask(&req)
	if err != nil {
		var paramErr *geotile.InvalidParameterError
		if errors.As(err, &paramErr) {
			response.BadRequest(c, err.Error())
			return
		}
		log.Printf("提交切片任务失败: %v", err)
		response.InternalError(c, err.Error())
		return
	}
	response.Success(c, result)
}

// GetTaskStatus 查询任务状态，优先取内存态，进程重启后回退到数据库记录
func (h *TaskHandler) GetTaskStatus(c *gin.Context) {
	taskID := c.Param("task_id")

	if task, ok := services.SliceTasks.Get(taskID); ok {
		response.Success(c, task.Snapshot())
		return
	}

	record, err := h.tileService.GetTaskRecord(taskID)
	if err != nil {
		response.NotFound(c, "任务不存在")
		return
	}
	response.Success(c, record)
}

// TaskWebSocket 订阅任务进度推送
func (h *TaskHandler) TaskWebSocket(c *gin.Context) {
	taskID := c.Param("task_id")

	task, ok := services.SliceTasks.Get(taskID)
	if !ok {
		response.NotFound(c, "任务不存在")
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("WebSocket upgrade error: %v", err)
		return
	}
	defer conn.Close()

	subscriberID := uuid.New().String()
	progressChan := task.Subscribe(subscriberID)
	defer task.Unsubscribe(subscriberID)

	// 发送当前状态
	snap := task.Snapshot()
	current := services.ProgressUpdate{
		Progress: snap.Progress,
		Message:  snap.Message,
		Status:   snap.Status,
	}
	if err := conn.WriteJSON(current); err != nil {
		log.Printf("Error sending initial status: %v", err)
		return
	}

	// 读取客户端消息的goroutine（用于检测连接断开）
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	// 转发进度更新
	for {
		select {
		case update, ok := <-progressChan:
			if !ok {
				return
			}
			if err := conn.WriteJSON(update); err != nil {
				log.Printf("Error sending progress update: %v", err)
				return
			}
			// 任务结束后给客户端一点时间接收消息再关闭
			if update.Status == "completed" || update.Status == "failed" {
				time.Sleep(time.Second)
				return
			}
		case <-done:
			return
		}
	}
}
