package services

import (
	"encoding/json"
	"fmt"
	"log"
	"path/filepath"

	"github.com/GrainArc/RasterLab/config"
	"github.com/GrainArc/RasterLab/geotile"
	"github.com/GrainArc/RasterLab/models"
	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// 切片默认参数，与上传接口的表单缺省值一致
const (
	DefaultTileWidth  = 256
	DefaultTileHeight = 256
	DefaultOverlap    = 0.25
)

// SliceRequest 切片请求参数
type SliceRequest struct {
	SourcePath string  `json:"source_path" binding:"required"`
	SourceName string  `json:"source_name"`
	TileWidth  int     `json:"tile_width" binding:"required"`
	TileHeight int     `json:"tile_height" binding:"required"`
	Overlap    float64 `json:"overlap"`
}

// SliceResponse 切片结果
type SliceResponse struct {
	OriginalBBox geotile.GeoBoundingBox   `json:"original_bbox"`
	Tiles        []geotile.TileDescriptor `json:"tiles"`
	TotalTiles   int                      `json:"total_tiles"`
	TileWidth    int                      `json:"tile_width"`
	TileHeight   int                      `json:"tile_height"`
	OverlapRatio float64                  `json:"overlap_ratio"`
	SessionID    string                   `json:"session_id"`
	TilesDir     string                   `json:"tiles_directory"`
}

// SliceTaskResponse 异步任务提交响应
type SliceTaskResponse struct {
	TaskID    string `json:"task_id"`
	SessionID string `json:"session_id"`
	OutputDir string `json:"output_dir"`
	Message   string `json:"message"`
}

// TilesRoot 瓦片会话根目录
func TilesRoot() string {
	return filepath.Join(config.MainConfig.DataDir, "tiles")
}

// UploadsRoot 上传文件暂存目录
func UploadsRoot() string {
	return filepath.Join(config.MainConfig.DataDir, "uploads")
}

// TileService 栅格切片服务
type TileService struct {
}

// Slice 同步切片。sessionID 由调用方生成，瓦片写入会话目录，
// 会话信息落库后返回完整结果。
func (s *TileService) Slice(req *SliceRequest, sessionID string) (*SliceResponse, error) {
	return s.slice(req, sessionID, nil)
}

// StartSliceTask 启动异步切片任务
func (s *TileService) StartSliceTask(req *SliceRequest) (*SliceTaskResponse, error) {
	if err := geotile.ValidateParams(req.TileWidth, req.TileHeight, req.Overlap); err != nil {
		return nil, err
	}
	if req.SourceName == "" {
		req.SourceName = filepath.Base(req.SourcePath)
	}

	// 生成TaskID
	taskID := uuid.New().String()
	sessionID := geotile.NewSessionID(req.SourceName)
	outputDir := filepath.Join(TilesRoot(), sessionID)

	// 序列化参数
	argsJSON, _ := json.Marshal(req)
	// 创建记录
	record := &models.TileTask{
		TaskID:     taskID,
		SessionID:  sessionID,
		SourcePath: req.SourcePath,
		OutputPath: outputDir,
		Status:     0, // 运行中
		TypeName:   "slice",
		Args:       datatypes.JSON(argsJSON),
	}
	if err := models.DB.Create(record).Error; err != nil {
		return nil, fmt.Errorf("创建任务记录失败: %w", err)
	}

	task := NewSliceTask(taskID, sessionID, req.SourcePath, outputDir)
	SliceTasks.Add(task)

	// 启动异步任务
	go s.executeSliceTask(task, req, sessionID)

	return &SliceTaskResponse{
		TaskID:    taskID,
		SessionID: sessionID,
		OutputDir: outputDir,
		Message:   "任务已提交",
	}, nil
}

// executeSliceTask 执行切片任务
func (s *TileService) executeSliceTask(task *SliceTask, req *SliceRequest, sessionID string) {
	var finalStatus int = 1 // 默认成功
	defer func() {
		if r := recover(); r != nil {
			finalStatus = 2 // 执行失败
			task.fail(fmt.Errorf("任务异常退出: %v", r))
		}
		// 更新任务状态
		models.DB.Model(&models.TileTask{}).Where("task_id = ?", task.TaskID).Update("status", finalStatus)
	}()

	task.update("running", 0, "开始切片")
	resp, err := s.slice(req, sessionID, func(done, total int) {
		task.update("running", float64(done)/float64(total), fmt.Sprintf("已处理 %d/%d 个切片窗口", done, total))
	})
	if err != nil {
		finalStatus = 2
		task.fail(err)
		return
	}
	task.complete(resp)
}

// GetTaskRecord 查询任务的持久化记录
func (s *TileService) GetTaskRecord(taskID string) (*models.TileTask, error) {
	var record models.TileTask
	if err := models.DB.Where("task_id = ?", taskID).First(&record).Error; err != nil {
		return nil, err
	}
	return &record, nil
}

type progressFunc func(done, total int)

// progressWriter 包装瓦片写出器，按已处理窗口数上报进度
type progressWriter struct {
	inner  geotile.TileWriter
	total  int
	done   int
	report progressFunc
}

func (w *progressWriter) WriteTile(win geotile.PixelWindow, transform [6]float64, id int) (string, string, error) {
	name, path, err := w.inner.WriteTile(win, transform, id)
	w.done++
	if w.report != nil && w.total > 0 {
		w.report(w.done, w.total)
	}
	return name, path, err
}

// slice 切片主流程：打开栅格、归一化范围、分窗写出、会话落库
func (s *TileService) slice(req *SliceRequest, sessionID string, onProgress progressFunc) (*SliceResponse, error) {
	if err := geotile.ValidateParams(req.TileWidth, req.TileHeight, req.Overlap); err != nil {
		return nil, err
	}
	sourceName := req.SourceName
	if sourceName == "" {
		sourceName = filepath.Base(req.SourcePath)
	}

	r, err := geotile.Open(req.SourcePath)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	bbox, assumed, err := r.NormalizeBounds()
	if err != nil {
		return nil, err
	}
	if assumed {
		log.Printf("栅格 %s 未定义坐标系，按WGS84经纬度处理", sourceName)
	}

	cfg := geotile.Config{
		TileWidth:  req.TileWidth,
		TileHeight: req.TileHeight,
		Overlap:    req.Overlap,
	}

	tilesDir := filepath.Join(TilesRoot(), sessionID)
	writer, err := geotile.NewGeoTIFFWriter(r, tilesDir)
	if err != nil {
		return nil, err
	}

	var tw geotile.TileWriter = writer
	if onProgress != nil {
		d := r.Descriptor()
		wins, err := geotile.PlanWindows(d.Width, d.Height, cfg)
		if err != nil {
			return nil, err
		}
		tw = &progressWriter{inner: writer, total: len(wins), report: onProgress}
	}

	outcomes, err := geotile.Partition(r, cfg, tw)
	if err != nil {
		return nil, err
	}

	// 写出失败的窗口记日志后跳过，不中断会话
	for _, oc := range outcomes {
		if oc.Err != nil {
			log.Printf("窗口 %d (列%d,行%d) 瓦片写出失败: %v", oc.Index, oc.Window.ColStart, oc.Window.RowStart, oc.Err)
		}
	}

	tiles := geotile.Tiles(outcomes)
	for i := range tiles {
		tiles[i].DownloadURL = fmt.Sprintf("/download-tile/%s/%s", sessionID, tiles[i].FileName)
	}

	resp := &SliceResponse{
		OriginalBBox: bbox,
		Tiles:        tiles,
		TotalTiles:   len(tiles),
		TileWidth:    req.TileWidth,
		TileHeight:   req.TileHeight,
		OverlapRatio: req.Overlap,
		SessionID:    sessionID,
		TilesDir:     tilesDir,
	}

	s.saveSession(req, sourceName, resp)
	return resp, nil
}

// saveSession 会话信息入库。入库失败只记日志，瓦片已经落盘，不影响切片结果。
func (s *TileService) saveSession(req *SliceRequest, sourceName string, resp *SliceResponse) {
	db := models.GetDB()
	if db == nil {
		return
	}
	argsJSON, _ := json.Marshal(map[string]interface{}{
		"tile_width":  resp.TileWidth,
		"tile_height": resp.TileHeight,
		"overlap":     resp.OverlapRatio,
	})
	record := &models.TileSession{
		SessionID:  resp.SessionID,
		SourceName: sourceName,
		SourcePath: req.SourcePath,
		TilesDir:   resp.TilesDir,
		TileCount:  resp.TotalTiles,
		Status:     1,
		Args:       datatypes.JSON(argsJSON),
	}
	if err := db.Create(record).Error; err != nil {
		log.Printf("保存切片会话记录失败: %v", err)
	}
}
