package views

import (
	"bytes"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/GrainArc/RasterLab/geotile"
	"github.com/GrainArc/RasterLab/methods"
	"github.com/GrainArc/RasterLab/response"
	"github.com/GrainArc/RasterLab/services"
	"github.com/chai2010/webp"
	"github.com/gin-gonic/gin"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

type TileHandler struct {
	tileService *services.TileService
	infoService *services.RasterInfoService
	store       *services.SessionStore
}

func NewTileHandler() *TileHandler {
	return &TileHandler{
		tileService: &services.TileService{},
		infoService: &services.RasterInfoService{},
		store:       services.NewSessionStore(),
	}
}

// ServiceInfo 服务信息
func (h *TileHandler) ServiceInfo(c *gin.Context) {
	response.Success(c, gin.H{
		"name":    "RasterLab API",
		"version": "2.0.0",
		"endpoints": gin.H{
			"upload":       "POST /upload-geotiff",
			"sessions":     "GET /sessions",
			"list":         "GET /list-tiles/{session_id}",
			"download":     "GET /download-tile/{session_id}/{filename}",
			"download_all": "GET /download-all-tiles/{session_id}",
			"footprints":   "GET /tile-footprints/{session_id}",
			"preview":      "GET /preview-tile/{session_id}/{filename}",
			"cleanup":      "DELETE /cleanup-session/{session_id}",
			"raster_info":  "POST /raster-info",
			"slice_task":   "POST /tasks/slice",
			"task_status":  "GET /tasks/{task_id}",
			"task_ws":      "GET /ws/task/{task_id}",
		},
	})
}

// Health 健康检查
func (h *TileHandler) Health(c *gin.Context) {
	response.Success(c, gin.H{"status": "healthy"})
}

// UploadGeoTIFF 上传GeoTIFF并同步切片
// @Summary 上传GeoTIFF文件（或包含单个GeoTIFF的压缩包）并按指定参数切片
// @Accept multipart/form-data
// @Param file formData file true "GeoTIFF文件或zip/rar压缩包"
// @Param tile_width formData int false "瓦片宽度（像素）" default(256)
// @Param tile_height formData int false "瓦片高度（像素）" default(256)
// @Param overlap formData number false "相邻瓦片重叠比例，0到1之间" default(0.25)
func (h *TileHandler) UploadGeoTIFF(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		response.BadRequest(c, "请选择要上传的文件")
		return
	}

	ext := strings.ToLower(filepath.Ext(file.Filename))
	if !methods.IsStringInSlice(ext, []string{".tif", ".tiff", ".zip", ".rar"}) {
		response.BadRequest(c, "仅支持 .tif/.tiff 文件或包含GeoTIFF的压缩包")
		return
	}

	tileWidth := formInt(c, "tile_width", services.DefaultTileWidth)
	tileHeight := formInt(c, "tile_height", services.DefaultTileHeight)
	overlap := formFloat(c, "overlap", services.DefaultOverlap)
	if err := geotile.ValidateParams(tileWidth, tileHeight, overlap); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	// 会话标识用于上传文件与瓦片目录的命名
	stem := methods.SanitizeName(strings.TrimSuffix(filepath.Base(file.Filename), ext))
	if stem == "" {
		stem = "raster"
	}
	sessionID := geotile.NewSessionID(stem + ext)

	uploadsDir := services.UploadsRoot()
	if err := os.MkdirAll(uploadsDir, 0755); err != nil {
		response.InternalError(c, "创建上传目录失败: "+err.Error())
		return
	}
	savedPath := filepath.Join(uploadsDir, sessionID+ext)
	if err := c.SaveUploadedFile(file, savedPath); err != nil {
		response.InternalError(c, "保存上传文件失败: "+err.Error())
		return
	}

	sourcePath := savedPath
	if ext == ".zip" || ext == ".rar" {
		unpath, err := methods.Unzip(savedPath)
		if err != nil {
			response.BadRequest(c, "解压失败: "+err.Error())
			return
		}
		rasters, err := methods.FindRasterFiles(unpath)
		if err != nil {
			response.InternalError(c, "查找GeoTIFF文件失败: "+err.Error())
			return
		}
		if len(rasters) == 0 {
			response.BadRequest(c, "压缩包中未找到GeoTIFF文件")
			return
		}
		if len(rasters) > 1 {
			response.BadRequest(c, fmt.Sprintf("压缩包中包含 %d 个GeoTIFF文件，只能包含一个", len(rasters)))
			return
		}
		sourcePath = rasters[0]
	}

	req := &services.SliceRequest{
		SourcePath: sourcePath,
		SourceName: file.Filename,
		TileWidth:  tileWidth,
		TileHeight: tileHeight,
		Overlap:    overlap,
	}
	result, err := h.tileService.Slice(req, sessionID)
	if err != nil {
		var paramErr *geotile.InvalidParameterError
		var readErr *geotile.RasterReadError
		if errors.As(err, &paramErr) || errors.As(err, &readErr) {
			response.BadRequest(c, err.Error())
			return
		}
		log.Printf("切片失败 %s: %v", sourcePath, err)
		response.InternalError(c, "切片失败: "+err.Error())
		return
	}

	response.Success(c, result)
}

// ListSessions 列出所有切片会话
func (h *TileHandler) ListSessions(c *gin.Context) {
	sessions, err := h.store.ListSessions()
	if err != nil {
		response.InternalError(c, "读取会话列表失败: "+err.Error())
		return
	}
	response.Success(c, gin.H{
		"sessions": sessions,
		"total":    len(sessions),
	})
}

// ListTiles 列出会话内的瓦片文件
func (h *TileHandler) ListTiles(c *gin.Context) {
	sessionID := c.Param("session_id")
	tiles, err := h.store.ListTiles(sessionID)
	if err != nil {
		h.sessionError(c, sessionID, err)
		return
	}
	response.Success(c, gin.H{
		"session_id": sessionID,
		"tiles":      tiles,
		"total":      len(tiles),
	})
}

// DownloadTile 下载单个瓦片
func (h *TileHandler) DownloadTile(c *gin.Context) {
	sessionID := c.Param("session_id")
	fileName := c.Param("filename")
	path, err := h.store.ResolveTile(sessionID, fileName)
	if err != nil {
		h.sessionError(c, sessionID, err)
		return
	}

	c.Header("Content-Type", "image/tiff")
	c.Header("Content-Disposition", "attachment; filename="+filepath.Base(path))
	c.File(path)
}

// DownloadAllTiles 将会话内全部瓦片打包为zip下载
func (h *TileHandler) DownloadAllTiles(c *gin.Context) {
	sessionID := c.Param("session_id")
	dir, err := h.store.SessionDir(sessionID)
	if err != nil {
		h.sessionError(c, sessionID, err)
		return
	}

	data, err := methods.ZipFileOut(dir)
	if err != nil {
		response.InternalError(c, "打包瓦片失败: "+err.Error())
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=tiles_%s.zip", sessionID))
	c.Data(http.StatusOK, "application/zip", data)
}

// TileFootprints 返回会话内全部瓦片的经纬度范围，GeoJSON FeatureCollection格式
func (h *TileHandler) TileFootprints(c *gin.Context) {
	sessionID := c.Param("session_id")
	tiles, err := h.store.ListTiles(sessionID)
	if err != nil {
		h.sessionError(c, sessionID, err)
		return
	}

	fc := geojson.NewFeatureCollection()
	for _, t := range tiles {
		path, err := h.store.ResolveTile(sessionID, t.FileName)
		if err != nil {
			continue
		}
		r, err := geotile.Open(path)
		if err != nil {
			log.Printf("读取瓦片 %s 失败: %v", t.FileName, err)
			continue
		}
		box, assumed, err := r.NormalizeBounds()
		r.Close()
		if err != nil {
			log.Printf("计算瓦片 %s 范围失败: %v", t.FileName, err)
			continue
		}

		feature := geojson.NewFeature(boxPolygon(box))
		feature.Properties["filename"] = t.FileName
		feature.Properties["download_url"] = t.DownloadURL
		if assumed {
			feature.Properties["crs_assumed"] = true
		}
		fc.Append(feature)
	}

	response.Success(c, fc)
}

// PreviewTile 生成瓦片灰度预览图
// @Summary 读取瓦片第一波段生成webp预览
// @Param size query int false "预览图最大边长（像素）" default(256)
// @Produce image/webp
func (h *TileHandler) PreviewTile(c *gin.Context) {
	sessionID := c.Param("session_id")
	fileName := c.Param("filename")
	path, err := h.store.ResolveTile(sessionID, fileName)
	if err != nil {
		h.sessionError(c, sessionID, err)
		return
	}

	size := 256
	if raw := c.Query("size"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil {
			size = v
		}
	}
	if size < 1 {
		size = 1
	}
	if size > 2048 {
		size = 2048
	}

	r, err := geotile.Open(path)
	if err != nil {
		response.InternalError(c, "打开瓦片失败: "+err.Error())
		return
	}
	defer r.Close()

	img, err := r.ReadGrayscale(size)
	if err != nil {
		response.InternalError(c, "生成预览失败: "+err.Error())
		return
	}

	var buf bytes.Buffer
	if err := webp.Encode(&buf, img, &webp.Options{Quality: 80}); err != nil {
		response.InternalError(c, "编码预览图失败: "+err.Error())
		return
	}

	c.Header("Content-Type", "image/webp")
	c.Header("Content-Disposition", "inline")
	c.Data(http.StatusOK, "image/webp", buf.Bytes())
}

// CleanupSession 删除会话目录及其全部瓦片
func (h *TileHandler) CleanupSession(c *gin.Context) {
	sessionID := c.Param("session_id")
	if _, err := h.store.SessionDir(sessionID); err != nil {
		h.sessionError(c, sessionID, err)
		return
	}
	if err := h.store.Remove(sessionID); err != nil {
		response.InternalError(c, "清理会话失败: "+err.Error())
		return
	}
	response.SuccessWithMessage(c, fmt.Sprintf("会话 %s 已清理", sessionID), gin.H{
		"session_id": sessionID,
	})
}

// RasterInfoRequest 栅格信息查询参数，source_path与session_id加filename二选一
type RasterInfoRequest struct {
	SourcePath string `json:"source_path"`
	SessionID  string `json:"session_id"`
	FileName   string `json:"filename"`
}

// RasterInfo 查询栅格文件的元信息与波段统计
func (h *TileHandler) RasterInfo(c *gin.Context) {
	var req RasterInfoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "请求参数格式错误: "+err.Error())
		return
	}

	path := req.SourcePath
	if path == "" {
		if req.SessionID == "" || req.FileName == "" {
			response.BadRequest(c, "需要提供 source_path 或 session_id 加 filename")
			return
		}
		p, err := h.store.ResolveTile(req.SessionID, req.FileName)
		if err != nil {
			h.sessionError(c, req.SessionID, err)
			return
		}
		path = p
	} else if _, err := os.Stat(path); err != nil {
		response.BadRequest(c, "源文件不存在")
		return
	}

	info, err := h.infoService.GetRasterInfo(path)
	if err != nil {
		response.InternalError(c, err.Error())
		return
	}
	response.Success(c, info)
}

// sessionError 将会话目录访问错误映射为对应的HTTP响应
func (h *TileHandler) sessionError(c *gin.Context, sessionID string, err error) {
	if os.IsNotExist(err) {
		response.NotFound(c, fmt.Sprintf("会话 %s 不存在或文件不存在", sessionID))
		return
	}
	if errors.Is(err, os.ErrPermission) {
		response.BadRequest(c, "非法的路径参数")
		return
	}
	if errors.Is(err, os.ErrInvalid) {
		response.BadRequest(c, "会话标识无效")
		return
	}
	response.InternalError(c, "读取会话失败: "+err.Error())
}

// boxPolygon 将经纬度范围转换为闭合多边形
func boxPolygon(box geotile.GeoBoundingBox) orb.Polygon {
	return orb.Polygon{orb.Ring{
		{box.MinLon, box.MinLat},
		{box.MaxLon, box.MinLat},
		{box.MaxLon, box.MaxLat},
		{box.MinLon, box.MaxLat},
		{box.MinLon, box.MinLat},
	}}
}

func formInt(c *gin.Context, key string, def int) int {
	raw := c.PostForm(key)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}

func formFloat(c *gin.Context, key string, def float64) float64 {
	raw := c.PostForm(key)
	if raw == "" {
		return def
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return def
	}
	return v
}
