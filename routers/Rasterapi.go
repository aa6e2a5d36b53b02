package routers

import (
	"github.com/GrainArc/RasterLab/views"
	"github.com/gin-gonic/gin"
)

func RasterLabRouters(r *gin.Engine) {
	tileHandler := views.NewTileHandler()
	taskHandler := views.NewTaskHandler()

	r.GET("/", tileHandler.ServiceInfo)
	r.GET("/health", tileHandler.Health)

	// 同步切片与瓦片管理
	r.POST("/upload-geotiff", tileHandler.UploadGeoTIFF)
	r.GET("/sessions", tileHandler.ListSessions)
	r.GET("/list-tiles/:session_id", tileHandler.ListTiles)
	r.GET("/download-tile/:session_id/:filename", tileHandler.DownloadTile)
	r.GET("/download-all-tiles/:session_id", tileHandler.DownloadAllTiles)
	r.GET("/tile-footprints/:session_id", tileHandler.TileFootprints)
	r.GET("/preview-tile/:session_id/:filename", tileHandler.PreviewTile)
	r.DELETE("/cleanup-session/:session_id", tileHandler.CleanupSession)
	r.POST("/raster-info", tileHandler.RasterInfo)

	taskRouter := r.Group("/tasks")
	{
		taskRouter.POST("/slice", taskHandler.StartSliceTask) // 提交异步切片任务
		taskRouter.GET("/:task_id", taskHandler.GetTaskStatus)
	}

	wsRouter := r.Group("/ws")
	{
		wsRouter.GET("/task/:task_id", taskHandler.TaskWebSocket) // 任务进度推送
	}
}
