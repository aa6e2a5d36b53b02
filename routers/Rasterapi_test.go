package routers

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/GrainArc/RasterLab/config"
	"github.com/GrainArc/RasterLab/models"
	"github.com/GrainArc/RasterLab/services"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

type apiResponse struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	config.MainConfig.DataDir = t.TempDir()
	require.NoError(t, models.InitDatabase())

	r := gin.New()
	RasterLabRouters(r)
	return r
}

func doRequest(t *testing.T, r *gin.Engine, method, path string, body io.Reader, contentType string) (*httptest.ResponseRecorder, apiResponse) {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var resp apiResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	return w, resp
}

func multipartBody(t *testing.T, fileName string, content []byte, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var b bytes.Buffer
	w := multipart.NewWriter(&b)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	if fileName != "" {
		fw, err := w.CreateFormFile("file", fileName)
		require.NoError(t, err)
		_, err = fw.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return &b, w.FormDataContentType()
}

func buildZip(t *testing.T, files map[string][]byte) []byte {
	t.Helper()
	var b bytes.Buffer
	zw := zip.NewWriter(&b)
	for name, content := range files {
		fw, err := zw.Create(name)
		require.NoError(t, err)
		_, err = fw.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return b.Bytes()
}

func TestHealth(t *testing.T) {
	r := newTestRouter(t)
	w, resp := doRequest(t, r, http.MethodGet, "/health", nil, "")

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, 0, resp.Code)

	var data struct {
		Status string `json:"status"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &data))
	require.Equal(t, "healthy", data.Status)
}

func TestServiceInfo(t *testing.T) {
	r := newTestRouter(t)
	w, resp := doRequest(t, r, http.MethodGet, "/", nil, "")

	require.Equal(t, http.StatusOK, w.Code)

	var data struct {
		Name    string `json:"name"`
		Version string `json:"version"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &data))
	require.Equal(t, "RasterLab API", data.Name)
	require.Equal(t, "2.0.0", data.Version)
}

func TestUploadRequiresFile(t *testing.T) {
	r := newTestRouter(t)
	body, contentType := multipartBody(t, "", nil, map[string]string{"tile_width": "256"})
	w, resp := doRequest(t, r, http.MethodPost, "/upload-geotiff", body, contentType)

	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Equal(t, -1, resp.Code)
	require.Contains(t, resp.Msg, "请选择要上传的文件")
}

func TestUploadRejectsBadExtension(t *testing.T) {
	r := newTestRouter(t)
	body, contentType := multipartBody(t, "readme.txt", []byte("hello"), nil)
	w, resp := doRequest(t, r, http.MethodPost, "/upload-geotiff", body, contentType)

	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Contains(t, resp.Msg, "仅支持")
}

func TestUploadRejectsBadParams(t *testing.T) {
	r := newTestRouter(t)
	body, contentType := multipartBody(t, "demo.tif", []byte("not-a-real-tiff"), map[string]string{
		"tile_width": "0",
	})
	w, resp := doRequest(t, r, http.MethodPost, "/upload-geotiff", body, contentType)

	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Contains(t, resp.Msg, "tile_width")
}

func TestUploadRejectsBrokenRaster(t *testing.T) {
	r := newTestRouter(t)
	body, contentType := multipartBody(t, "demo.tif", []byte("not-a-real-tiff"), nil)
	w, resp := doRequest(t, r, http.MethodPost, "/upload-geotiff", body, contentType)

	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Equal(t, -1, resp.Code)
}

func TestUploadRejectsEmptyArchive(t *testing.T) {
	r := newTestRouter(t)

	// 构造一个不含GeoTIFF的zip
	zipData := buildZip(t, map[string][]byte{"readme.txt": []byte("nothing here")})

	body, contentType := multipartBody(t, "bundle.zip", zipData, nil)
	w, resp := doRequest(t, r, http.MethodPost, "/upload-geotiff", body, contentType)

	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Contains(t, resp.Msg, "未找到GeoTIFF")
}

func TestListTilesUnknownSession(t *testing.T) {
	r := newTestRouter(t)
	w, resp := doRequest(t, r, http.MethodGet, "/list-tiles/20240101_000000_nope", nil, "")

	require.Equal(t, http.StatusNotFound, w.Code)
	require.Equal(t, -1, resp.Code)
}

func TestDownloadTileUnknownSession(t *testing.T) {
	r := newTestRouter(t)
	w, _ := doRequest(t, r, http.MethodGet, "/download-tile/20240101_000000_nope/tile_000001.tif", nil, "")

	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestListAndCleanupSession(t *testing.T) {
	r := newTestRouter(t)

	sessionDir := filepath.Join(services.TilesRoot(), "20240101_000000_demo")
	require.NoError(t, os.MkdirAll(sessionDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(sessionDir, "tile_000001.tif"), []byte("tile"), 0644))

	w, resp := doRequest(t, r, http.MethodGet, "/list-tiles/20240101_000000_demo", nil, "")
	require.Equal(t, http.StatusOK, w.Code)

	var listData struct {
		SessionID string                  `json:"session_id"`
		Tiles     []services.TileFileInfo `json:"tiles"`
		Total     int                     `json:"total"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &listData))
	require.Equal(t, 1, listData.Total)
	require.Equal(t, "tile_000001.tif", listData.Tiles[0].FileName)

	w, resp = doRequest(t, r, http.MethodGet, "/sessions", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	var sessData struct {
		Total int `json:"total"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &sessData))
	require.Equal(t, 1, sessData.Total)

	w, _ = doRequest(t, r, http.MethodDelete, "/cleanup-session/20240101_000000_demo", nil, "")
	require.Equal(t, http.StatusOK, w.Code)

	_, err := os.Stat(sessionDir)
	require.True(t, os.IsNotExist(err))

	// 再次清理同一会话返回404
	w, _ = doRequest(t, r, http.MethodDelete, "/cleanup-session/20240101_000000_demo", nil, "")
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestDownloadTileServesFile(t *testing.T) {
	r := newTestRouter(t)

	sessionDir := filepath.Join(services.TilesRoot(), "20240101_000000_demo")
	require.NoError(t, os.MkdirAll(sessionDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(sessionDir, "tile_000001.tif"), []byte("tile-bytes"), 0644))

	req := httptest.NewRequest(http.MethodGet, "/download-tile/20240101_000000_demo/tile_000001.tif", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Header().Get("Content-Disposition"), "tile_000001.tif")
	require.Equal(t, "tile-bytes", w.Body.String())
}

func TestDownloadAllTilesReturnsZip(t *testing.T) {
	r := newTestRouter(t)

	sessionDir := filepath.Join(services.TilesRoot(), "20240101_000000_demo")
	require.NoError(t, os.MkdirAll(sessionDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(sessionDir, "tile_000001.tif"), []byte("tile"), 0644))

	req := httptest.NewRequest(http.MethodGet, "/download-all-tiles/20240101_000000_demo", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "application/zip", w.Header().Get("Content-Type"))
	require.Contains(t, w.Header().Get("Content-Disposition"), "tiles_20240101_000000_demo.zip")
	// zip文件头
	require.True(t, bytes.HasPrefix(w.Body.Bytes(), []byte("PK")))
}

func TestRasterInfoRequiresSource(t *testing.T) {
	r := newTestRouter(t)
	w, resp := doRequest(t, r, http.MethodPost, "/raster-info", bytes.NewReader([]byte(`{}`)), "application/json")

	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Contains(t, resp.Msg, "source_path")
}

func TestStartSliceTaskValidation(t *testing.T) {
	r := newTestRouter(t)

	// 缺少必填字段
	w, _ := doRequest(t, r, http.MethodPost, "/tasks/slice",
		bytes.NewReader([]byte(`{"source_path":"/x"}`)), "application/json")
	require.Equal(t, http.StatusBadRequest, w.Code)

	// 源文件不存在
	w, resp := doRequest(t, r, http.MethodPost, "/tasks/slice",
		bytes.NewReader([]byte(`{"source_path":"/definitely/missing.tif","tile_width":256,"tile_height":256}`)), "application/json")
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Contains(t, resp.Msg, "源文件不存在")
}

func TestTaskStatusUnknown(t *testing.T) {
	r := newTestRouter(t)
	w, resp := doRequest(t, r, http.MethodGet, "/tasks/no-such-task", nil, "")

	require.Equal(t, http.StatusNotFound, w.Code)
	require.Contains(t, resp.Msg, "任务不存在")
}

func TestSliceTaskFailsOnBrokenSource(t *testing.T) {
	r := newTestRouter(t)

	srcPath := filepath.Join(config.MainConfig.DataDir, "broken.tif")
	require.NoError(t, os.WriteFile(srcPath, []byte("junk"), 0644))

	payload, err := json.Marshal(map[string]interface{}{
		"source_path": srcPath,
		"tile_width":  256,
		"tile_height": 256,
	})
	require.NoError(t, err)

	w, resp := doRequest(t, r, http.MethodPost, "/tasks/slice", bytes.NewReader(payload), "application/json")
	require.Equal(t, http.StatusOK, w.Code)

	var taskResp services.SliceTaskResponse
	require.NoError(t, json.Unmarshal(resp.Data, &taskResp))
	require.NotEmpty(t, taskResp.TaskID)
	require.NotEmpty(t, taskResp.SessionID)

	// 等待后台任务报告失败
	deadline := time.Now().Add(3 * time.Second)
	for {
		task, ok := services.SliceTasks.Get(taskResp.TaskID)
		require.True(t, ok)
		if task.Snapshot().Status == "failed" {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("任务未在预期时间内结束")
		}
		time.Sleep(10 * time.Millisecond)
	}

	w, resp = doRequest(t, r, http.MethodGet, "/tasks/"+taskResp.TaskID, nil, "")
	require.Equal(t, http.StatusOK, w.Code)

	var status services.TaskStatus
	require.NoError(t, json.Unmarshal(resp.Data, &status))
	require.Equal(t, "failed", status.Status)
	require.NotEmpty(t, status.Error)
}
