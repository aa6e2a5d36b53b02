package services

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/GrainArc/RasterLab/methods"
	"github.com/GrainArc/RasterLab/models"
)

// TileFileInfo 会话目录中单个瓦片文件的信息
type TileFileInfo struct {
	FileName    string `json:"filename"`
	SizeBytes   int64  `json:"size_bytes"`
	DownloadURL string `json:"download_url"`
}

// SessionInfo 切片会话概要
type SessionInfo struct {
	SessionID string    `json:"session_id"`
	TileCount int       `json:"tile_count"`
	ModTime   time.Time `json:"mod_time"`
}

// SessionStore 切片会话目录管理，所有访问限制在瓦片根目录之内
type SessionStore struct {
	RootPath string
}

func NewSessionStore() *SessionStore {
	// 确保根路径是绝对路径
	absRoot, _ := filepath.Abs(TilesRoot())
	return &SessionStore{
		RootPath: absRoot,
	}
}

// SessionDir 解析会话目录，校验存在性与路径安全
func (s *SessionStore) SessionDir(sessionID string) (string, error) {
	dir := filepath.Join(s.RootPath, sessionID)

	// 安全检查：确保请求的路径在根目录下
	if !isPathSafe(s.RootPath, dir) {
		return "", os.ErrPermission
	}

	info, err := os.Stat(dir)
	if err != nil {
		return "", err
	}
	if !info.IsDir() {
		return "", os.ErrInvalid
	}
	return dir, nil
}

// ListTiles 列出会话内的全部瓦片文件，按文件名升序
func (s *SessionStore) ListTiles(sessionID string) ([]TileFileInfo, error) {
	dir, err := s.SessionDir(sessionID)
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	tiles := make([]TileFileInfo, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if !methods.IsStringInSlice(ext, []string{".tif", ".tiff"}) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		tiles = append(tiles, TileFileInfo{
			FileName:    entry.Name(),
			SizeBytes:   info.Size(),
			DownloadURL: fmt.Sprintf("/download-tile/%s/%s", sessionID, entry.Name()),
		})
	}
	return tiles, nil
}

// ResolveTile 解析瓦片文件的绝对路径，防止目录穿越
func (s *SessionStore) ResolveTile(sessionID, fileName string) (string, error) {
	dir, err := s.SessionDir(sessionID)
	if err != nil {
		return "", err
	}

	path := filepath.Join(dir, fileName)
	if !isPathSafe(dir, path) {
		return "", os.ErrPermission
	}

	info, err := os.Stat(path)
	if err != nil {
		return "", err
	}
	if info.IsDir() {
		return "", os.ErrInvalid
	}
	return path, nil
}

// ListSessions 列出全部切片会话
func (s *SessionStore) ListSessions() ([]SessionInfo, error) {
	entries, err := os.ReadDir(s.RootPath)
	if err != nil {
		if os.IsNotExist(err) {
			return []SessionInfo{}, nil
		}
		return nil, err
	}

	sessions := make([]SessionInfo, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		count := 0
		if tiles, err := s.ListTiles(entry.Name()); err == nil {
			count = len(tiles)
		}
		sessions = append(sessions, SessionInfo{
			SessionID: entry.Name(),
			TileCount: count,
			ModTime:   info.ModTime(),
		})
	}
	return sessions, nil
}

// Remove 删除会话目录及其数据库记录
func (s *SessionStore) Remove(sessionID string) error {
	dir, err := s.SessionDir(sessionID)
	if err != nil {
		return err
	}
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("删除会话目录失败: %w", err)
	}
	if db := models.GetDB(); db != nil {
		if err := db.Where("session_id = ?", sessionID).Delete(&models.TileSession{}).Error; err != nil {
			log.Printf("删除会话记录失败: %v", err)
		}
	}
	return nil
}

// isPathSafe 检查路径是否安全（防止目录遍历攻击）
func isPathSafe(root, path string) bool {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return false
	}

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return false
	}

	// 检查请求的路径是否在根目录下
	rel, err := filepath.Rel(absRoot, absPath)
	if err != nil {
		return false
	}

	// 不允许访问根目录之外的路径
	return !strings.HasPrefix(rel, "..") && !filepath.IsAbs(rel)
}
