package geotile

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// TileWriter 瓦片持久化协作方：按候选编号落盘窗口像元，
// 返回文件名与完整路径。写出失败只影响当前瓦片。
type TileWriter interface {
	WriteTile(win PixelWindow, transform [6]float64, id int) (fileName, filePath string, err error)
}

// Partition 将栅格按配置切分为相互重叠的瓦片。
// 每个通过尺寸筛选的窗口产出一条 WindowOutcome：成功时携带瓦片描述，
// 写出失败时携带错误并不占用瓦片编号，编号在成功瓦片间保持 1..N 连续。
// writer 为 nil 时只计算窗口与范围、不落盘。
// 整体性失败（参数非法、坐标变换无法建立）直接返回错误，不产生部分结果。
func Partition(r *Raster, cfg Config, writer TileWriter) ([]WindowOutcome, error) {
	d := r.desc
	wins, err := PlanWindows(d.Width, d.Height, cfg)
	if err != nil {
		return nil, err
	}

	needProjection := d.HasCRS && d.EPSG != EPSGWGS84
	outcomes := make([]WindowOutcome, 0, len(wins))
	nextID := 1

	for idx, win := range wins {
		xs, ys := windowCorners(d.Transform, win)
		if needProjection {
			// 四角一次批量重投影，失败视为整体坐标变换故障
			if err := r.transformToWGS84(xs[:], ys[:]); err != nil {
				return nil, err
			}
		}
		box := envelope(xs, ys)

		tile := &TileDescriptor{GeoBoundingBox: box, Window: win}
		if writer != nil {
			name, path, werr := writer.WriteTile(win, windowTransform(d.Transform, win), nextID)
			if werr != nil {
				outcomes = append(outcomes, WindowOutcome{Index: idx, Window: win, Err: werr})
				continue
			}
			tile.FileName = name
			tile.FilePath = path
		}
		tile.ID = nextID
		nextID++
		outcomes = append(outcomes, WindowOutcome{Index: idx, Window: win, Tile: tile})
	}
	return outcomes, nil
}

// GeoTIFFWriter 将窗口像元写为LZW压缩的GeoTIFF，文件名 tile_%06d.tif
type GeoTIFFWriter struct {
	raster *Raster
	dir    string
}

// NewGeoTIFFWriter 创建瓦片写出器，输出目录不存在时自动创建
func NewGeoTIFFWriter(r *Raster, outputDir string) (*GeoTIFFWriter, error) {
	if err := os.MkdirAll(outputDir, os.ModePerm); err != nil {
		return nil, fmt.Errorf("创建瓦片输出目录失败: %w", err)
	}
	return &GeoTIFFWriter{raster: r, dir: outputDir}, nil
}

func (w *GeoTIFFWriter) Dir() string {
	return w.dir
}

func (w *GeoTIFFWriter) WriteTile(win PixelWindow, transform [6]float64, id int) (string, string, error) {
	name := TileFileName(id)
	path := filepath.Join(w.dir, name)
	if err := w.raster.exportWindow(path, win, transform); err != nil {
		return "", "", &TilePersistenceError{ID: id, Path: path, Err: err}
	}
	return name, path, nil
}

// TileFileName 瓦片落盘文件名，六位零填充编号
func TileFileName(id int) string {
	return fmt.Sprintf("tile_%06d.tif", id)
}

// NewSessionID 生成会话标识：时间戳加源文件名主干。
// 并发上传同名文件时由调用方保证唯一性，核心不做查重。
func NewSessionID(fileName string) string {
	base := filepath.Base(fileName)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	return time.Now().Format("20060102_150405") + "_" + stem
}
