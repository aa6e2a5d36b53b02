package geotile

// EPSGWGS84 WGS84经纬度坐标系代码
const EPSGWGS84 = 4326

// GeoBoundingBox WGS84地理范围，十进制度，各轴满足 min <= max
type GeoBoundingBox struct {
	MinLon float64 `json:"min_lon"`
	MaxLon float64 `json:"max_lon"`
	MinLat float64 `json:"min_lat"`
	MaxLat float64 `json:"max_lat"`
}

// PixelWindow 像素窗口，半开区间 [ColStart,ColEnd) x [RowStart,RowEnd)
type PixelWindow struct {
	ColStart int `json:"col_start"`
	RowStart int `json:"row_start"`
	ColEnd   int `json:"col_end"`
	RowEnd   int `json:"row_end"`
}

func (w PixelWindow) Width() int { return w.ColEnd - w.ColStart }

func (w PixelWindow) Height() int { return w.RowEnd - w.RowStart }

// RasterDescriptor 栅格打开后的基本信息快照，之后不再变化
type RasterDescriptor struct {
	Width     int
	Height    int
	BandCount int
	Transform [6]float64
	EPSG      int
	HasCRS    bool
}

// TileDescriptor 单个瓦片：编号、WGS84范围、像素窗口及可选的落盘信息
type TileDescriptor struct {
	ID int `json:"id"`
	GeoBoundingBox
	Window      PixelWindow `json:"pixel_bounds"`
	FileName    string      `json:"file_name,omitempty"`
	FilePath    string      `json:"file_path,omitempty"`
	DownloadURL string      `json:"download_url,omitempty"`
}

// WindowOutcome 候选窗口的处理结果：成功产出瓦片，或写出失败被跳过。
// Index 为通过尺寸筛选的窗口在生成顺序中的序号（0起），与瓦片编号无关。
type WindowOutcome struct {
	Index  int
	Window PixelWindow
	Tile   *TileDescriptor
	Err    error
}

// Tiles 过滤出成功产出的瓦片，保持生成顺序
func Tiles(outcomes []WindowOutcome) []TileDescriptor {
	tiles := make([]TileDescriptor, 0, len(outcomes))
	for _, oc := range outcomes {
		if oc.Err == nil && oc.Tile != nil {
			tiles = append(tiles, *oc.Tile)
		}
	}
	return tiles
}

// Config 切片配置，替代进程级全局状态，由调用方显式传入
type Config struct {
	TileWidth  int
	TileHeight int
	Overlap    float64
	// EdgeMinRatio 边缘残片的最小尺寸比例，宽高任一低于 瓦片尺寸*比例 即丢弃。
	// 零值取 0.1。
	EdgeMinRatio float64
}

func (c Config) edgeMinRatio() float64 {
	if c.EdgeMinRatio <= 0 {
		return defaultEdgeMinRatio
	}
	return c.EdgeMinRatio
}

const defaultEdgeMinRatio = 0.1
