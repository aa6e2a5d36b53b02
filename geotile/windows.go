package geotile

import (
	"fmt"
	"math"
)

// ValidateParams 校验切片参数。HTTP层在进入核心前调用，核心内部也会再次校验。
func ValidateParams(tileWidth, tileHeight int, overlap float64) error {
	if tileWidth <= 0 {
		return &InvalidParameterError{Param: "tile_width", Reason: fmt.Sprintf("必须为正整数，收到 %d", tileWidth)}
	}
	if tileHeight <= 0 {
		return &InvalidParameterError{Param: "tile_height", Reason: fmt.Sprintf("必须为正整数，收到 %d", tileHeight)}
	}
	if overlap < 0 || overlap >= 1 {
		return &InvalidParameterError{Param: "overlap", Reason: fmt.Sprintf("必须在 [0,1) 区间内，收到 %g", overlap)}
	}
	return nil
}

// steps 计算横纵步长 floor(tile*(1-overlap))。步长为零说明重叠率过高
// 且瓦片过小，切片无法推进，按致命配置错误处理。
func steps(tileWidth, tileHeight int, overlap float64) (int, int, error) {
	stepX := int(float64(tileWidth) * (1 - overlap))
	stepY := int(float64(tileHeight) * (1 - overlap))
	if stepX <= 0 {
		return 0, 0, &InvalidParameterError{Param: "overlap", Reason: fmt.Sprintf("重叠率 %g 使横向步长退化为0，请减小重叠率或增大 tile_width", overlap)}
	}
	if stepY <= 0 {
		return 0, 0, &InvalidParameterError{Param: "overlap", Reason: fmt.Sprintf("重叠率 %g 使纵向步长退化为0，请减小重叠率或增大 tile_height", overlap)}
	}
	return stepX, stepY, nil
}

// PlanWindows 按列主序（x外层、y内层）生成通过尺寸筛选的像素窗口。
// 窗口裁剪到栅格范围内；宽或高不足瓦片尺寸 EdgeMinRatio 倍的边缘残片被丢弃。
// 规划是纯函数且确定的，调用方可据此预估切片总量。
func PlanWindows(width, height int, cfg Config) ([]PixelWindow, error) {
	if err := ValidateParams(cfg.TileWidth, cfg.TileHeight, cfg.Overlap); err != nil {
		return nil, err
	}
	stepX, stepY, err := steps(cfg.TileWidth, cfg.TileHeight, cfg.Overlap)
	if err != nil {
		return nil, err
	}

	numX := int(math.Ceil(float64(width) / float64(stepX)))
	numY := int(math.Ceil(float64(height) / float64(stepY)))
	ratio := cfg.edgeMinRatio()
	minW := float64(cfg.TileWidth) * ratio
	minH := float64(cfg.TileHeight) * ratio

	var wins []PixelWindow
	for i := 0; i < numX; i++ {
		for j := 0; j < numY; j++ {
			colStart := i * stepX
			rowStart := j * stepY
			colEnd := colStart + cfg.TileWidth
			if colEnd > width {
				colEnd = width
			}
			rowEnd := rowStart + cfg.TileHeight
			if rowEnd > height {
				rowEnd = height
			}
			if float64(colEnd-colStart) < minW || float64(rowEnd-rowStart) < minH {
				continue
			}
			wins = append(wins, PixelWindow{ColStart: colStart, RowStart: rowStart, ColEnd: colEnd, RowEnd: rowEnd})
		}
	}
	return wins, nil
}

// applyTransform 像素坐标经六参数仿射变换映射到地理坐标
func applyTransform(gt [6]float64, col, row float64) (float64, float64) {
	x := gt[0] + col*gt[1] + row*gt[2]
	y := gt[3] + col*gt[4] + row*gt[5]
	return x, y
}

// windowCorners 窗口四角（左上、右上、右下、左下）的地理坐标，
// 使用半开区间的结束下标作为外边界
func windowCorners(gt [6]float64, w PixelWindow) ([4]float64, [4]float64) {
	var xs, ys [4]float64
	xs[0], ys[0] = applyTransform(gt, float64(w.ColStart), float64(w.RowStart))
	xs[1], ys[1] = applyTransform(gt, float64(w.ColEnd), float64(w.RowStart))
	xs[2], ys[2] = applyTransform(gt, float64(w.ColEnd), float64(w.RowEnd))
	xs[3], ys[3] = applyTransform(gt, float64(w.ColStart), float64(w.RowEnd))
	return xs, ys
}

// windowTransform 窗口自身的仿射变换：原点平移到窗口左上角，分辨率与旋转项不变
func windowTransform(gt [6]float64, w PixelWindow) [6]float64 {
	out := gt
	out[0] = gt[0] + float64(w.ColStart)*gt[1] + float64(w.RowStart)*gt[2]
	out[3] = gt[3] + float64(w.ColStart)*gt[4] + float64(w.RowStart)*gt[5]
	return out
}

// envelope 四角点的轴对齐外接范围。重投影可能引入倾斜，必须对四点取 min/max。
func envelope(xs, ys [4]float64) GeoBoundingBox {
	box := GeoBoundingBox{MinLon: xs[0], MaxLon: xs[0], MinLat: ys[0], MaxLat: ys[0]}
	for k := 1; k < 4; k++ {
		if xs[k] < box.MinLon {
			box.MinLon = xs[k]
		}
		if xs[k] > box.MaxLon {
			box.MaxLon = xs[k]
		}
		if ys[k] < box.MinLat {
			box.MinLat = ys[k]
		}
		if ys[k] > box.MaxLat {
			box.MaxLat = ys[k]
		}
	}
	return box
}
