package geotile

import (
	"fmt"
)

// InvalidParameterError 切片参数非法：瓦片尺寸非正、重叠率越界或步长退化为零
type InvalidParameterError struct {
	Param  string
	Reason string
}

func (e *InvalidParameterError) Error() string {
	return fmt.Sprintf("无效的切片参数 %s: %s", e.Param, e.Reason)
}

// RasterReadError 栅格文件缺失、无法打开或不是有效栅格
type RasterReadError struct {
	Path string
	Err  error
}

func (e *RasterReadError) Error() string {
	return fmt.Sprintf("读取栅格文件失败 %s: %v", e.Path, e.Err)
}

func (e *RasterReadError) Unwrap() error { return e.Err }

// ProjectionError 坐标系存在但重投影失败
type ProjectionError struct {
	EPSG int
	Err  error
}

func (e *ProjectionError) Error() string {
	if e.EPSG != 0 {
		return fmt.Sprintf("坐标系转换失败 EPSG:%d: %v", e.EPSG, e.Err)
	}
	return fmt.Sprintf("坐标系转换失败: %v", e.Err)
}

func (e *ProjectionError) Unwrap() error { return e.Err }

// TilePersistenceError 单个瓦片写出失败，不影响其余瓦片
type TilePersistenceError struct {
	ID   int
	Path string
	Err  error
}

func (e *TilePersistenceError) Error() string {
	return fmt.Sprintf("瓦片写出失败 %s: %v", e.Path, e.Err)
}

func (e *TilePersistenceError) Unwrap() error { return e.Err }
