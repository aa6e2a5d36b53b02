package geotile

// NormalizeBounds 计算栅格整体的WGS84地理范围。
// 源坐标系为WGS84时直接返回原生范围，不做任何变换；
// 其他坐标系将四个角点一次性重投影到WGS84后取外接范围。
// 只变换角点、不沿边加密采样，非保形投影下边界外弯会被低估。
// 第二个返回值为真表示数据源缺失坐标系定义，范围按已是WGS84处理，调用方应记录告警。
func (r *Raster) NormalizeBounds() (GeoBoundingBox, bool, error) {
	d := r.desc
	full := PixelWindow{ColStart: 0, RowStart: 0, ColEnd: d.Width, RowEnd: d.Height}
	xs, ys := windowCorners(d.Transform, full)

	if !d.HasCRS {
		return envelope(xs, ys), true, nil
	}
	if d.EPSG == EPSGWGS84 {
		return envelope(xs, ys), false, nil
	}

	if err := r.transformToWGS84(xs[:], ys[:]); err != nil {
		return GeoBoundingBox{}, false, err
	}
	return envelope(xs, ys), false, nil
}
