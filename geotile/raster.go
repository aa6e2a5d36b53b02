package geotile

/*
#include <stdlib.h>
#include "gdal.h"
#include "ogr_srs_api.h"
#cgo pkg-config: gdal
*/
import "C"

import (
	"errors"
	"fmt"
	"image"
	"math"
	"os"
	"runtime"
	"strconv"
	"unsafe"
)

func init() {
	C.GDALAllRegister()
}

// Raster 只读打开的栅格数据源。非并发安全，每个请求单独打开、用完关闭。
type Raster struct {
	ds   C.GDALDatasetH
	ct   C.OGRCoordinateTransformationH
	wkt  string
	path string
	desc RasterDescriptor
}

// Open 只读打开栅格文件并读取基本信息
func Open(path string) (*Raster, error) {
	cPath := C.CString(path)
	defer C.free(unsafe.Pointer(cPath))

	ds := C.GDALOpen(cPath, C.GA_ReadOnly)
	if ds == nil {
		return nil, &RasterReadError{Path: path, Err: errors.New(lastGdalError("无法打开数据集"))}
	}

	width := int(C.GDALGetRasterXSize(ds))
	height := int(C.GDALGetRasterYSize(ds))
	bandCount := int(C.GDALGetRasterCount(ds))
	if width <= 0 || height <= 0 {
		C.GDALClose(ds)
		return nil, &RasterReadError{Path: path, Err: fmt.Errorf("栅格尺寸非法 %dx%d", width, height)}
	}

	var gt [6]C.double
	if C.GDALGetGeoTransform(ds, &gt[0]) != C.CE_None {
		// 无地理变换时退化为像素坐标系
		gt = [6]C.double{0, 1, 0, 0, 0, 1}
	}
	var transform [6]float64
	for i := 0; i < 6; i++ {
		transform[i] = float64(gt[i])
	}

	wkt := C.GoString(C.GDALGetProjectionRef(ds))

	r := &Raster{
		ds:   ds,
		wkt:  wkt,
		path: path,
		desc: RasterDescriptor{
			Width:     width,
			Height:    height,
			BandCount: bandCount,
			Transform: transform,
			HasCRS:    wkt != "",
		},
	}
	if r.desc.HasCRS {
		r.desc.EPSG = epsgFromWKT(wkt)
	}

	runtime.SetFinalizer(r, (*Raster).Close)
	return r, nil
}

// Close 释放数据集与坐标变换句柄，可重复调用
func (r *Raster) Close() {
	if r.ct != nil {
		C.OCTDestroyCoordinateTransformation(r.ct)
		r.ct = nil
	}
	if r.ds != nil {
		C.GDALClose(r.ds)
		r.ds = nil
	}
}

// Descriptor 打开时读取的栅格信息快照
func (r *Raster) Descriptor() RasterDescriptor {
	return r.desc
}

func (r *Raster) Path() string {
	return r.path
}

// epsgFromWKT 从WKT中识别EPSG代码，识别不出返回0
func epsgFromWKT(wkt string) int {
	cWkt := C.CString(wkt)
	defer C.free(unsafe.Pointer(cWkt))

	srs := C.OSRNewSpatialReference(cWkt)
	if srs == nil {
		return 0
	}
	defer C.OSRDestroySpatialReference(srs)

	code := C.OSRGetAuthorityCode(srs, nil)
	if code == nil {
		if C.OSRAutoIdentifyEPSG(srs) != C.OGRERR_NONE {
			return 0
		}
		code = C.OSRGetAuthorityCode(srs, nil)
		if code == nil {
			return 0
		}
	}
	n, err := strconv.Atoi(C.GoString(code))
	if err != nil {
		return 0
	}
	return n
}

// ensureWGS84Transform 构建到WGS84的坐标变换，懒加载并缓存在句柄上。
// 两侧统一按传统GIS轴序（经度在前），避免EPSG轴序差异。
func (r *Raster) ensureWGS84Transform() error {
	if r.ct != nil {
		return nil
	}
	if r.wkt == "" {
		return &ProjectionError{Err: errors.New("数据源没有坐标系定义")}
	}

	cWkt := C.CString(r.wkt)
	defer C.free(unsafe.Pointer(cWkt))

	src := C.OSRNewSpatialReference(cWkt)
	if src == nil {
		return &ProjectionError{EPSG: r.desc.EPSG, Err: errors.New(lastGdalError("无法解析源坐标系"))}
	}
	defer C.OSRDestroySpatialReference(src)

	dst := C.OSRNewSpatialReference(nil)
	if dst == nil {
		return &ProjectionError{EPSG: r.desc.EPSG, Err: errors.New("无法创建目标坐标系")}
	}
	defer C.OSRDestroySpatialReference(dst)
	if C.OSRImportFromEPSG(dst, C.int(EPSGWGS84)) != C.OGRERR_NONE {
		return &ProjectionError{EPSG: EPSGWGS84, Err: errors.New(lastGdalError("无法导入目标坐标系"))}
	}

	C.OSRSetAxisMappingStrategy(src, C.OAMS_TRADITIONAL_GIS_ORDER)
	C.OSRSetAxisMappingStrategy(dst, C.OAMS_TRADITIONAL_GIS_ORDER)

	ct := C.OCTNewCoordinateTransformation(src, dst)
	if ct == nil {
		return &ProjectionError{EPSG: r.desc.EPSG, Err: errors.New(lastGdalError("无法建立坐标变换"))}
	}
	r.ct = ct
	return nil
}

// transformToWGS84 将一批点就地转换到WGS84，xs为经度方向，ys为纬度方向
func (r *Raster) transformToWGS84(xs, ys []float64) error {
	if len(xs) == 0 || len(xs) != len(ys) {
		return &ProjectionError{Err: fmt.Errorf("坐标点数不一致 %d/%d", len(xs), len(ys))}
	}
	if err := r.ensureWGS84Transform(); err != nil {
		return err
	}
	ok := C.OCTTransform(r.ct, C.int(len(xs)), (*C.double)(&xs[0]), (*C.double)(&ys[0]), nil)
	if ok == 0 {
		return &ProjectionError{EPSG: r.desc.EPSG, Err: errors.New(lastGdalError("点位转换失败"))}
	}
	return nil
}

// exportWindow 将窗口像元写出为GeoTIFF，保留原始坐标系并写入窗口自身的仿射变换，
// LZW压缩。输出类型取第一波段的原生类型，所有波段连同NoData与颜色解释一并拷贝。
func (r *Raster) exportWindow(outPath string, win PixelWindow, gt [6]float64) error {
	w := win.Width()
	h := win.Height()
	if w <= 0 || h <= 0 {
		return fmt.Errorf("窗口尺寸非法 %dx%d", w, h)
	}
	if r.desc.BandCount <= 0 {
		return errors.New("栅格没有波段数据")
	}

	driverName := C.CString("GTiff")
	defer C.free(unsafe.Pointer(driverName))
	driver := C.GDALGetDriverByName(driverName)
	if driver == nil {
		return errors.New("GTiff驱动不可用")
	}

	srcBand := C.GDALGetRasterBand(r.ds, 1)
	if srcBand == nil {
		return errors.New("无法读取第一波段")
	}
	dtype := C.GDALGetRasterDataType(srcBand)
	dsize := int(C.GDALGetDataTypeSizeBytes(dtype))
	if dsize <= 0 {
		return fmt.Errorf("不支持的像元类型 %d", int(dtype))
	}

	var opts []*C.char
	opts = append(opts, C.CString("COMPRESS=LZW"))
	opts = append(opts, nil)
	defer func() {
		for _, p := range opts {
			if p != nil {
				C.free(unsafe.Pointer(p))
			}
		}
	}()

	cOut := C.CString(outPath)
	defer C.free(unsafe.Pointer(cOut))

	out := C.GDALCreate(driver, cOut, C.int(w), C.int(h), C.int(r.desc.BandCount), dtype, &opts[0])
	if out == nil {
		os.Remove(outPath)
		return errors.New(lastGdalError("创建输出文件失败"))
	}

	if C.GDALSetGeoTransform(out, (*C.double)(&gt[0])) != C.CE_None {
		C.GDALClose(out)
		os.Remove(outPath)
		return errors.New(lastGdalError("写入仿射变换失败"))
	}
	if r.wkt != "" {
		cWkt := C.CString(r.wkt)
		if C.GDALSetProjection(out, cWkt) != C.CE_None {
			C.free(unsafe.Pointer(cWkt))
			C.GDALClose(out)
			os.Remove(outPath)
			return errors.New(lastGdalError("写入坐标系失败"))
		}
		C.free(unsafe.Pointer(cWkt))
	}

	buf := make([]byte, w*h*dsize)
	for i := 1; i <= r.desc.BandCount; i++ {
		sb := C.GDALGetRasterBand(r.ds, C.int(i))
		db := C.GDALGetRasterBand(out, C.int(i))
		if sb == nil || db == nil {
			C.GDALClose(out)
			os.Remove(outPath)
			return fmt.Errorf("波段 %d 不可用", i)
		}

		gerr := C.GDALRasterIO(sb, C.GF_Read,
			C.int(win.ColStart), C.int(win.RowStart), C.int(w), C.int(h),
			unsafe.Pointer(&buf[0]), C.int(w), C.int(h), dtype, 0, 0)
		if gerr != C.CE_None {
			C.GDALClose(out)
			os.Remove(outPath)
			return errors.New(lastGdalError(fmt.Sprintf("读取波段 %d 窗口数据失败", i)))
		}

		gerr = C.GDALRasterIO(db, C.GF_Write,
			0, 0, C.int(w), C.int(h),
			unsafe.Pointer(&buf[0]), C.int(w), C.int(h), dtype, 0, 0)
		if gerr != C.CE_None {
			C.GDALClose(out)
			os.Remove(outPath)
			return errors.New(lastGdalError(fmt.Sprintf("写入波段 %d 数据失败", i)))
		}

		var hasNoData C.int
		noData := C.GDALGetRasterNoDataValue(sb, &hasNoData)
		if hasNoData != 0 {
			C.GDALSetRasterNoDataValue(db, noData)
		}
		C.GDALSetRasterColorInterpretation(db, C.GDALGetRasterColorInterpretation(sb))
	}

	C.GDALFlushCache(out)
	C.GDALClose(out)
	return nil
}

// ReadGrayscale 读取第一波段并缩放为边长不超过maxDim的灰度图，用于快速预览。
// 读取时由GDAL按目标尺寸抽稀，像元值按有效值范围线性拉伸到0到255，NoData置黑。
func (r *Raster) ReadGrayscale(maxDim int) (*image.Gray, error) {
	if maxDim <= 0 {
		return nil, &InvalidParameterError{Param: "maxDim", Reason: "必须为正整数"}
	}
	band := C.GDALGetRasterBand(r.ds, 1)
	if band == nil {
		return nil, &RasterReadError{Path: r.path, Err: errors.New("无法读取第一波段")}
	}

	outW, outH := r.desc.Width, r.desc.Height
	if outW > maxDim || outH > maxDim {
		if outW >= outH {
			outH = outH * maxDim / outW
			outW = maxDim
		} else {
			outW = outW * maxDim / outH
			outH = maxDim
		}
	}
	if outW < 1 {
		outW = 1
	}
	if outH < 1 {
		outH = 1
	}

	buf := make([]float64, outW*outH)
	gerr := C.GDALRasterIO(band, C.GF_Read,
		0, 0, C.int(r.desc.Width), C.int(r.desc.Height),
		unsafe.Pointer(&buf[0]), C.int(outW), C.int(outH), C.GDT_Float64, 0, 0)
	if gerr != C.CE_None {
		return nil, &RasterReadError{Path: r.path, Err: errors.New(lastGdalError("读取波段数据失败"))}
	}

	var hasNoData C.int
	noData := float64(C.GDALGetRasterNoDataValue(band, &hasNoData))

	lo := math.Inf(1)
	hi := math.Inf(-1)
	for _, v := range buf {
		if hasNoData != 0 && v == noData {
			continue
		}
		if math.IsNaN(v) {
			continue
		}
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}

	img := image.NewGray(image.Rect(0, 0, outW, outH))
	if lo > hi {
		// 整幅都是NoData
		return img, nil
	}
	scale := 0.0
	if hi > lo {
		scale = 255.0 / (hi - lo)
	}
	for i, v := range buf {
		if hasNoData != 0 && v == noData {
			continue
		}
		if math.IsNaN(v) {
			continue
		}
		g := (v - lo) * scale
		if g > 255 {
			g = 255
		}
		img.Pix[i] = uint8(g)
	}
	return img, nil
}

func lastGdalError(prefix string) string {
	msg := C.GoString(C.CPLGetLastErrorMsg())
	if msg == "" {
		return prefix
	}
	return prefix + ": " + msg
}
