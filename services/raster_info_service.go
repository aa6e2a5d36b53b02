package services

import (
	"fmt"

	"github.com/GrainArc/Gogeo"
	"github.com/GrainArc/RasterLab/geotile"
)

// BandInfoResponse 波段信息
type BandInfoResponse struct {
	BandIndex   int     `json:"band_index"`
	DataType    string  `json:"data_type"`
	ColorInterp string  `json:"color_interp"`
	NoDataValue float64 `json:"nodata_value"`
	HasNoData   bool    `json:"has_nodata"`
	MinValue    float64 `json:"min_value"`
	MaxValue    float64 `json:"max_value"`
	HasStats    bool    `json:"has_stats"`
}

// RasterInfoResponse 栅格元数据
type RasterInfoResponse struct {
	Width        int                     `json:"width"`
	Height       int                     `json:"height"`
	BandCount    int                     `json:"band_count"`
	EPSG         int                     `json:"epsg"`
	HasGeoInfo   bool                    `json:"has_geo_info"`
	GeoTransform [6]float64              `json:"geo_transform"`
	Projection   string                  `json:"projection"`
	NativeBounds [4]float64              `json:"native_bounds"` // minX, minY, maxX, maxY
	WGS84Bounds  *geotile.GeoBoundingBox `json:"wgs84_bounds,omitempty"`
	CRSAssumed   bool                    `json:"crs_assumed,omitempty"`
	Bands        []BandInfoResponse      `json:"bands"`
}

// RasterInfoService 栅格信息服务
type RasterInfoService struct {
}

// GetRasterInfo 获取栅格的基本信息、波段信息与WGS84范围
func (s *RasterInfoService) GetRasterInfo(sourcePath string) (*RasterInfoResponse, error) {
	rd, err := Gogeo.OpenRasterDataset(sourcePath, false)
	if err != nil {
		return nil, fmt.Errorf("打开栅格文件失败: %w", err)
	}
	defer rd.Close()

	info := rd.GetInfo()
	epsg := rd.GetEPSGCode()
	minX, minY, maxX, maxY := rd.GetBounds()

	resp := &RasterInfoResponse{
		Width:        info.Width,
		Height:       info.Height,
		BandCount:    info.BandCount,
		EPSG:         epsg,
		HasGeoInfo:   info.HasGeoInfo,
		GeoTransform: info.GeoTransform,
		Projection:   info.Projection,
		NativeBounds: [4]float64{minX, minY, maxX, maxY},
	}

	if infos, err := rd.GetAllBandsInfo(); err != nil {
		return nil, fmt.Errorf("获取波段信息失败: %w", err)
	} else {
		bands := make([]BandInfoResponse, len(infos))
		for i, bi := range infos {
			bands[i] = BandInfoResponse{
				BandIndex:   bi.BandIndex,
				DataType:    Gogeo.BandDataType(bi.DataType).String(),
				ColorInterp: Gogeo.ColorInterpretation(bi.ColorInterp).String(),
				NoDataValue: bi.NoDataValue,
				HasNoData:   bi.HasNoData,
				MinValue:    bi.MinValue,
				MaxValue:    bi.MaxValue,
				HasStats:    bi.HasStats,
			}
		}
		resp.Bands = bands
	}

	// WGS84范围复用切片核心的归一化逻辑
	if r, err := geotile.Open(sourcePath); err == nil {
		box, assumed, nerr := r.NormalizeBounds()
		r.Close()
		if nerr == nil {
			resp.WGS84Bounds = &box
			resp.CRSAssumed = assumed
		}
	}

	return resp, nil
}
