package geotile

import (
	"bytes"
	"encoding/binary"
	"os"
	"testing"
)

// fixtureOpts 合成测试影像参数。epsg为0时不写坐标系键。
type fixtureOpts struct {
	width, height    int
	originX, originY float64
	pixelSize        float64
	epsg             int
}

// writeGeoTIFF 生成最小可读的单波段8位GeoTIFF：
// 单条带、无压缩，地理信息通过 ModelPixelScale/ModelTiepoint/GeoKeyDirectory 标签写入。
func writeGeoTIFF(t *testing.T, path string, opt fixtureOpts) {
	t.Helper()

	nEntries := 11
	if opt.epsg != 0 {
		nEntries = 12
	}
	ifdSize := 2 + nEntries*12 + 4
	scaleOff := 8 + ifdSize
	tieOff := scaleOff + 3*8
	geoOff := tieOff + 6*8
	dataOff := geoOff
	if opt.epsg != 0 {
		dataOff += 16 * 2
	}

	buf := new(bytes.Buffer)
	buf.WriteString("II")
	binary.Write(buf, binary.LittleEndian, uint16(42))
	binary.Write(buf, binary.LittleEndian, uint32(8))

	binary.Write(buf, binary.LittleEndian, uint16(nEntries))
	writeEntry := func(tag, typ uint16, count, value uint32) {
		binary.Write(buf, binary.LittleEndian, tag)
		binary.Write(buf, binary.LittleEndian, typ)
		binary.Write(buf, binary.LittleEndian, count)
		binary.Write(buf, binary.LittleEndian, value)
	}
	writeEntry(256, 3, 1, uint32(opt.width))          // ImageWidth
	writeEntry(257, 3, 1, uint32(opt.height))         // ImageLength
	writeEntry(258, 3, 1, 8)                          // BitsPerSample
	writeEntry(259, 3, 1, 1)                          // Compression: none
	writeEntry(262, 3, 1, 1)                          // Photometric: BlackIsZero
	writeEntry(273, 4, 1, uint32(dataOff))            // StripOffsets
	writeEntry(277, 3, 1, 1)                          // SamplesPerPixel
	writeEntry(278, 4, 1, uint32(opt.height))         // RowsPerStrip
	writeEntry(279, 4, 1, uint32(opt.width*opt.height)) // StripByteCounts
	writeEntry(33550, 12, 3, uint32(scaleOff))        // ModelPixelScale
	writeEntry(33922, 12, 6, uint32(tieOff))          // ModelTiepoint
	if opt.epsg != 0 {
		writeEntry(34735, 3, 16, uint32(geoOff)) // GeoKeyDirectory
	}
	binary.Write(buf, binary.LittleEndian, uint32(0))

	binary.Write(buf, binary.LittleEndian, []float64{opt.pixelSize, opt.pixelSize, 0})
	binary.Write(buf, binary.LittleEndian, []float64{0, 0, 0, opt.originX, opt.originY, 0})

	if opt.epsg != 0 {
		model := uint16(2)
		codeKey := uint16(2048)
		if opt.epsg != EPSGWGS84 {
			model = 1
			codeKey = 3072
		}
		keys := []uint16{
			1, 1, 0, 3,
			1024, 0, 1, model,
			1025, 0, 1, 1,
			codeKey, 0, 1, uint16(opt.epsg),
		}
		binary.Write(buf, binary.LittleEndian, keys)
	}

	data := make([]byte, opt.width*opt.height)
	for i := range data {
		data[i] = byte(i % 251)
	}
	buf.Write(data)

	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		t.Fatalf("写入测试影像失败: %v", err)
	}
}
