package models

import "gorm.io/datatypes"

type TileSession struct {
	ID         int64          `gorm:"primary_key;autoIncrement"`
	SessionID  string         `gorm:"type:varchar(255);uniqueIndex"` //切片会话ID，格式 YYYYMMDD_HHMMSS_文件名
	SourceName string         `gorm:"type:varchar(255)"`             //上传的原始文件名
	SourcePath string         `gorm:"type:varchar(255)"`             //上传文件的保存路径
	TilesDir   string         `gorm:"type:varchar(255)"`             //瓦片输出目录
	TileCount  int            //成功落盘的瓦片数量
	Status     int            //会话状态 0 切片中 1 切片完成 2 切片失败
	Args       datatypes.JSON `gorm:"type:jsonb"` //切片参数
}

func (TileSession) TableName() string {
	return "tile_session"
}
