package models

import "gorm.io/datatypes"

type TileTask struct {
	ID         int64          `gorm:"primary_key;autoIncrement"`
	TaskID     string         `gorm:"type:varchar(255);uniqueIndex"` //异步任务ID
	SessionID  string         `gorm:"type:varchar(255)"`             //关联的切片会话ID
	SourcePath string         `gorm:"type:varchar(255)"`             //栅格源路径
	OutputPath string         `gorm:"type:varchar(255)"`             //瓦片输出目录
	Status     int            //任务运行状态 0 运行中 1 执行完成  2 执行失败
	TypeName   string         `gorm:"type:varchar(255)"`             //任务类型
	Args       datatypes.JSON `gorm:"type:jsonb"`                    //任务输入参数
}

func (TileTask) TableName() string {
	return "tile_task"
}
