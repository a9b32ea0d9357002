package utils

import "github.com/google/uuid"

// GenerateID 按时间排序的 UUID（v7）。同一进程生成的 id 按创建顺序排序，
// 同一毫秒内的记录也保持稳定顺序
func GenerateID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// IsID s 是否为合法 UUID
func IsID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}
