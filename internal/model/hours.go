package model

import (
	"database/sql/driver"
	"fmt"
	"math"
	"strconv"
)

// Hours 小时数定点表示，内部以百分之一小时（centi-hour）为单位存储，
// 避免大量小额扣费累积浮点误差
type Hours int64

// HoursFromFloat 从浮点小时数转换，四舍五入到两位小数
func HoursFromFloat(f float64) Hours {
	return Hours(math.Round(f * 100))
}

// HoursFromSeconds 从秒数转换，不足 0.01 小时向上取整（计费从不向下取整）
func HoursFromSeconds(seconds float64) Hours {
	if seconds <= 0 {
		return 0
	}
	return Hours(math.Ceil(seconds / 36.0))
}

// Float 转换为浮点小时数
func (h Hours) Float() float64 {
	return float64(h) / 100
}

// String 格式化为两位小数字符串，如 "2.50"
func (h Hours) String() string {
	return strconv.FormatFloat(h.Float(), 'f', 2, 64)
}

// MarshalJSON 序列化为两位小数的 JSON 数字
func (h Hours) MarshalJSON() ([]byte, error) {
	return []byte(h.String()), nil
}

// UnmarshalJSON 从 JSON 数字反序列化
func (h *Hours) UnmarshalJSON(data []byte) error {
	f, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		return fmt.Errorf("invalid hours value: %s", data)
	}
	*h = HoursFromFloat(f)
	return nil
}

// Value 数据库存储为整数（centi-hour）
func (h Hours) Value() (driver.Value, error) {
	return int64(h), nil
}

// Scan 从数据库读取
func (h *Hours) Scan(value interface{}) error {
	switch v := value.(type) {
	case int64:
		*h = Hours(v)
	case nil:
		*h = 0
	default:
		return fmt.Errorf("cannot scan %T into Hours", value)
	}
	return nil
}
