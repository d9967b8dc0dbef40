package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// JSON 通用 JSON 对象列
type JSON map[string]interface{}

// Value 实现 driver.Valuer 接口
func (j JSON) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	raw, err := json.Marshal(j)
	if err != nil {
		return nil, err
	}
	return string(raw), nil
}

// Scan 实现 sql.Scanner 接口
func (j *JSON) Scan(value interface{}) error {
	if value == nil {
		*j = make(JSON)
		return nil
	}
	var raw []byte
	switch v := value.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("unsupported json column type %T", value)
	}
	if len(raw) == 0 {
		*j = make(JSON)
		return nil
	}
	return json.Unmarshal(raw, j)
}

// AppendEvent 以追加方式记录一条事件，已有数据保持不变
func (j JSON) AppendEvent(event JSON) JSON {
	merged := make(JSON, len(j)+1)
	for key, value := range j {
		merged[key] = value
	}
	var events []interface{}
	switch existing := merged["events"].(type) {
	case []interface{}:
		events = append(events, existing...)
	case []JSON:
		for _, item := range existing {
			events = append(events, item)
		}
	}
	events = append(events, event)
	merged["events"] = events
	return merged
}

// EventCount 返回已记录事件数量
func (j JSON) EventCount() int {
	switch existing := j["events"].(type) {
	case []interface{}:
		return len(existing)
	case []JSON:
		return len(existing)
	}
	return 0
}
