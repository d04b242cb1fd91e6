package registry

import (
	"bytes"
	"encoding/json"
	"os"

	"contractaudit/internal/errors"
	"contractaudit/pkg/models"
)

// Dataset 注册表文件的两种视图：原始JSON值供结构校验，类型化记录供索引
type Dataset struct {
	Raw     interface{}
	Records []models.ContractRecord
}

// LoadFile 读取注册表文件
func LoadFile(path string) (*Dataset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WrapError(err, errors.ErrorTypeFileIO, errors.SeverityHigh,
			errors.CodeFileIOFailed, "读取注册表文件失败").
			WithComponent("registry").
			WithContext("path", path)
	}
	return Parse(data)
}

// Parse 解析注册表内容；原始值总是返回，类型化记录只在结构允许时返回
func Parse(data []byte) (*Dataset, error) {
	ds := &Dataset{}
	if err := json.Unmarshal(data, &ds.Raw); err != nil {
		return nil, errors.WrapError(err, errors.ErrorTypeSerialization, errors.SeverityHigh,
			errors.CodeSerializationFailed, "注册表不是合法的JSON").
			WithComponent("registry")
	}

	// 类型不符时留给结构校验报告具体路径
	var records []models.ContractRecord
	if err := json.Unmarshal(data, &records); err == nil {
		ds.Records = records
	}
	return ds, nil
}

// SaveFile 以两空格缩进写回注册表
func SaveFile(path string, records []models.ContractRecord) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(records); err != nil {
		return errors.WrapError(err, errors.ErrorTypeSerialization, errors.SeverityHigh,
			errors.CodeSerializationFailed, "注册表序列化失败").
			WithComponent("registry")
	}

	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		return errors.WrapError(err, errors.ErrorTypeFileIO, errors.SeverityHigh,
			errors.CodeFileIOFailed, "写入注册表文件失败").
			WithComponent("registry").
			WithContext("path", path)
	}
	return nil
}
