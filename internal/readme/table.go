package readme

import (
	"os"
	"regexp"
	"strings"

	"github.com/sirupsen/logrus"

	"contractaudit/internal/errors"
	"contractaudit/pkg/models"
)

// TestnetColumn 测试网代码ID列名
const TestnetColumn = "Code ID (Testnet)"

var tableHeaderPattern = regexp.MustCompile(`^\|.*Name.*\|.*Code ID.*\|`)

// Result 表格更新结果
type Result struct {
	Inserted bool     // 新增了测试网列，否则为刷新已有列
	Rows     int      // 处理的数据行数
	Unknown  []string // 注册表中找不到的合约名
}

// Rewriter README合约表格更新器
type Rewriter struct {
	logger *logrus.Logger
}

// NewRewriter 创建更新器
func NewRewriter(logger *logrus.Logger) *Rewriter {
	return &Rewriter{logger: logger}
}

// UpdateFile 更新README文件中的合约表格
func (r *Rewriter) UpdateFile(path string, records []models.ContractRecord) (*Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fileError(err, "读取README失败", path)
	}

	content, result, err := r.Update(string(data), records)
	if err != nil {
		return nil, err
	}

	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return nil, fileError(err, "写入README失败", path)
	}

	if result.Inserted {
		r.logger.Infof("已新增测试网列并更新 %d 行", result.Rows)
	} else {
		r.logger.Infof("测试网列已存在，已刷新 %d 行", result.Rows)
	}
	return result, nil
}

// Update 在内容中插入或刷新测试网代码ID列
func (r *Rewriter) Update(content string, records []models.ContractRecord) (string, *Result, error) {
	lines := strings.Split(content, "\n")

	start := -1
	for i, line := range lines {
		if tableHeaderPattern.MatchString(line) {
			start = i
			break
		}
	}
	if start == -1 {
		return "", nil, errors.NewAuditError(errors.ErrorTypeData, errors.SeverityMedium,
			errors.CodeDatasetShapeInvalid, "README中找不到合约表格").WithComponent("readme")
	}

	// 表格到第一个空行结束
	end := len(lines)
	for i := start + 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == "" {
			end = i
			break
		}
	}

	byName := make(map[string]*models.ContractRecord, len(records))
	for i := range records {
		if _, ok := byName[records[i].Name]; !ok {
			byName[records[i].Name] = &records[i]
		}
	}

	header := splitRow(lines[start])
	result := &Result{}
	testnetIdx := columnIndex(header, TestnetColumn)

	if testnetIdx == -1 {
		codeIdx := columnIndex(header, "Code ID")
		testnetIdx = codeIdx + 1
		header = insertCell(header, testnetIdx, " "+TestnetColumn+" ")
		lines[start] = strings.Join(header, "|")
		result.Inserted = true
	}

	for i := start + 1; i < end; i++ {
		cells := splitRow(lines[i])
		if isSeparator(cells) {
			if result.Inserted {
				cells = insertCell(cells, testnetIdx, "---")
				lines[i] = strings.Join(cells, "|")
			}
			continue
		}
		if len(cells) < 2 {
			continue
		}

		name := strings.TrimSpace(cells[1])
		value := "-"
		if rec, ok := byName[name]; !ok {
			result.Unknown = append(result.Unknown, name)
		} else if rec.Testnet != nil {
			value = "`" + rec.Testnet.CodeID + "`"
		}

		if result.Inserted {
			cells = insertCell(cells, testnetIdx, " "+value+" ")
		} else if testnetIdx < len(cells) {
			cells[testnetIdx] = " " + value + " "
		}
		lines[i] = strings.Join(cells, "|")
		result.Rows++
	}

	for _, name := range result.Unknown {
		r.logger.Warnf("README中的合约 %q 不在注册表中", name)
	}
	return strings.Join(lines, "\n"), result, nil
}

func splitRow(line string) []string {
	return strings.Split(line, "|")
}

func columnIndex(cells []string, title string) int {
	for i, c := range cells {
		if strings.Contains(c, title) {
			return i
		}
	}
	return -1
}

func insertCell(cells []string, idx int, value string) []string {
	out := make([]string, 0, len(cells)+1)
	out = append(out, cells[:idx]...)
	out = append(out, value)
	return append(out, cells[idx:]...)
}

func isSeparator(cells []string) bool {
	seen := false
	for _, c := range cells {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		if strings.Trim(c, "-:") != "" {
			return false
		}
		seen = true
	}
	return seen
}

func fileError(err error, message, path string) *errors.AuditError {
	return errors.WrapError(err, errors.ErrorTypeFileIO, errors.SeverityHigh,
		errors.CodeFileIOFailed, message).
		WithComponent("readme").
		WithContext("path", path)
}
