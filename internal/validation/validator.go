package validation

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"contractaudit/internal/errors"
	"contractaudit/pkg/models"
)

// Validator 注册表结构验证器
type Validator struct {
	logger     *logrus.Logger
	strictMode bool // 严格模式下lint警告也视为失败
	schema     *Node
	rules      []ValidationRule
}

// ValidationRule 整个数据集层面的验证规则
type ValidationRule interface {
	Validate(entries []interface{}) error
	Name() string
	Description() string
}

// ValidationResult 验证结果
type ValidationResult struct {
	Valid    bool                 `json:"valid"`
	Errors   []*errors.AuditError `json:"errors,omitempty"`
	Warnings []string             `json:"warnings,omitempty"`
	Entries  int                  `json:"entries"`
}

// NewValidator 创建注册表验证器
func NewValidator(logger *logrus.Logger, strictMode bool) *Validator {
	v := &Validator{
		logger:     logger,
		strictMode: strictMode,
		schema:     RegistrySchema(),
	}

	// 顺序即检查顺序
	v.AddRule(&DuplicateCodeIDRule{})
	v.AddRule(&PartitionRule{})
	v.AddRule(&CodeIDOrderRule{})

	return v
}

// AddRule 添加验证规则
func (v *Validator) AddRule(rule ValidationRule) {
	v.rules = append(v.rules, rule)
	v.logger.Debugf("已注册验证规则: %s", rule.Name())
}

// Validate 深度优先校验，遇到第一个问题即返回
func (v *Validator) Validate(data interface{}) error {
	entries, ok := data.([]interface{})
	if !ok || v.schema.Kind != KindArray {
		return errors.NewDatasetShapeError("registry must be an array")
	}

	for _, rule := range v.rules {
		if err := rule.Validate(entries); err != nil {
			return err
		}
	}

	for i, entry := range entries {
		if err := validateNode(entry, v.schema.Items, fmt.Sprintf("[%d]", i)); err != nil {
			return err
		}
	}
	return nil
}

// ValidateDataset 校验并附带lint警告
func (v *Validator) ValidateDataset(data interface{}, records []models.ContractRecord) *ValidationResult {
	result := &ValidationResult{
		Valid:    true,
		Errors:   make([]*errors.AuditError, 0),
		Warnings: make([]string, 0),
	}
	if entries, ok := data.([]interface{}); ok {
		result.Entries = len(entries)
	}

	if err := v.Validate(data); err != nil {
		result.Valid = false
		if ae, ok := err.(*errors.AuditError); ok {
			result.Errors = append(result.Errors, ae)
		} else {
			result.Errors = append(result.Errors, errors.WrapError(err,
				errors.ErrorTypeValidation, errors.SeverityHigh,
				errors.CodeDatasetShapeInvalid, "注册表验证失败"))
		}
		return result
	}

	result.Warnings = Lint(records)
	if v.strictMode && len(result.Warnings) > 0 {
		result.Valid = false
		result.Errors = append(result.Errors, errors.NewDatasetShapeError(
			fmt.Sprintf("strict mode: %d lint warning(s)", len(result.Warnings))))
	}

	v.logger.WithFields(logrus.Fields{
		"entries":  result.Entries,
		"valid":    result.Valid,
		"warnings": len(result.Warnings),
	}).Debug("注册表验证完成")

	return result
}

// SetStrictMode 设置严格模式
func (v *Validator) SetStrictMode(strict bool) {
	v.strictMode = strict
	v.logger.Infof("验证器严格模式设置为: %t", strict)
}

func shapeError(path, msg string) *errors.AuditError {
	return errors.NewDatasetShapeError(path+" "+msg).WithContext("path", path)
}

// validateNode 按节点类型递归校验
func validateNode(value interface{}, node *Node, path string) error {
	switch node.Kind {
	case KindString:
		s, ok := value.(string)
		if !ok {
			return shapeError(path, "must be a string")
		}
		if node.MinLength > 0 && len([]rune(s)) < node.MinLength {
			return shapeError(path, fmt.Sprintf("must be at least %d characters", node.MinLength))
		}
		if node.Pattern != nil && !node.Pattern.MatchString(s) {
			if node.Message != "" {
				return shapeError(path, node.Message)
			}
			return shapeError(path, "must match pattern: "+node.Pattern.String())
		}
		if node.Check != nil {
			if err := node.Check(s); err != nil {
				return shapeError(path, err.Error())
			}
		}
		return nil

	case KindBoolean:
		if _, ok := value.(bool); !ok {
			return shapeError(path, "must be a boolean")
		}
		return nil

	case KindArray:
		items, ok := value.([]interface{})
		if !ok {
			return shapeError(path, "must be an array")
		}
		for i, item := range items {
			if err := validateNode(item, node.Items, fmt.Sprintf("%s[%d]", path, i)); err != nil {
				return err
			}
		}
		return nil

	case KindObject:
		obj, ok := value.(map[string]interface{})
		if !ok {
			return shapeError(path, "must be an object")
		}
		for _, key := range node.Required {
			if _, exists := obj[key]; !exists {
				return shapeError(path, "missing required property: "+key)
			}
		}
		for _, key := range sortedKeys(obj) {
			if _, known := node.Properties[key]; !known {
				return shapeError(path, "has unknown property: "+key)
			}
		}
		for _, key := range propertyOrder(node, obj) {
			if err := validateNode(obj[key], node.Properties[key], path+"."+key); err != nil {
				return err
			}
		}
		return nil
	}

	return errors.NewDatasetShapeError(fmt.Sprintf("unknown schema type: %s", node.Kind))
}

func sortedKeys(obj map[string]interface{}) []string {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// propertyOrder 先按必填字段声明顺序，再按名称排序其余字段
func propertyOrder(node *Node, obj map[string]interface{}) []string {
	order := make([]string, 0, len(obj))
	seen := make(map[string]bool, len(node.Required))
	for _, key := range node.Required {
		order = append(order, key)
		seen[key] = true
	}
	for _, key := range sortedKeys(obj) {
		if !seen[key] {
			order = append(order, key)
		}
	}
	return order
}

// field 从条目中取字符串字段，条目不是对象或字段不是字符串时返回false
func field(entry interface{}, key string) (string, bool) {
	obj, ok := entry.(map[string]interface{})
	if !ok {
		return "", false
	}
	s, ok := obj[key].(string)
	return s, ok
}

func isDeprecated(entry interface{}) bool {
	obj, ok := entry.(map[string]interface{})
	if !ok {
		return false
	}
	deprecated, _ := obj["deprecated"].(bool)
	return deprecated
}

// DuplicateCodeIDRule 代码编号唯一
type DuplicateCodeIDRule struct{}

func (r *DuplicateCodeIDRule) Name() string {
	return "duplicate_code_id"
}

func (r *DuplicateCodeIDRule) Description() string {
	return "代码编号不能重复"
}

// Validate 缺少code_id的条目交给字段校验报告
func (r *DuplicateCodeIDRule) Validate(entries []interface{}) error {
	seen := make(map[string]bool, len(entries))
	for i, entry := range entries {
		codeID, ok := field(entry, "code_id")
		if !ok {
			continue
		}
		if seen[codeID] {
			return shapeError(fmt.Sprintf("[%d].code_id", i), fmt.Sprintf("Duplicate code_id %s found", codeID)).
				WithCodeID(codeID)
		}
		seen[codeID] = true
	}
	return nil
}

// PartitionRule 未弃用条目必须全部位于弃用条目之前
type PartitionRule struct{}

func (r *PartitionRule) Name() string {
	return "active_before_deprecated"
}

func (r *PartitionRule) Description() string {
	return "未弃用的合约排在弃用合约之前"
}

func (r *PartitionRule) Validate(entries []interface{}) error {
	active := 0
	for _, entry := range entries {
		if !isDeprecated(entry) {
			active++
		}
	}

	for i, entry := range entries {
		deprecated := isDeprecated(entry)
		if !deprecated && i >= active {
			return shapeError(fmt.Sprintf("[%d]", i), "Active contracts should come before deprecated contracts")
		}
		if deprecated && i < active {
			return shapeError(fmt.Sprintf("[%d]", i), "Deprecated contracts should come after active contracts")
		}
	}
	return nil
}

// CodeIDOrderRule 每个分区内代码编号按数值不减
type CodeIDOrderRule struct{}

func (r *CodeIDOrderRule) Name() string {
	return "code_id_order"
}

func (r *CodeIDOrderRule) Description() string {
	return "分区内按代码编号升序排列"
}

// indexedEntry 条目及其在数据集中的下标
type indexedEntry struct {
	index int
	entry interface{}
}

func (r *CodeIDOrderRule) Validate(entries []interface{}) error {
	var active, deprecated []indexedEntry
	for i, entry := range entries {
		if isDeprecated(entry) {
			deprecated = append(deprecated, indexedEntry{index: i, entry: entry})
		} else {
			active = append(active, indexedEntry{index: i, entry: entry})
		}
	}

	if err := checkOrder("Active", active); err != nil {
		return err
	}
	return checkOrder("Deprecated", deprecated)
}

// checkOrder 无法解析为数字的编号跳过比较，由字段校验报告
func checkOrder(label string, entries []indexedEntry) error {
	for i := 1; i < len(entries); i++ {
		prev, prevOK := numericCodeID(entries[i-1].entry)
		curr, currOK := numericCodeID(entries[i].entry)
		if !prevOK || !currOK {
			continue
		}
		if curr < prev {
			prevName, _ := field(entries[i-1].entry, "name")
			currName, _ := field(entries[i].entry, "name")
			return shapeError(fmt.Sprintf("[%d]", entries[i].index), fmt.Sprintf(
				"%s contracts not in code_id order: %s (%d) comes before %s (%d)",
				label, prevName, prev, currName, curr))
		}
	}
	return nil
}

func numericCodeID(entry interface{}) (uint64, bool) {
	codeID, ok := field(entry, "code_id")
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseUint(strings.TrimSpace(codeID), 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}
