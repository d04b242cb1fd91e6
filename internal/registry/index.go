package registry

import (
	"fmt"

	"contractaudit/internal/errors"
	"contractaudit/internal/hashing"
	"contractaudit/pkg/models"
)

// IndexEntry 注册表条目的查询视图
type IndexEntry struct {
	CodeID     string
	Name       string
	Hash       string // 已统一为大写
	Governance string
	IsGenesis  bool
}

// Index 注册表按代码编号与内容哈希的索引，构建后只读
type Index struct {
	byCodeID map[string]*IndexEntry
	byHash   map[string]*IndexEntry
	entries  []*IndexEntry
	genesis  int
}

// NewIndex 构建注册表索引，代码编号重复时返回错误而不是覆盖
func NewIndex(records []models.ContractRecord) (*Index, error) {
	idx := &Index{
		byCodeID: make(map[string]*IndexEntry, len(records)),
		byHash:   make(map[string]*IndexEntry, len(records)),
		entries:  make([]*IndexEntry, 0, len(records)),
	}

	for i := range records {
		rec := &records[i]
		if existing, dup := idx.byCodeID[rec.CodeID]; dup {
			return nil, errors.NewAuditError(errors.ErrorTypeValidation, errors.SeverityHigh,
				errors.CodeDuplicateCodeID,
				fmt.Sprintf("Duplicate code_id %s found (%s, %s)", rec.CodeID, existing.Name, rec.Name)).
				WithComponent("registry").
				WithCodeID(rec.CodeID)
		}

		entry := &IndexEntry{
			CodeID:     rec.CodeID,
			Name:       rec.Name,
			Hash:       hashing.NormalizeHash(rec.Hash),
			Governance: rec.Governance,
			IsGenesis:  rec.IsGenesis(),
		}
		idx.byCodeID[entry.CodeID] = entry
		// 同一内容可能以多个编号部署，哈希索引保留第一个
		if _, exists := idx.byHash[entry.Hash]; !exists {
			idx.byHash[entry.Hash] = entry
		}
		idx.entries = append(idx.entries, entry)
		if entry.IsGenesis {
			idx.genesis++
		}
	}

	return idx, nil
}

// ByCodeID 按代码编号查询
func (idx *Index) ByCodeID(codeID string) (*IndexEntry, bool) {
	entry, ok := idx.byCodeID[codeID]
	return entry, ok
}

// ByHash 按内容哈希查询，大小写不敏感
func (idx *Index) ByHash(hash string) (*IndexEntry, bool) {
	entry, ok := idx.byHash[hashing.NormalizeHash(hash)]
	return entry, ok
}

// HasHash 哈希是否出现在注册表中
func (idx *Index) HasHash(hash string) bool {
	_, ok := idx.ByHash(hash)
	return ok
}

// Entries 按注册表原始顺序返回条目
func (idx *Index) Entries() []*IndexEntry {
	return idx.entries
}

// Len 条目数量
func (idx *Index) Len() int {
	return len(idx.entries)
}

// GenesisCount 创世合约数量
func (idx *Index) GenesisCount() int {
	return idx.genesis
}
