package verifier

import (
	"context"

	"github.com/sirupsen/logrus"

	"contractaudit/internal/hashing"
	"contractaudit/internal/registry"
	"contractaudit/pkg/models"
)

// CodeFetcher 下载单个代码
type CodeFetcher interface {
	FetchCode(ctx context.Context, codeID string) (*models.CodeResponse, error)
}

// Inspection 单个代码的哈希核对结果
type Inspection struct {
	CodeID       string `json:"code_id"`
	ComputedHash string `json:"computed_hash"`
	Branch       string `json:"branch"`
	ChainHash    string `json:"chain_hash"`
	InRegistry   bool   `json:"in_registry"`
	RegistryName string `json:"registry_name,omitempty"`
	RegistryHash string `json:"registry_hash,omitempty"`
	// 按内容哈希在注册表中找到的条目，可能与代码编号不同
	HashOwner string `json:"hash_owner,omitempty"`
}

// MatchesChain 下载内容的哈希与链上记录的哈希一致
func (i *Inspection) MatchesChain() bool {
	return i.ChainHash != "" && i.ComputedHash == i.ChainHash
}

// MatchesRegistry 下载内容的哈希与注册表声明一致
func (i *Inspection) MatchesRegistry() bool {
	return i.InRegistry && i.ComputedHash == i.RegistryHash
}

// Inspect 下载代码字节，重新计算哈希并与链上及注册表核对
func (v *Verifier) Inspect(ctx context.Context, fetcher CodeFetcher, codeID string) (*Inspection, error) {
	ds, err := registry.LoadFile(v.config.Registry.Path)
	if err != nil {
		return nil, err
	}
	idx, err := registry.NewIndex(ds.Records)
	if err != nil {
		return nil, err
	}

	resp, err := fetcher.FetchCode(ctx, codeID)
	if err != nil {
		return nil, err
	}

	hash, branch, err := hashing.ComputeContentHashBranch(resp.Data)
	if err != nil {
		return nil, err
	}

	result := &Inspection{
		CodeID:       codeID,
		ComputedHash: hash,
		Branch:       branch.String(),
		ChainHash:    resp.CodeInfo.NormalizedHash(),
	}
	if entry, ok := idx.ByCodeID(codeID); ok {
		result.InRegistry = true
		result.RegistryName = entry.Name
		result.RegistryHash = entry.Hash
	}
	if owner, ok := idx.ByHash(hash); ok {
		result.HashOwner = owner.CodeID
	}

	v.logger.WithFields(logrus.Fields{
		"code_id":          codeID,
		"branch":           result.Branch,
		"matches_chain":    result.MatchesChain(),
		"matches_registry": result.MatchesRegistry(),
	}).Debug("代码核对完成")
	return result, nil
}
