package models

import (
	"time"
)

// 差异类别
const (
	CategoryMissingFromRegistry    = "missing_from_registry"
	CategoryMissingFromChain       = "missing_from_chain"
	CategoryHashMismatch           = "hash_mismatch"
	CategoryOrphanedProposalUpload = "orphaned_proposal_upload"
	CategoryGenesisWithProposal    = "genesis_with_proposal"
)

// Categories 报告中类别的固定顺序
var Categories = []string{
	CategoryMissingFromRegistry,
	CategoryMissingFromChain,
	CategoryHashMismatch,
	CategoryOrphanedProposalUpload,
	CategoryGenesisWithProposal,
}

// MissingFromRegistry 链上存在但注册表缺失
type MissingFromRegistry struct {
	CodeID     string           `json:"code_id" yaml:"code_id"`
	ChainHash  string           `json:"chain_hash" yaml:"chain_hash"`
	Provenance *ProvenanceEntry `json:"provenance,omitempty" yaml:"provenance,omitempty"`
}

// MissingFromChain 注册表存在但链上缺失
type MissingFromChain struct {
	CodeID       string           `json:"code_id" yaml:"code_id"`
	Name         string           `json:"name" yaml:"name"`
	RegistryHash string           `json:"registry_hash" yaml:"registry_hash"`
	Provenance   *ProvenanceEntry `json:"provenance,omitempty" yaml:"provenance,omitempty"`
}

// HashMismatch 注册表与链上哈希不一致
type HashMismatch struct {
	CodeID       string           `json:"code_id" yaml:"code_id"`
	Name         string           `json:"name" yaml:"name"`
	RegistryHash string           `json:"registry_hash" yaml:"registry_hash"`
	ChainHash    string           `json:"chain_hash" yaml:"chain_hash"`
	Provenance   *ProvenanceEntry `json:"provenance,omitempty" yaml:"provenance,omitempty"`
}

// OrphanedProposalUpload 提案上传的代码既不在链上也不在注册表
type OrphanedProposalUpload struct {
	Hash       string           `json:"hash" yaml:"hash"`
	Provenance *ProvenanceEntry `json:"provenance" yaml:"provenance"`
}

// GenesisWithProposal 声明为创世但存在治理上传记录
type GenesisWithProposal struct {
	CodeID     string           `json:"code_id" yaml:"code_id"`
	Name       string           `json:"name" yaml:"name"`
	Governance string           `json:"governance" yaml:"governance"`
	Hash       string           `json:"hash" yaml:"hash"`
	Provenance *ProvenanceEntry `json:"provenance" yaml:"provenance"`
}

// ReportSummary 汇总信息
type ReportSummary struct {
	RegistryContracts int `json:"registry_contracts" yaml:"registry_contracts"`
	GenesisContracts  int `json:"genesis_contracts" yaml:"genesis_contracts"`
	ChainCodes        int `json:"chain_codes" yaml:"chain_codes"`
}

// DiscrepancyReport 对账结果，构造后不再修改
type DiscrepancyReport struct {
	RunID       string    `json:"run_id,omitempty" yaml:"run_id,omitempty"`
	GeneratedAt time.Time `json:"generated_at" yaml:"generated_at"`

	MissingFromRegistry     []MissingFromRegistry    `json:"missing_from_registry" yaml:"missing_from_registry"`
	MissingFromChain        []MissingFromChain       `json:"missing_from_chain" yaml:"missing_from_chain"`
	HashMismatches          []HashMismatch           `json:"hash_mismatches" yaml:"hash_mismatches"`
	OrphanedProposalUploads []OrphanedProposalUpload `json:"orphaned_proposal_uploads" yaml:"orphaned_proposal_uploads"`
	GenesisWithProposal     []GenesisWithProposal    `json:"genesis_with_proposal" yaml:"genesis_with_proposal"`

	Scan    ScanStats     `json:"scan" yaml:"scan"`
	Summary ReportSummary `json:"summary" yaml:"summary"`
}

// Total 差异总数
func (r *DiscrepancyReport) Total() int {
	return len(r.MissingFromRegistry) +
		len(r.MissingFromChain) +
		len(r.HashMismatches) +
		len(r.OrphanedProposalUploads) +
		len(r.GenesisWithProposal)
}

// Clean 五个列表是否全部为空
func (r *DiscrepancyReport) Clean() bool {
	return r.Total() == 0
}

// CategoryCounts 按类别统计差异数量
func (r *DiscrepancyReport) CategoryCounts() map[string]int {
	return map[string]int{
		CategoryMissingFromRegistry:    len(r.MissingFromRegistry),
		CategoryMissingFromChain:       len(r.MissingFromChain),
		CategoryHashMismatch:           len(r.HashMismatches),
		CategoryOrphanedProposalUpload: len(r.OrphanedProposalUploads),
		CategoryGenesisWithProposal:    len(r.GenesisWithProposal),
	}
}

// ToKafkaMessage 转换为Kafka汇总消息格式
func (r *DiscrepancyReport) ToKafkaMessage() map[string]interface{} {
	return map[string]interface{}{
		"type":         "reconciliation_summary",
		"run_id":       r.RunID,
		"generated_at": r.GeneratedAt.Unix(),
		"total":        r.Total(),
		"clean":        r.Clean(),
		"categories":   r.CategoryCounts(),
		"scan":         r.Scan,
		"summary":      r.Summary,
	}
}

// Discrepancy 单条差异的通用视图，用于逐条发送
type Discrepancy struct {
	Category   string           `json:"category"`
	CodeID     string           `json:"code_id,omitempty"`
	Name       string           `json:"name,omitempty"`
	Hash       string           `json:"hash,omitempty"`
	ChainHash  string           `json:"chain_hash,omitempty"`
	Provenance *ProvenanceEntry `json:"provenance,omitempty"`
}

// Flatten 按固定类别顺序展开所有差异
func (r *DiscrepancyReport) Flatten() []Discrepancy {
	items := make([]Discrepancy, 0, r.Total())
	for _, d := range r.MissingFromRegistry {
		items = append(items, Discrepancy{Category: CategoryMissingFromRegistry, CodeID: d.CodeID, ChainHash: d.ChainHash, Provenance: d.Provenance})
	}
	for _, d := range r.MissingFromChain {
		items = append(items, Discrepancy{Category: CategoryMissingFromChain, CodeID: d.CodeID, Name: d.Name, Hash: d.RegistryHash, Provenance: d.Provenance})
	}
	for _, d := range r.HashMismatches {
		items = append(items, Discrepancy{Category: CategoryHashMismatch, CodeID: d.CodeID, Name: d.Name, Hash: d.RegistryHash, ChainHash: d.ChainHash, Provenance: d.Provenance})
	}
	for _, d := range r.OrphanedProposalUploads {
		items = append(items, Discrepancy{Category: CategoryOrphanedProposalUpload, Hash: d.Hash, Provenance: d.Provenance})
	}
	for _, d := range r.GenesisWithProposal {
		items = append(items, Discrepancy{Category: CategoryGenesisWithProposal, CodeID: d.CodeID, Name: d.Name, Hash: d.Hash, Provenance: d.Provenance})
	}
	return items
}

// ToKafkaMessage 转换为Kafka消息格式
func (d *Discrepancy) ToKafkaMessage(runID string) map[string]interface{} {
	msg := map[string]interface{}{
		"type":     "discrepancy",
		"run_id":   runID,
		"category": d.Category,
		"code_id":  d.CodeID,
		"name":     d.Name,
		"hash":     d.Hash,
	}
	if d.ChainHash != "" {
		msg["chain_hash"] = d.ChainHash
	}
	if d.Provenance != nil {
		msg["proposal_id"] = d.Provenance.ProposalID
		msg["proposal_title"] = d.Provenance.Title
		msg["proposal_status"] = d.Provenance.Status
	}
	return msg
}
