package reconcile

import (
	"time"

	"github.com/sirupsen/logrus"

	"contractaudit/internal/proposal"
	"contractaudit/internal/registry"
	"contractaudit/pkg/models"
)

// Engine 注册表、链上代码与提案历史的三方对账
type Engine struct {
	logger *logrus.Logger
	now    func() time.Time
}

// NewEngine 创建对账引擎
func NewEngine(logger *logrus.Logger) *Engine {
	return &Engine{
		logger: logger,
		now:    time.Now,
	}
}

// chainView 链上代码按编号与哈希的集合
type chainView struct {
	entries []models.ChainCodeEntry
	codeIDs map[string]bool
	hashes  map[string]bool
}

func newChainView(entries []models.ChainCodeEntry) *chainView {
	cv := &chainView{
		entries: entries,
		codeIDs: make(map[string]bool, len(entries)),
		hashes:  make(map[string]bool, len(entries)),
	}
	for _, e := range entries {
		cv.codeIDs[e.CodeID] = true
		cv.hashes[e.NormalizedHash()] = true
	}
	return cv
}

// Reconcile 执行五个相互独立的对账步骤，各步骤保持驱动集合的顺序。
// 返回的报告已包含runID，之后不再修改
func (e *Engine) Reconcile(runID string, reg *registry.Index, chain []models.ChainCodeEntry, props *proposal.Index) *models.DiscrepancyReport {
	cv := newChainView(chain)

	report := &models.DiscrepancyReport{
		RunID:                   runID,
		GeneratedAt:             e.now().UTC(),
		MissingFromRegistry:     e.missingFromRegistry(reg, cv, props),
		HashMismatches:          e.hashMismatches(reg, cv, props),
		MissingFromChain:        e.missingFromChain(reg, cv, props),
		OrphanedProposalUploads: e.orphanedProposalUploads(reg, cv, props),
		GenesisWithProposal:     e.genesisWithProposal(reg, props),
		Scan:                    props.Stats(),
		Summary: models.ReportSummary{
			RegistryContracts: reg.Len(),
			GenesisContracts:  reg.GenesisCount(),
			ChainCodes:        len(chain),
		},
	}

	e.logger.WithFields(logrus.Fields{
		"missing_from_registry":     len(report.MissingFromRegistry),
		"missing_from_chain":        len(report.MissingFromChain),
		"hash_mismatches":           len(report.HashMismatches),
		"orphaned_proposal_uploads": len(report.OrphanedProposalUploads),
		"genesis_with_proposal":     len(report.GenesisWithProposal),
	}).Info("对账完成")

	return report
}

func lookup(props *proposal.Index, hash string) *models.ProvenanceEntry {
	entry, ok := props.Lookup(hash)
	if !ok {
		return nil
	}
	return entry
}

func (e *Engine) missingFromRegistry(reg *registry.Index, cv *chainView, props *proposal.Index) []models.MissingFromRegistry {
	out := make([]models.MissingFromRegistry, 0)
	for _, c := range cv.entries {
		if _, ok := reg.ByCodeID(c.CodeID); ok {
			continue
		}
		chainHash := c.NormalizedHash()
		out = append(out, models.MissingFromRegistry{
			CodeID:     c.CodeID,
			ChainHash:  chainHash,
			Provenance: lookup(props, chainHash),
		})
	}
	return out
}

func (e *Engine) hashMismatches(reg *registry.Index, cv *chainView, props *proposal.Index) []models.HashMismatch {
	out := make([]models.HashMismatch, 0)
	for _, c := range cv.entries {
		entry, ok := reg.ByCodeID(c.CodeID)
		if !ok {
			continue
		}
		chainHash := c.NormalizedHash()
		if entry.Hash == chainHash {
			continue
		}
		out = append(out, models.HashMismatch{
			CodeID:       c.CodeID,
			Name:         entry.Name,
			RegistryHash: entry.Hash,
			ChainHash:    chainHash,
			Provenance:   lookup(props, chainHash),
		})
	}
	return out
}

func (e *Engine) missingFromChain(reg *registry.Index, cv *chainView, props *proposal.Index) []models.MissingFromChain {
	out := make([]models.MissingFromChain, 0)
	for _, entry := range reg.Entries() {
		if cv.codeIDs[entry.CodeID] {
			continue
		}
		out = append(out, models.MissingFromChain{
			CodeID:       entry.CodeID,
			Name:         entry.Name,
			RegistryHash: entry.Hash,
			Provenance:   lookup(props, entry.Hash),
		})
	}
	return out
}

func (e *Engine) orphanedProposalUploads(reg *registry.Index, cv *chainView, props *proposal.Index) []models.OrphanedProposalUpload {
	out := make([]models.OrphanedProposalUpload, 0)
	for _, p := range props.Entries() {
		if cv.hashes[p.Hash] || reg.HasHash(p.Hash) {
			continue
		}
		out = append(out, models.OrphanedProposalUpload{
			Hash:       p.Hash,
			Provenance: p,
		})
	}
	return out
}

func (e *Engine) genesisWithProposal(reg *registry.Index, props *proposal.Index) []models.GenesisWithProposal {
	out := make([]models.GenesisWithProposal, 0)
	for _, entry := range reg.Entries() {
		if !entry.IsGenesis {
			continue
		}
		p := lookup(props, entry.Hash)
		if p == nil {
			continue
		}
		out = append(out, models.GenesisWithProposal{
			CodeID:     entry.CodeID,
			Name:       entry.Name,
			Governance: entry.Governance,
			Hash:       entry.Hash,
			Provenance: p,
		})
	}
	return out
}
