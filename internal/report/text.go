package report

import (
	"bufio"
	"fmt"
	"io"

	"contractaudit/pkg/models"
)

// Printer 将对账结果渲染为文本
type Printer struct {
	w   *bufio.Writer
	err error
}

// NewPrinter 创建文本渲染器
func NewPrinter(w io.Writer) *Printer {
	return &Printer{w: bufio.NewWriter(w)}
}

func (p *Printer) line(format string, args ...interface{}) {
	if p.err != nil {
		return
	}
	_, p.err = fmt.Fprintf(p.w, format+"\n", args...)
}

// Write 输出汇总和全部差异
func Write(w io.Writer, r *models.DiscrepancyReport) error {
	p := NewPrinter(w)
	p.Summary(r)
	p.Discrepancies(r)
	return p.Flush()
}

// Flush 刷新缓冲区并返回第一个写入错误
func (p *Printer) Flush() error {
	if p.err != nil {
		return p.err
	}
	return p.w.Flush()
}

// Summary 输出汇总计数
func (p *Printer) Summary(r *models.DiscrepancyReport) {
	p.line("")
	p.line("📊 Analysis Summary:")
	p.line("   Total contracts in contracts.json: %d", r.Summary.RegistryContracts)
	p.line("   Genesis contracts: %d", r.Summary.GenesisContracts)
	p.line("   Total code IDs on chain: %d", r.Summary.ChainCodes)
	p.line("   Total proposals analyzed: %d", r.Scan.ProposalsSeen)
	p.line("   Proposals with store code: %d", r.Scan.ProposalsWithUpload)
	p.line("   Total store code messages: %d", r.Scan.UploadMessagesSeen)
	if r.Scan.SkippedMessages > 0 {
		p.line("   Skipped store code messages: %d", r.Scan.SkippedMessages)
	}
	p.line("")
}

// Discrepancies 按固定顺序输出五类差异
func (p *Printer) Discrepancies(r *models.DiscrepancyReport) {
	if r.Clean() {
		p.line("✅ All verifications passed successfully!")
		return
	}

	p.line("❌ Found the following discrepancies:")
	p.line("")

	if len(r.MissingFromRegistry) > 0 {
		p.line("📝 Codes that exist on chain but not in contracts.json:")
		for _, d := range r.MissingFromRegistry {
			p.line("   Code ID %s:", d.CodeID)
			p.line("   Hash: %s", d.ChainHash)
			if d.Provenance != nil {
				p.provenance(d.Provenance)
			} else {
				p.line("   No matching proposal found")
			}
			p.line("")
		}
	}

	if len(r.MissingFromChain) > 0 {
		p.line("🔍 Codes that exist in contracts.json but not on chain:")
		for _, d := range r.MissingFromChain {
			p.line("   Code ID %s (%s)", d.CodeID, d.Name)
			p.line("   Hash: %s", d.RegistryHash)
			p.provenance(d.Provenance)
			p.line("")
		}
	}

	if len(r.HashMismatches) > 0 {
		p.line("⚠️  Hash mismatches between chain and contracts.json:")
		for _, d := range r.HashMismatches {
			p.line("   Code ID %s (%s):", d.CodeID, d.Name)
			p.line("   contracts.json: %s", d.RegistryHash)
			p.line("   chain:         %s", d.ChainHash)
			p.provenance(d.Provenance)
			p.line("")
		}
	}

	if len(r.OrphanedProposalUploads) > 0 {
		p.line("❗ Store code messages found in proposals but missing from both chain and contracts.json:")
		for _, d := range r.OrphanedProposalUploads {
			p.line("   Hash: %s", d.Hash)
			p.provenance(d.Provenance)
			p.line("")
		}
	}

	if len(r.GenesisWithProposal) > 0 {
		p.line(`⚠️  Contracts marked as "Genesis" but were uploaded via governance proposal:`)
		for _, d := range r.GenesisWithProposal {
			p.line("   Code ID %s (%s):", d.CodeID, d.Name)
			p.line("   Governance: %s", d.Governance)
			p.line("   Hash: %s", d.Hash)
			p.provenance(d.Provenance)
			p.line("")
		}
	}

	p.line("Total discrepancies: %d", r.Total())
}

func (p *Printer) provenance(e *models.ProvenanceEntry) {
	if e == nil {
		return
	}
	p.line("   Found in Proposal %s: %s", e.ProposalID, e.Title)
	p.line("   Status: %s", e.Status)
	p.line("   Message %d of %d", e.MessageIndex, e.TotalMessages)
}
