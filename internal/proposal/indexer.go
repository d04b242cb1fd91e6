package proposal

import (
	"context"

	"github.com/sirupsen/logrus"

	"contractaudit/internal/errors"
	"contractaudit/internal/hashing"
	"contractaudit/pkg/models"
)

// MsgStoreCode 代码上传消息类型
const MsgStoreCode = "/cosmwasm.wasm.v1.MsgStoreCode"

var statusNames = map[string]string{
	"PROPOSAL_STATUS_UNSPECIFIED":    "Unspecified",
	"PROPOSAL_STATUS_DEPOSIT_PERIOD": "Deposit Period",
	"PROPOSAL_STATUS_VOTING_PERIOD":  "Voting Period",
	"PROPOSAL_STATUS_PASSED":         "Passed",
	"PROPOSAL_STATUS_REJECTED":       "Rejected",
	"PROPOSAL_STATUS_FAILED":         "Failed",
}

// HumanStatus 提案状态转为可读形式，未知状态原样返回
func HumanStatus(status string) string {
	if name, ok := statusNames[status]; ok {
		return name
	}
	return status
}

// Index 内容哈希到来源提案的索引，构建后只读
type Index struct {
	byHash map[string]*models.ProvenanceEntry
	order  []string
	stats  models.ScanStats
}

// NewIndex 创建空索引
func NewIndex() *Index {
	return &Index{byHash: make(map[string]*models.ProvenanceEntry)}
}

// put 重复哈希以后写入的为准，顺序保持首次出现的位置
func (idx *Index) put(entry *models.ProvenanceEntry) {
	if _, exists := idx.byHash[entry.Hash]; !exists {
		idx.order = append(idx.order, entry.Hash)
	}
	idx.byHash[entry.Hash] = entry
}

// Lookup 按内容哈希查询来源
func (idx *Index) Lookup(hash string) (*models.ProvenanceEntry, bool) {
	if idx == nil {
		return nil, false
	}
	entry, ok := idx.byHash[hashing.NormalizeHash(hash)]
	return entry, ok
}

// Has 哈希是否存在于索引
func (idx *Index) Has(hash string) bool {
	_, ok := idx.Lookup(hash)
	return ok
}

// Entries 按哈希首次出现顺序返回所有来源
func (idx *Index) Entries() []*models.ProvenanceEntry {
	if idx == nil {
		return nil
	}
	entries := make([]*models.ProvenanceEntry, 0, len(idx.order))
	for _, hash := range idx.order {
		entries = append(entries, idx.byHash[hash])
	}
	return entries
}

// Len 索引中的哈希数量
func (idx *Index) Len() int {
	if idx == nil {
		return 0
	}
	return len(idx.order)
}

// Stats 扫描计数
func (idx *Index) Stats() models.ScanStats {
	if idx == nil {
		return models.ScanStats{}
	}
	return idx.stats
}

// Indexer 扫描提案历史，提取代码上传消息
type Indexer struct {
	logger       *logrus.Logger
	errorHandler *errors.ErrorHandler
	storeTypes   map[string]bool
}

// NewIndexer 创建索引器，storeTypes为空时只识别MsgStoreCode
func NewIndexer(logger *logrus.Logger, errorHandler *errors.ErrorHandler, storeTypes []string) *Indexer {
	if len(storeTypes) == 0 {
		storeTypes = []string{MsgStoreCode}
	}
	types := make(map[string]bool, len(storeTypes))
	for _, t := range storeTypes {
		types[t] = true
	}
	if errorHandler == nil {
		errorHandler = errors.NewErrorHandler(logger)
	}
	return &Indexer{
		logger:       logger,
		errorHandler: errorHandler,
		storeTypes:   types,
	}
}

// Extract 提取提案中的代码上传消息，序号从1开始
func (ix *Indexer) Extract(p models.ProposalRecord) []models.ProposalMessage {
	var out []models.ProposalMessage
	status := HumanStatus(p.Status)
	for i, msg := range p.Messages {
		if !ix.storeTypes[msg.Type] {
			continue
		}
		payload, ok := msg.Payload()
		out = append(out, models.ProposalMessage{
			ProposalID:    p.ID,
			Title:         p.Title,
			Status:        status,
			MessageIndex:  i + 1,
			TotalMessages: len(p.Messages),
			WasmPayload:   payload,
			HasPayload:    ok,
		})
	}
	return out
}

// Index 构建哈希索引，单条消息哈希失败只跳过该消息
func (ix *Indexer) Index(proposals []models.ProposalRecord) *Index {
	idx := NewIndex()

	for _, p := range proposals {
		idx.stats.ProposalsSeen++
		uploaded := false

		for _, msg := range ix.Extract(p) {
			hash, err := ix.hashMessage(msg)
			if err != nil {
				idx.stats.SkippedMessages++
				if ae, ok := err.(*errors.AuditError); ok {
					err = ae.WithProposalID(msg.ProposalID).
						WithContext("message_index", msg.MessageIndex)
				}
				_ = ix.errorHandler.HandleError(context.Background(), err)
				continue
			}

			idx.put(&models.ProvenanceEntry{
				Hash:          hash,
				ProposalID:    msg.ProposalID,
				Title:         msg.Title,
				Status:        msg.Status,
				MessageIndex:  msg.MessageIndex,
				TotalMessages: msg.TotalMessages,
			})
			idx.stats.UploadMessagesSeen++
			uploaded = true
		}

		if uploaded {
			idx.stats.ProposalsWithUpload++
		}
	}

	ix.logger.WithFields(logrus.Fields{
		"proposals":        idx.stats.ProposalsSeen,
		"with_upload":      idx.stats.ProposalsWithUpload,
		"upload_messages":  idx.stats.UploadMessagesSeen,
		"skipped_messages": idx.stats.SkippedMessages,
		"unique_hashes":    idx.Len(),
	}).Info("提案索引构建完成")

	return idx
}

// hashMessage 缺少负载字段的消息与无法解码的消息同样跳过，空负载按空内容计算哈希
func (ix *Indexer) hashMessage(msg models.ProposalMessage) (string, error) {
	if !msg.HasPayload {
		return "", errors.NewProposalMessageError("消息缺少wasm_byte_code")
	}
	return hashing.ComputeContentHash(msg.WasmPayload)
}
