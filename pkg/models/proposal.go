package models

// ProposalRecord 治理提案
type ProposalRecord struct {
	ID       string           `json:"id"`
	Title    string           `json:"title"`
	Status   string           `json:"status"`
	Messages []ProposalRawMsg `json:"messages"`
}

// ProposalRawMsg 提案中的原始消息，只解析需要的字段
type ProposalRawMsg struct {
	Type string `json:"@type"`
	// nil表示消息没有该字段，空字符串是合法的空负载
	WasmByteCode *string `json:"wasm_byte_code,omitempty"`
}

// Payload 返回wasm_byte_code以及字段是否存在
func (m ProposalRawMsg) Payload() (string, bool) {
	if m.WasmByteCode == nil {
		return "", false
	}
	return *m.WasmByteCode, true
}

// ProposalsResponse 提案列表接口响应
type ProposalsResponse struct {
	Proposals  []ProposalRecord `json:"proposals"`
	Pagination *PageResponse    `json:"pagination,omitempty"`
}

// ProposalMessage 从提案中提取的代码上传消息
type ProposalMessage struct {
	ProposalID    string
	Title         string
	Status        string
	MessageIndex  int // 从1开始
	TotalMessages int
	WasmPayload   string
	HasPayload    bool
}

// ProvenanceEntry 内容哈希的来源提案
type ProvenanceEntry struct {
	Hash          string `json:"hash" yaml:"hash"`
	ProposalID    string `json:"proposal_id" yaml:"proposal_id"`
	Title         string `json:"title" yaml:"title"`
	Status        string `json:"status" yaml:"status"`
	MessageIndex  int    `json:"message_index" yaml:"message_index"`
	TotalMessages int    `json:"total_messages" yaml:"total_messages"`
}

// ScanStats 提案扫描计数
type ScanStats struct {
	ProposalsSeen       int `json:"proposals_seen" yaml:"proposals_seen"`
	ProposalsWithUpload int `json:"proposals_with_upload" yaml:"proposals_with_upload"`
	UploadMessagesSeen  int `json:"upload_messages_seen" yaml:"upload_messages_seen"`
	SkippedMessages     int `json:"skipped_messages" yaml:"skipped_messages"`
}
