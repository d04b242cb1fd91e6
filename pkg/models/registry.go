package models

// GovernanceGenesis 创世合约的治理标记
const GovernanceGenesis = "Genesis"

// ContractRecord 注册表中的合约部署元数据
type ContractRecord struct {
	Name        string       `json:"name"`
	Description string       `json:"description"`
	CodeID      string       `json:"code_id"`
	Hash        string       `json:"hash"`
	Release     Release      `json:"release"`
	Author      Author       `json:"author"`
	Governance  string       `json:"governance"` // "Genesis" 或提案编号
	Deprecated  bool         `json:"deprecated"`
	Testnet     *TestnetInfo `json:"testnet,omitempty"`
}

// Release 发布信息
type Release struct {
	URL     string `json:"url"`
	Version string `json:"version"`
}

// Author 作者信息
type Author struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// TestnetInfo 测试网部署信息
type TestnetInfo struct {
	CodeID     string `json:"code_id"`
	TxHash     string `json:"hash"`
	Network    string `json:"network"`
	DeployedBy string `json:"deployed_by"`
	DeployedAt string `json:"deployed_at"` // 毫秒精度的ISO-8601时间
}

// IsGenesis 是否声明为创世合约
func (c *ContractRecord) IsGenesis() bool {
	return c.Governance == GovernanceGenesis
}
