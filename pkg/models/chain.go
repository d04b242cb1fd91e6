package models

import "strings"

// ChainCodeEntry 链上代码存储中的一条记录
type ChainCodeEntry struct {
	CodeID   string `json:"code_id"`
	DataHash string `json:"data_hash"`
	Creator  string `json:"creator,omitempty"`
}

// NormalizedHash 返回大写的数据哈希，链上返回的哈希大小写不固定
func (e ChainCodeEntry) NormalizedHash() string {
	return strings.ToUpper(e.DataHash)
}

// CodeInfosResponse 代码列表接口响应
type CodeInfosResponse struct {
	CodeInfos  []ChainCodeEntry `json:"code_infos"`
	Pagination *PageResponse    `json:"pagination,omitempty"`
}

// CodeResponse 单个代码下载接口响应
type CodeResponse struct {
	CodeInfo ChainCodeEntry `json:"code_info"`
	Data     string         `json:"data"` // base64编码的wasm字节码
}

// PageResponse 分页信息
type PageResponse struct {
	NextKey string `json:"next_key"`
	Total   string `json:"total"`
}
