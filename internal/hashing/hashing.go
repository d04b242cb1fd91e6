package hashing

import (
	"bytes"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"io"
	"strings"

	"github.com/klauspost/compress/gzip"

	"contractaudit/internal/errors"
)

// Branch 哈希前对字节做的处理分支
type Branch int

const (
	// BranchRaw 原始字节直接参与哈希
	BranchRaw Branch = iota
	// BranchGzip 字节是完整的gzip流，哈希解压后的内容
	BranchGzip
)

// String 返回分支名称
func (b Branch) String() string {
	switch b {
	case BranchGzip:
		return "gzip"
	default:
		return "raw"
	}
}

// ResolvePayload 判断字节是否为gzip流，返回实际参与哈希的内容和所走的分支。
// 多个gzip成员依次解压拼接，最后一个成员之后不是gzip头的尾部字节被忽略。
func ResolvePayload(raw []byte) ([]byte, Branch) {
	src := bytes.NewReader(raw)
	reader, err := gzip.NewReader(src)
	if err != nil {
		return raw, BranchRaw
	}
	defer reader.Close()

	var content bytes.Buffer
	for {
		reader.Multistream(false)
		if _, err := io.Copy(&content, reader); err != nil {
			return raw, BranchRaw
		}
		if err := reader.Reset(src); err != nil {
			// io.EOF表示没有更多成员，其他错误说明剩余字节不是gzip头
			break
		}
	}
	return content.Bytes(), BranchGzip
}

// HashBytes SHA-256大写十六进制
func HashBytes(b []byte) string {
	sum := sha256.Sum256(b)
	return strings.ToUpper(hex.EncodeToString(sum[:]))
}

// ComputeContentHash 计算base64负载的内容哈希，gzip包装对结果透明
func ComputeContentHash(payload string) (string, error) {
	hash, _, err := ComputeContentHashBranch(payload)
	return hash, err
}

// ComputeContentHashBranch 同ComputeContentHash，额外返回所走的分支
func ComputeContentHashBranch(payload string) (string, Branch, error) {
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", BranchRaw, errors.NewHashComputeError(err)
	}

	content, branch := ResolvePayload(raw)
	return HashBytes(content), branch, nil
}

// NormalizeHash 统一哈希大小写以便比较
func NormalizeHash(hash string) string {
	return strings.ToUpper(strings.TrimSpace(hash))
}
