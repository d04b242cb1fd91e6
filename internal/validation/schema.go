package validation

import (
	"fmt"
	"regexp"

	"github.com/btcsuite/btcd/btcutil/bech32"
)

// Kind 结构节点类型
type Kind int

const (
	KindString Kind = iota
	KindObject
	KindArray
	KindBoolean
)

// String 返回节点类型名称
func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindObject:
		return "object"
	case KindArray:
		return "array"
	case KindBoolean:
		return "boolean"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Node 结构描述节点，按Kind使用对应字段
type Node struct {
	Kind Kind

	// 字符串
	MinLength int
	Pattern   *regexp.Regexp
	Message   string // 不匹配Pattern时替代默认提示
	Check     func(string) error

	// 对象
	Required   []string
	Properties map[string]*Node

	// 数组
	Items *Node
}

var (
	codeIDPattern     = regexp.MustCompile(`^[0-9]+$`)
	hashPattern       = regexp.MustCompile(`^[A-F0-9]{64}$`)
	httpsPattern      = regexp.MustCompile(`^https://`)
	governancePattern = regexp.MustCompile(`^(Genesis|[0-9]+)$`)
	timestampPattern  = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}\.\d{3}Z$`)
	addressPattern    = regexp.MustCompile(`^[a-z][a-z0-9]*1[02-9ac-hj-np-z]{38,58}$`)
)

const hashMessage = "Hash must be 64 characters long and contain only uppercase hex characters"

func stringNode(minLength int) *Node {
	return &Node{Kind: KindString, MinLength: minLength}
}

func patternNode(pattern *regexp.Regexp) *Node {
	return &Node{Kind: KindString, Pattern: pattern}
}

// checkBech32 地址校验和必须有效
func checkBech32(addr string) error {
	if _, _, err := bech32.Decode(addr); err != nil {
		return fmt.Errorf("must be a valid bech32 address: %v", err)
	}
	return nil
}

// RegistrySchema 注册表的结构描述
func RegistrySchema() *Node {
	return &Node{
		Kind: KindArray,
		Items: &Node{
			Kind:     KindObject,
			Required: []string{"name", "description", "code_id", "hash", "release", "author", "governance", "deprecated"},
			Properties: map[string]*Node{
				"name":        stringNode(1),
				"description": stringNode(0),
				"code_id":     patternNode(codeIDPattern),
				"hash":        {Kind: KindString, Pattern: hashPattern, Message: hashMessage},
				"release": {
					Kind:     KindObject,
					Required: []string{"url", "version"},
					Properties: map[string]*Node{
						"url":     patternNode(httpsPattern),
						"version": stringNode(1),
					},
				},
				"author": {
					Kind:     KindObject,
					Required: []string{"name", "url"},
					Properties: map[string]*Node{
						"name": stringNode(1),
						"url":  patternNode(httpsPattern),
					},
				},
				"governance": patternNode(governancePattern),
				"deprecated": {Kind: KindBoolean},
				"testnet": {
					Kind:     KindObject,
					Required: []string{"code_id", "hash", "network", "deployed_by", "deployed_at"},
					Properties: map[string]*Node{
						"code_id":     patternNode(codeIDPattern),
						"hash":        {Kind: KindString, Pattern: hashPattern, Message: hashMessage},
						"network":     stringNode(1),
						"deployed_by": {Kind: KindString, Pattern: addressPattern, Check: checkBech32},
						"deployed_at": patternNode(timestampPattern),
					},
				},
			},
		},
	}
}
