package validation

import (
	"encoding/json"
	stderrors "errors"
	"io"
	"strings"
	"testing"

	"github.com/btcsuite/btcd/btcutil/bech32"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"contractaudit/internal/errors"
	"contractaudit/pkg/models"
)

var validHash = strings.Repeat("AB", 32)

func newTestValidator(strict bool) *Validator {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return NewValidator(logger, strict)
}

func testAddress(t *testing.T) string {
	t.Helper()
	raw := make([]byte, 20)
	for i := range raw {
		raw[i] = byte(i * 7)
	}
	conv, err := bech32.ConvertBits(raw, 8, 5, true)
	require.NoError(t, err)
	addr, err := bech32.Encode("xion", conv)
	require.NoError(t, err)
	return addr
}

func entry(name, codeID string, deprecated bool) map[string]interface{} {
	return map[string]interface{}{
		"name":        name,
		"description": "desc",
		"code_id":     codeID,
		"hash":        validHash,
		"release": map[string]interface{}{
			"url":     "https://github.com/example/releases/v1.0.0",
			"version": "v1.0.0",
		},
		"author": map[string]interface{}{
			"name": "Example",
			"url":  "https://example.com",
		},
		"governance": "Genesis",
		"deprecated": deprecated,
	}
}

func dataset(entries ...map[string]interface{}) []interface{} {
	out := make([]interface{}, 0, len(entries))
	for _, e := range entries {
		out = append(out, e)
	}
	return out
}

func assertShapeError(t *testing.T, err error, message string) {
	t.Helper()
	require.Error(t, err)
	var auditErr *errors.AuditError
	require.True(t, stderrors.As(err, &auditErr))
	assert.Equal(t, errors.CodeDatasetShapeInvalid, auditErr.Code)
	assert.Equal(t, message, auditErr.Message)
}

func TestNewValidator(t *testing.T) {
	v := newTestValidator(true)

	assert.True(t, v.strictMode)
	require.Len(t, v.rules, 3)
	assert.Equal(t, "duplicate_code_id", v.rules[0].Name())
	assert.Equal(t, "active_before_deprecated", v.rules[1].Name())
	assert.Equal(t, "code_id_order", v.rules[2].Name())
}

func TestValidate_ValidDataset(t *testing.T) {
	withTestnet := entry("Treasury", "5", false)
	withTestnet["governance"] = "12"
	withTestnet["testnet"] = map[string]interface{}{
		"code_id":     "33",
		"hash":        validHash,
		"network":     "xion-testnet-2",
		"deployed_by": testAddress(t),
		"deployed_at": "2025-03-04T05:06:07.890Z",
	}

	data := dataset(
		entry("Account", "1", false),
		withTestnet,
		entry("Treasury", "5", true),
		entry("Legacy", "3", true),
	)
	// 弃用分区内3排在5之后
	data[2].(map[string]interface{})["code_id"] = "2"

	assert.NoError(t, newTestValidator(false).Validate(data))
}

func TestValidate_NotArray(t *testing.T) {
	err := newTestValidator(false).Validate(map[string]interface{}{"name": "x"})
	assertShapeError(t, err, "registry must be an array")
}

func TestValidate_DuplicateCodeID(t *testing.T) {
	// 重复检查先于字段校验
	broken := entry("Broken", "7", false)
	delete(broken, "name")

	err := newTestValidator(false).Validate(dataset(broken, entry("A", "7", false)))
	assertShapeError(t, err, "[1].code_id Duplicate code_id 7 found")
	var auditErr *errors.AuditError
	require.True(t, stderrors.As(err, &auditErr))
	require.NotNil(t, auditErr.CodeID)
	assert.Equal(t, "7", *auditErr.CodeID)
	assert.Equal(t, "[1].code_id", auditErr.Context["path"])
}

func TestValidate_MissingCodeIDReportedByFieldCheck(t *testing.T) {
	noID := entry("NoID", "1", false)
	delete(noID, "code_id")
	other := entry("Other", "2", false)
	delete(other, "code_id")

	err := newTestValidator(false).Validate(dataset(noID, other))
	assertShapeError(t, err, "[0] missing required property: code_id")
}

func TestValidate_Partition(t *testing.T) {
	err := newTestValidator(false).Validate(dataset(
		entry("A", "1", false),
		entry("Old", "2", true),
		entry("B", "3", false),
	))
	// 正向扫描时先遇到排在未弃用区内的弃用条目
	assertShapeError(t, err, "[1] Deprecated contracts should come after active contracts")

	err = newTestValidator(false).Validate(dataset(
		entry("Old", "1", true),
		entry("A", "2", false),
	))
	assertShapeError(t, err, "[0] Deprecated contracts should come after active contracts")
}

func TestValidate_CodeIDOrder(t *testing.T) {
	err := newTestValidator(false).Validate(dataset(
		entry("B", "10", false),
		entry("A", "9", false),
	))
	assertShapeError(t, err, "[1] Active contracts not in code_id order: B (10) comes before A (9)")

	err = newTestValidator(false).Validate(dataset(
		entry("A", "1", false),
		entry("Old2", "20", true),
		entry("Old1", "3", true),
	))
	assertShapeError(t, err, "[2] Deprecated contracts not in code_id order: Old2 (20) comes before Old1 (3)")

	// 数值比较而非字符串比较，相等视为有序
	assert.NoError(t, newTestValidator(false).Validate(dataset(
		entry("A", "9", false),
		entry("B", "10", false),
		entry("C", "11", true),
		entry("D", "11", true),
	)))
}

func TestValidate_FieldErrors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(e map[string]interface{})
		message string
	}{
		{
			name:    "unknown property",
			mutate:  func(e map[string]interface{}) { e["extra"] = 1 },
			message: "[0] has unknown property: extra",
		},
		{
			name:    "empty name",
			mutate:  func(e map[string]interface{}) { e["name"] = "" },
			message: "[0].name must be at least 1 characters",
		},
		{
			name:    "non-numeric code id",
			mutate:  func(e map[string]interface{}) { e["code_id"] = "1a" },
			message: "[0].code_id must match pattern: ^[0-9]+$",
		},
		{
			name:    "numeric code id",
			mutate:  func(e map[string]interface{}) { e["code_id"] = float64(1) },
			message: "[0].code_id must be a string",
		},
		{
			name:    "lowercase hash",
			mutate:  func(e map[string]interface{}) { e["hash"] = strings.ToLower(validHash) },
			message: "[0].hash Hash must be 64 characters long and contain only uppercase hex characters",
		},
		{
			name: "http release url",
			mutate: func(e map[string]interface{}) {
				e["release"].(map[string]interface{})["url"] = "http://insecure"
			},
			message: "[0].release.url must match pattern: ^https://",
		},
		{
			name: "missing author url",
			mutate: func(e map[string]interface{}) {
				delete(e["author"].(map[string]interface{}), "url")
			},
			message: "[0].author missing required property: url",
		},
		{
			name:    "bad governance",
			mutate:  func(e map[string]interface{}) { e["governance"] = "genesis" },
			message: "[0].governance must match pattern: ^(Genesis|[0-9]+)$",
		},
		{
			name:    "deprecated not boolean",
			mutate:  func(e map[string]interface{}) { e["deprecated"] = "false" },
			message: "[0].deprecated must be a boolean",
		},
		{
			name:    "release not object",
			mutate:  func(e map[string]interface{}) { e["release"] = "v1" },
			message: "[0].release must be an object",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := entry("A", "1", false)
			tt.mutate(e)
			err := newTestValidator(false).Validate(dataset(e))
			assertShapeError(t, err, tt.message)
		})
	}
}

func TestValidate_Testnet(t *testing.T) {
	good := func() map[string]interface{} {
		return map[string]interface{}{
			"code_id":     "33",
			"hash":        validHash,
			"network":     "xion-testnet-2",
			"deployed_by": testAddress(t),
			"deployed_at": "2025-03-04T05:06:07.890Z",
		}
	}

	tests := []struct {
		name    string
		mutate  func(tn map[string]interface{})
		message string
	}{
		{
			name:    "timestamp without millis",
			mutate:  func(tn map[string]interface{}) { tn["deployed_at"] = "2025-03-04T05:06:07Z" },
			message: `[0].testnet.deployed_at must match pattern: ^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}\.\d{3}Z$`,
		},
		{
			name:    "empty network",
			mutate:  func(tn map[string]interface{}) { tn["network"] = "" },
			message: "[0].testnet.network must be at least 1 characters",
		},
		{
			name:    "missing hash",
			mutate:  func(tn map[string]interface{}) { delete(tn, "hash") },
			message: "[0].testnet missing required property: hash",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := entry("A", "1", false)
			tn := good()
			tt.mutate(tn)
			e["testnet"] = tn
			err := newTestValidator(false).Validate(dataset(e))
			assertShapeError(t, err, tt.message)
		})
	}
}

func TestValidate_TestnetBech32Checksum(t *testing.T) {
	addr := testAddress(t)
	// 修改最后一个校验字符
	last := addr[len(addr)-1]
	replacement := byte('q')
	if last == 'q' {
		replacement = 'p'
	}
	corrupted := addr[:len(addr)-1] + string(replacement)

	e := entry("A", "1", false)
	e["testnet"] = map[string]interface{}{
		"code_id":     "33",
		"hash":        validHash,
		"network":     "xion-testnet-2",
		"deployed_by": corrupted,
		"deployed_at": "2025-03-04T05:06:07.890Z",
	}

	err := newTestValidator(false).Validate(dataset(e))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "[0].testnet.deployed_by must be a valid bech32 address")
}

func TestValidate_FromJSON(t *testing.T) {
	raw := `[{"name":"A","description":"","code_id":"1","hash":"` + validHash + `",
		"release":{"url":"https://x","version":"1.0.0"},
		"author":{"name":"B","url":"https://y"},
		"governance":"4","deprecated":false}]`

	var data interface{}
	require.NoError(t, json.Unmarshal([]byte(raw), &data))
	assert.NoError(t, newTestValidator(false).Validate(data))
}

func TestValidateDataset_Warnings(t *testing.T) {
	records := []models.ContractRecord{
		{Name: "A", CodeID: "1", Release: models.Release{Version: "v1.2.3"}, Governance: "Genesis"},
		{Name: "B", CodeID: "2", Release: models.Release{Version: "latest"}, Governance: "Genesis", Deprecated: true},
	}
	data := dataset(entry("A", "1", false))

	result := newTestValidator(false).ValidateDataset(data, records)
	assert.True(t, result.Valid)
	assert.Equal(t, 1, result.Entries)
	assert.Len(t, result.Warnings, 3)

	strict := newTestValidator(true).ValidateDataset(data, records)
	assert.False(t, strict.Valid)
	require.Len(t, strict.Errors, 1)

	invalid := newTestValidator(false).ValidateDataset("nope", nil)
	assert.False(t, invalid.Valid)
	require.Len(t, invalid.Errors, 1)
	assert.Equal(t, errors.CodeDatasetShapeInvalid, invalid.Errors[0].Code)
}

func TestLint(t *testing.T) {
	records := []models.ContractRecord{
		{Name: "Ok", CodeID: "1", Release: models.Release{Version: "0.4.0"}, Testnet: &models.TestnetInfo{CodeID: "9"}},
		{Name: "NoTestnet", CodeID: "2", Release: models.Release{Version: "1.0"}},
		{Name: "BadVersion", CodeID: "3", Release: models.Release{Version: "main"}, Deprecated: true},
	}

	warnings := Lint(records)
	require.Len(t, warnings, 2)
	assert.Contains(t, warnings[0], "NoTestnet")
	assert.Contains(t, warnings[0], "no testnet deployment")
	assert.Contains(t, warnings[1], `release.version "main" is not a semantic version`)
}

func TestKind_String(t *testing.T) {
	assert.Equal(t, "string", KindString.String())
	assert.Equal(t, "object", KindObject.String())
	assert.Equal(t, "Kind(9)", Kind(9).String())
}
