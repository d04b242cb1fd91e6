package readme

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"contractaudit/pkg/models"
)

func newRewriter() *Rewriter {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return NewRewriter(logger)
}

var records = []models.ContractRecord{
	{Name: "Treasury", CodeID: "1", Testnet: &models.TestnetInfo{CodeID: "301"}},
	{Name: "Account", CodeID: "2"},
}

const plainReadme = `# Contracts

| Name | Code ID | Hash |
|---|---|---|
| Treasury | ` + "`1`" + ` | AA |
| Account | ` + "`2`" + ` | BB |
| Ghost | ` + "`9`" + ` | CC |

Footer text.
`

func TestUpdate_InsertsColumn(t *testing.T) {
	out, result, err := newRewriter().Update(plainReadme, records)
	require.NoError(t, err)

	assert.True(t, result.Inserted)
	assert.Equal(t, 3, result.Rows)
	assert.Equal(t, []string{"Ghost"}, result.Unknown)

	assert.Contains(t, out, "| Name | Code ID | Code ID (Testnet) | Hash |\n")
	assert.Contains(t, out, "|---|---|---|---|\n")
	assert.Contains(t, out, "| Treasury | `1` | `301` | AA |\n")
	assert.Contains(t, out, "| Account | `2` | - | BB |\n")
	assert.Contains(t, out, "| Ghost | `9` | - | CC |\n\nFooter text.\n")
}

func TestUpdate_RefreshesExistingColumn(t *testing.T) {
	first, _, err := newRewriter().Update(plainReadme, records)
	require.NoError(t, err)

	changed := []models.ContractRecord{
		{Name: "Treasury", Testnet: &models.TestnetInfo{CodeID: "400"}},
		{Name: "Account", Testnet: &models.TestnetInfo{CodeID: "401"}},
	}
	out, result, err := newRewriter().Update(first, changed)
	require.NoError(t, err)

	assert.False(t, result.Inserted)
	assert.Contains(t, out, "| Name | Code ID | Code ID (Testnet) | Hash |\n|---|---|---|---|\n")
	assert.Contains(t, out, "| Treasury | `1` | `400` | AA |\n")
	assert.Contains(t, out, "| Account | `2` | `401` | BB |\n")

	// 再次刷新结果不变
	again, _, err := newRewriter().Update(out, changed)
	require.NoError(t, err)
	assert.Equal(t, out, again)
}

func TestUpdate_TableAtEndOfFile(t *testing.T) {
	content := "| Name | Code ID |\n|---|---|\n| Treasury | `1` |"
	out, result, err := newRewriter().Update(content, records)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Rows)
	assert.Equal(t, "| Name | Code ID | Code ID (Testnet) |\n|---|---|---|\n| Treasury | `1` | `301` |", out)
}

func TestUpdate_NoTable(t *testing.T) {
	_, _, err := newRewriter().Update("# Nothing here\n", records)
	assert.Error(t, err)
}

func TestUpdateFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "README.md")
	require.NoError(t, os.WriteFile(path, []byte(plainReadme), 0644))

	result, err := newRewriter().UpdateFile(path, records)
	require.NoError(t, err)
	assert.True(t, result.Inserted)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Code ID (Testnet)")

	_, err = newRewriter().UpdateFile(filepath.Join(t.TempDir(), "absent.md"), records)
	assert.Error(t, err)
}
