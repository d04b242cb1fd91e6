package proposal

import (
	"bytes"
	"encoding/base64"
	"io"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"contractaudit/internal/errors"
	"contractaudit/internal/hashing"
	"contractaudit/pkg/models"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func b64(b []byte) string {
	return base64.StdEncoding.EncodeToString(b)
}

func gzipped(t *testing.T, b []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	_, err := w.Write(b)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func storeMsg(payload string) models.ProposalRawMsg {
	return models.ProposalRawMsg{Type: MsgStoreCode, WasmByteCode: &payload}
}

func TestHumanStatus(t *testing.T) {
	tests := []struct {
		in       string
		expected string
	}{
		{"PROPOSAL_STATUS_UNSPECIFIED", "Unspecified"},
		{"PROPOSAL_STATUS_DEPOSIT_PERIOD", "Deposit Period"},
		{"PROPOSAL_STATUS_VOTING_PERIOD", "Voting Period"},
		{"PROPOSAL_STATUS_PASSED", "Passed"},
		{"PROPOSAL_STATUS_REJECTED", "Rejected"},
		{"PROPOSAL_STATUS_FAILED", "Failed"},
		{"PROPOSAL_STATUS_SOMETHING_NEW", "PROPOSAL_STATUS_SOMETHING_NEW"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, HumanStatus(tt.in))
	}
}

func TestIndexer_Index(t *testing.T) {
	wasmA := []byte("\x00asm contract A")
	wasmB := []byte("\x00asm contract B")

	proposals := []models.ProposalRecord{
		{
			ID:     "1",
			Title:  "Upload A",
			Status: "PROPOSAL_STATUS_PASSED",
			Messages: []models.ProposalRawMsg{
				{Type: "/cosmos.bank.v1beta1.MsgSend"},
				storeMsg(b64(gzipped(t, wasmA))),
			},
		},
		{
			ID:       "2",
			Title:    "Text only",
			Status:   "PROPOSAL_STATUS_REJECTED",
			Messages: []models.ProposalRawMsg{{Type: "/cosmos.gov.v1.MsgExecLegacyContent"}},
		},
		{
			ID:       "3",
			Title:    "Upload B",
			Status:   "PROPOSAL_STATUS_VOTING_PERIOD",
			Messages: []models.ProposalRawMsg{storeMsg(b64(wasmB))},
		},
	}

	idx := NewIndexer(quietLogger(), nil, nil).Index(proposals)

	stats := idx.Stats()
	assert.Equal(t, 3, stats.ProposalsSeen)
	assert.Equal(t, 2, stats.ProposalsWithUpload)
	assert.Equal(t, 2, stats.UploadMessagesSeen)
	assert.Equal(t, 0, stats.SkippedMessages)

	entry, ok := idx.Lookup(hashing.HashBytes(wasmA))
	require.True(t, ok)
	assert.Equal(t, "1", entry.ProposalID)
	assert.Equal(t, "Upload A", entry.Title)
	assert.Equal(t, "Passed", entry.Status)
	assert.Equal(t, 2, entry.MessageIndex)
	assert.Equal(t, 2, entry.TotalMessages)

	// 查询大小写不敏感
	entry, ok = idx.Lookup(hashing.HashBytes(wasmB))
	require.True(t, ok)
	assert.Equal(t, "Voting Period", entry.Status)
	assert.True(t, idx.Has(string(bytes.ToLower([]byte(hashing.HashBytes(wasmB))))))
}

func TestIndexer_MalformedPayloadSkipped(t *testing.T) {
	before := []byte("before")
	after := []byte("after")

	proposals := []models.ProposalRecord{
		{ID: "10", Title: "first", Messages: []models.ProposalRawMsg{storeMsg(b64(before))}},
		{ID: "11", Title: "broken", Messages: []models.ProposalRawMsg{
			storeMsg("%%%not-base64%%%"),
			{Type: MsgStoreCode},
		}},
		{ID: "12", Title: "last", Messages: []models.ProposalRawMsg{storeMsg(b64(after))}},
	}

	handler := errors.NewErrorHandler(quietLogger())
	idx := NewIndexer(quietLogger(), handler, nil).Index(proposals)

	stats := idx.Stats()
	assert.Equal(t, 3, stats.ProposalsSeen)
	assert.Equal(t, 2, stats.ProposalsWithUpload)
	assert.Equal(t, 2, stats.UploadMessagesSeen)
	assert.Equal(t, 2, stats.SkippedMessages)

	assert.True(t, idx.Has(hashing.HashBytes(before)))
	assert.True(t, idx.Has(hashing.HashBytes(after)))
	assert.Equal(t, 2, idx.Len())

	errStats := handler.GetStats()
	assert.Equal(t, 1, errStats.Count(errors.ErrorTypeHashCompute))
	assert.Equal(t, 1, errStats.Count(errors.ErrorTypeProposal))
	require.NotNil(t, errStats.LastError.ProposalID)
	assert.Equal(t, "11", *errStats.LastError.ProposalID)
	assert.Equal(t, errors.CodeProposalMsgInvalid, errStats.LastError.Code)
}

func TestIndexer_EmptyPayloadIsHashed(t *testing.T) {
	proposals := []models.ProposalRecord{
		{ID: "20", Title: "empty upload", Messages: []models.ProposalRawMsg{storeMsg("")}},
	}

	idx := NewIndexer(quietLogger(), nil, nil).Index(proposals)

	stats := idx.Stats()
	assert.Equal(t, 0, stats.SkippedMessages)
	assert.Equal(t, 1, stats.UploadMessagesSeen)
	assert.Equal(t, 1, stats.ProposalsWithUpload)

	// 空负载按空内容的SHA-256登记
	entry, ok := idx.Lookup(hashing.HashBytes(nil))
	require.True(t, ok)
	assert.Equal(t, "20", entry.ProposalID)
}

func TestIndexer_ExtractMarksMissingPayload(t *testing.T) {
	ix := NewIndexer(quietLogger(), nil, nil)
	msgs := ix.Extract(models.ProposalRecord{ID: "21", Messages: []models.ProposalRawMsg{
		{Type: MsgStoreCode},
		storeMsg(""),
	}})

	require.Len(t, msgs, 2)
	assert.False(t, msgs[0].HasPayload)
	assert.True(t, msgs[1].HasPayload)
	assert.Equal(t, "", msgs[1].WasmPayload)
}

func TestIndexer_LastWriteWins(t *testing.T) {
	wasm := []byte("same payload")
	other := []byte("other payload")

	proposals := []models.ProposalRecord{
		{ID: "1", Title: "first upload", Messages: []models.ProposalRawMsg{storeMsg(b64(wasm))}},
		{ID: "2", Title: "other", Messages: []models.ProposalRawMsg{storeMsg(b64(other))}},
		{ID: "3", Title: "re-upload", Messages: []models.ProposalRawMsg{storeMsg(b64(gzipped(t, wasm)))}},
	}

	idx := NewIndexer(quietLogger(), nil, nil).Index(proposals)

	entry, ok := idx.Lookup(hashing.HashBytes(wasm))
	require.True(t, ok)
	assert.Equal(t, "3", entry.ProposalID)
	assert.Equal(t, 3, idx.Stats().UploadMessagesSeen)

	// 顺序保持哈希首次出现的位置
	entries := idx.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "3", entries[0].ProposalID)
	assert.Equal(t, "2", entries[1].ProposalID)
}

func TestIndexer_CustomStoreTypes(t *testing.T) {
	legacy := "/cosmwasm.wasm.v1.StoreCodeProposal"
	legacyPayload := b64([]byte("legacy"))
	proposals := []models.ProposalRecord{
		{ID: "7", Messages: []models.ProposalRawMsg{
			{Type: legacy, WasmByteCode: &legacyPayload},
			storeMsg(b64([]byte("modern"))),
		}},
	}

	idx := NewIndexer(quietLogger(), nil, []string{legacy}).Index(proposals)
	assert.True(t, idx.Has(hashing.HashBytes([]byte("legacy"))))
	assert.False(t, idx.Has(hashing.HashBytes([]byte("modern"))))
}

func TestIndex_NilSafe(t *testing.T) {
	var idx *Index
	_, ok := idx.Lookup("AA")
	assert.False(t, ok)
	assert.Nil(t, idx.Entries())
	assert.Equal(t, 0, idx.Len())
	assert.Equal(t, models.ScanStats{}, idx.Stats())
}
