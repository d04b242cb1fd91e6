package output

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/klauspost/compress/gzip"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"contractaudit/internal/config"
	"contractaudit/internal/errors"
	"contractaudit/pkg/models"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func sampleReport() *models.DiscrepancyReport {
	prov := &models.ProvenanceEntry{
		Hash:          "AB",
		ProposalID:    "12",
		Title:         "Store dex",
		Status:        "Passed",
		MessageIndex:  1,
		TotalMessages: 2,
	}
	return &models.DiscrepancyReport{
		RunID:       "0f8fad5b-d9cb-469f-a165-70867728950e",
		GeneratedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		MissingFromRegistry: []models.MissingFromRegistry{
			{CodeID: "9", ChainHash: "AB", Provenance: prov},
		},
		MissingFromChain: []models.MissingFromChain{},
		HashMismatches: []models.HashMismatch{
			{CodeID: "3", Name: "Treasury", RegistryHash: "CC", ChainHash: "DD"},
		},
		OrphanedProposalUploads: []models.OrphanedProposalUpload{},
		GenesisWithProposal:     []models.GenesisWithProposal{},
		Summary:                 models.ReportSummary{RegistryContracts: 4, ChainCodes: 5},
	}
}

func TestFileOutput_JSON(t *testing.T) {
	dir := t.TempDir()
	out, err := NewFileOutput(dir, config.SinkJSON, false, quietLogger())
	require.NoError(t, err)

	require.NoError(t, out.WriteReport(sampleReport()))
	assert.Equal(t, filepath.Join(dir, "report_20260301_120000_0f8fad5b.json"), out.LastPath())

	data, err := os.ReadFile(out.LastPath())
	require.NoError(t, err)

	var decoded models.DiscrepancyReport
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, 2, decoded.Total())
	assert.Equal(t, "12", decoded.MissingFromRegistry[0].Provenance.ProposalID)
}

func TestFileOutput_YAMLCompressed(t *testing.T) {
	out, err := NewFileOutput(t.TempDir(), config.SinkYAML, true, quietLogger())
	require.NoError(t, err)
	require.NoError(t, out.WriteReport(sampleReport()))
	assert.Regexp(t, `\.yaml\.gz$`, out.LastPath())

	file, err := os.Open(out.LastPath())
	require.NoError(t, err)
	defer file.Close()

	zr, err := gzip.NewReader(file)
	require.NoError(t, err)
	data, err := io.ReadAll(zr)
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, yaml.Unmarshal(data, &decoded))
	assert.Equal(t, "0f8fad5b-d9cb-469f-a165-70867728950e", decoded["run_id"])
	assert.Len(t, decoded["hash_mismatches"], 1)
}

func TestFileOutput_UnsupportedFormat(t *testing.T) {
	_, err := NewFileOutput(t.TempDir(), "csv", false, quietLogger())
	assert.Error(t, err)
}

func TestKafkaOutput_WriteReport(t *testing.T) {
	producer := mocks.NewSyncProducer(t, sarama.NewConfig())

	producer.ExpectSendMessageWithCheckerFunctionAndSucceed(func(value []byte) error {
		var msg map[string]interface{}
		if err := json.Unmarshal(value, &msg); err != nil {
			return err
		}
		assert.Equal(t, "reconciliation_summary", msg["type"])
		assert.Equal(t, float64(2), msg["total"])
		return nil
	})
	producer.ExpectSendMessageWithCheckerFunctionAndSucceed(func(value []byte) error {
		var msg map[string]interface{}
		if err := json.Unmarshal(value, &msg); err != nil {
			return err
		}
		assert.Equal(t, models.CategoryMissingFromRegistry, msg["category"])
		assert.Equal(t, "12", msg["proposal_id"])
		return nil
	})
	producer.ExpectSendMessageAndSucceed()

	out := NewKafkaOutputWithProducer(producer, map[string]string{
		TopicReports:       "audit_reports",
		TopicDiscrepancies: "audit_items",
	}, quietLogger())

	require.NoError(t, out.WriteReport(sampleReport()))
	require.NoError(t, out.Close())
}

func TestKafkaOutput_SummaryOnly(t *testing.T) {
	producer := mocks.NewSyncProducer(t, sarama.NewConfig())
	producer.ExpectSendMessageAndSucceed()

	out := NewKafkaOutputWithProducer(producer, nil, quietLogger())
	require.NoError(t, out.WriteReport(sampleReport()))
	require.NoError(t, out.Close())
}

func TestKafkaOutput_SendFailure(t *testing.T) {
	producer := mocks.NewSyncProducer(t, sarama.NewConfig())
	producer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	out := NewKafkaOutputWithProducer(producer, nil, quietLogger())
	err := out.WriteReport(sampleReport())
	require.Error(t, err)
	assert.ErrorIs(t, err, sarama.ErrOutOfBrokers)
	assert.ErrorIs(t, err, errors.ErrKafkaProduceFailed)
	require.NoError(t, out.Close())
}

func TestPostgresOutput_WriteReport(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	out, err := NewPostgresOutputWithDB(db, "contract_audit_reports", quietLogger())
	require.NoError(t, err)

	report := sampleReport()
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO "contract_audit_reports"`)).
		WithArgs(report.RunID, report.GeneratedAt, 2, false, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectClose()

	require.NoError(t, out.WriteReport(report))
	require.NoError(t, out.Close())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresOutput_EnsureSchema(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	out, err := NewPostgresOutputWithDB(db, "audit", quietLogger())
	require.NoError(t, err)

	mock.ExpectExec(regexp.QuoteMeta(`CREATE TABLE IF NOT EXISTS "audit"`)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, out.EnsureSchema(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresOutput_InvalidTable(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	_, err = NewPostgresOutputWithDB(db, "reports; DROP TABLE x", quietLogger())
	assert.Error(t, err)
}

func TestMultiOutput_ContinuesAfterFailure(t *testing.T) {
	producer := mocks.NewSyncProducer(t, sarama.NewConfig())
	producer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	file, err := NewFileOutput(t.TempDir(), config.SinkJSON, false, quietLogger())
	require.NoError(t, err)

	multi := NewMultiOutput([]Output{
		NewKafkaOutputWithProducer(producer, nil, quietLogger()),
		file,
	}, quietLogger())

	assert.Equal(t, "kafka,json", multi.Name())
	assert.Error(t, multi.WriteReport(sampleReport()))
	assert.FileExists(t, file.LastPath())
	require.NoError(t, multi.Close())
}

func TestNewOutputs(t *testing.T) {
	cfg := config.GetDefaultConfig().Output
	cfg.Directory = t.TempDir()
	cfg.Sinks = []string{config.SinkJSON, config.SinkYAML}

	outputs, err := NewOutputs(cfg, quietLogger())
	require.NoError(t, err)
	require.Len(t, outputs, 2)
	assert.Equal(t, "json", outputs[0].Name())
	assert.Equal(t, "yaml", outputs[1].Name())

	cfg.Sinks = []string{"s3"}
	_, err = NewOutputs(cfg, quietLogger())
	assert.Error(t, err)
}
