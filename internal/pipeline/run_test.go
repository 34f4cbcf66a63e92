package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/gdelt-extract/internal/db"
	"github.com/jonathan/gdelt-extract/internal/events"
	"github.com/jonathan/gdelt-extract/internal/fetch"
	"github.com/jonathan/gdelt-extract/internal/masterlist"
	"github.com/jonathan/gdelt-extract/internal/metrics"
	"github.com/jonathan/gdelt-extract/internal/output"
)

func testOptions(t *testing.T, server *gdeltServer) Options {
	t.Helper()
	dir := t.TempDir()
	return Options{
		IndexURL:    server.indexURL(),
		IndexPath:   filepath.Join(dir, "download", masterlist.FileName),
		Window:      window2016(t),
		CountryCode: "KOR",
		OutputPath:  filepath.Join(dir, "result", "2016_kor.csv"),
		Client:      fetch.NewClient(nil),
	}
}

func TestRun_SkipsFailedArchive(t *testing.T) {
	server := newGDELTServer(t,
		archive{stamp: "20160101000000", body: zipRows(t, "20160101000000.export.CSV",
			row("1", "KOR"), row("2", "USA"), row("3", "KOR"))},
		archive{stamp: "20160315001500", body: nil},
		archive{stamp: "20160701120000", body: zipRows(t, "20160701120000.export.CSV",
			row("4", "JPN"), row("5", "KOR"))},
	)
	opts := testOptions(t, server)

	var progress []ProgressEvent
	opts.OnProgress = func(e ProgressEvent) { progress = append(progress, e) }

	result, err := Run(context.Background(), opts)
	require.NoError(t, err)

	assert.Equal(t, 3, result.Selected)
	assert.Equal(t, 2, result.Processed)
	assert.Equal(t, 3, result.Rows)
	assert.Equal(t, 5, result.Scanned)
	assert.Equal(t, opts.OutputPath, result.Output)
	require.Len(t, result.Skipped, 1)
	assert.Equal(t, 2, result.Skipped[0].Position)
	assert.Equal(t, server.archiveURL("20160315001500"), result.Skipped[0].URL)
	assert.Equal(t, metrics.ReasonTransfer, result.Skipped[0].Reason)
	assert.True(t, fetch.IsTransferError(result.Skipped[0].Err))

	table, err := output.ReadFile(opts.OutputPath)
	require.NoError(t, err)
	var got []string
	for _, rec := range table.Records {
		got = append(got, rec.ID)
	}
	assert.Equal(t, []string{"1", "3", "5"}, got)

	require.Len(t, progress, 3)
	assert.Equal(t, 2, progress[0].Rows)
	assert.Error(t, progress[1].Err)
	assert.Equal(t, 3, progress[2].Total)

	_, err = os.Stat(opts.OutputPath + output.PartialSuffix)
	assert.True(t, os.IsNotExist(err))
}

func TestRun_OnlyWindowArchivesFetched(t *testing.T) {
	server := newGDELTServer(t,
		archive{stamp: "20151231234500", body: zipRows(t, "a.export.CSV", row("1", "KOR"))},
		archive{stamp: "20160601000000", body: zipRows(t, "b.export.CSV", row("2", "KOR"))},
		archive{stamp: "20170101000000", body: zipRows(t, "c.export.CSV", row("3", "KOR"))},
	)
	opts := testOptions(t, server)

	result, err := Run(context.Background(), opts)
	require.NoError(t, err)

	assert.Equal(t, 1, result.Selected)
	assert.Equal(t, 1, result.Rows)
	assert.Equal(t, 0, server.count("20151231234500.export.CSV.zip"))
	assert.Equal(t, 1, server.count("20160601000000.export.CSV.zip"))
	assert.Equal(t, 0, server.count("20170101000000.export.CSV.zip"))
}

func TestRun_EmptyWindow(t *testing.T) {
	server := newGDELTServer(t,
		archive{stamp: "20150101000000", body: zipRows(t, "a.export.CSV", row("1", "KOR"))},
	)
	opts := testOptions(t, server)

	result, err := Run(context.Background(), opts)
	require.ErrorIs(t, err, ErrEmptyResult)
	assert.Equal(t, 0, result.Selected)
	assert.Empty(t, result.Output)

	_, statErr := os.Stat(opts.OutputPath)
	assert.True(t, os.IsNotExist(statErr))
	_, statErr = os.Stat(opts.OutputPath + output.PartialSuffix)
	assert.True(t, os.IsNotExist(statErr))

	// the index is still saved
	_, statErr = os.Stat(opts.IndexPath)
	assert.NoError(t, statErr)
}

func TestRun_NoMatches(t *testing.T) {
	server := newGDELTServer(t,
		archive{stamp: "20160101000000", body: zipRows(t, "a.export.CSV", row("1", "USA"), row("2", "CHN"))},
	)
	opts := testOptions(t, server)

	result, err := Run(context.Background(), opts)
	require.ErrorIs(t, err, ErrEmptyResult)
	assert.Equal(t, 1, result.Processed)
	assert.Equal(t, 0, result.Rows)

	_, statErr := os.Stat(opts.OutputPath)
	assert.True(t, os.IsNotExist(statErr))
}

func TestRun_CorruptArchiveSkipped(t *testing.T) {
	server := newGDELTServer(t,
		archive{stamp: "20160101000000", body: []byte("this is not a zip archive")},
		archive{stamp: "20160102000000", body: zipRows(t, "b.export.CSV", row("2", "KOR"))},
	)
	opts := testOptions(t, server)

	result, err := Run(context.Background(), opts)
	require.NoError(t, err)

	require.Len(t, result.Skipped, 1)
	assert.Equal(t, metrics.ReasonCorruptArchive, result.Skipped[0].Reason)
	var corruptErr *events.CorruptArchiveError
	assert.ErrorAs(t, result.Skipped[0].Err, &corruptErr)
	assert.Equal(t, 1, result.Rows)
}

func TestRun_MalformedTableSkipped(t *testing.T) {
	server := newGDELTServer(t,
		archive{stamp: "20160101000000", body: zipRows(t, "a.export.CSV", "1\tKOR", row("2", "KOR"))},
		archive{stamp: "20160102000000", body: zipRows(t, "b.export.CSV", row("3", "KOR"))},
	)
	opts := testOptions(t, server)

	result, err := Run(context.Background(), opts)
	require.NoError(t, err)

	require.Len(t, result.Skipped, 1)
	assert.Equal(t, metrics.ReasonMalformedTable, result.Skipped[0].Reason)
	assert.Equal(t, 1, result.Rows, "no rows from a malformed archive reach the output")
}

func TestRun_ChecksumVerification(t *testing.T) {
	body := zipRows(t, "a.export.CSV", row("1", "KOR"))
	server := newGDELTServer(t,
		archive{stamp: "20160101000000", body: body, checksum: "00000000000000000000000000000000"},
		archive{stamp: "20160102000000", body: zipRows(t, "b.export.CSV", row("2", "KOR"))},
	)

	t.Run("disabled", func(t *testing.T) {
		result, err := Run(context.Background(), testOptions(t, server))
		require.NoError(t, err)
		assert.Equal(t, 2, result.Rows)
		assert.Empty(t, result.Skipped)
	})

	t.Run("enabled", func(t *testing.T) {
		opts := testOptions(t, server)
		opts.VerifyChecksum = true
		result, err := Run(context.Background(), opts)
		require.NoError(t, err)
		assert.Equal(t, 1, result.Rows)
		require.Len(t, result.Skipped, 1)
		assert.Equal(t, metrics.ReasonCorruptArchive, result.Skipped[0].Reason)
	})
}

func TestRun_IndexContentTypeFatal(t *testing.T) {
	server := newGDELTServer(t,
		archive{stamp: "20160101000000", body: zipRows(t, "a.export.CSV", row("1", "KOR"))},
	)
	server.indexType = "text/html"
	opts := testOptions(t, server)

	result, err := Run(context.Background(), opts)
	require.Error(t, err)

	var ctErr *masterlist.ContentTypeError
	require.ErrorAs(t, err, &ctErr)
	var stageErr *StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, StageIndex, stageErr.Stage)
	assert.Equal(t, 0, result.Selected)
	assert.Equal(t, 0, server.count("export.CSV.zip"))

	_, statErr := os.Stat(opts.IndexPath)
	assert.True(t, os.IsNotExist(statErr))
}

func TestRun_DirectoriesPreparedBeforeIndex(t *testing.T) {
	server := newGDELTServer(t,
		archive{stamp: "20160101000000", body: zipRows(t, "a.export.CSV", row("1", "KOR"))},
	)
	server.indexType = "text/html"
	opts := testOptions(t, server)

	_, err := Run(context.Background(), opts)
	var ctErr *masterlist.ContentTypeError
	require.ErrorAs(t, err, &ctErr)

	for _, dir := range []string{filepath.Dir(opts.IndexPath), filepath.Dir(opts.OutputPath)} {
		info, statErr := os.Stat(dir)
		require.NoError(t, statErr, dir)
		assert.True(t, info.IsDir())
	}
}

func TestRun_UnwritableResultDirFailsBeforeIndex(t *testing.T) {
	server := newGDELTServer(t,
		archive{stamp: "20160101000000", body: zipRows(t, "a.export.CSV", row("1", "KOR"))},
	)
	opts := testOptions(t, server)
	blocker := filepath.Join(t.TempDir(), "blocker")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0644))
	opts.OutputPath = filepath.Join(blocker, "2016_kor.csv")

	_, err := Run(context.Background(), opts)
	var stageErr *StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, StageIndex, stageErr.Stage)
	assert.Equal(t, 0, server.count("masterfilelist.txt"))
}

func TestRun_SinkFailureAborts(t *testing.T) {
	server := newGDELTServer(t,
		archive{stamp: "20160101000000", body: zipRows(t, "a.export.CSV", row("1", "KOR"))},
		archive{stamp: "20160102000000", body: zipRows(t, "b.export.CSV", row("2", "KOR"))},
	)
	opts := testOptions(t, server)
	sink := &failingSink{}
	opts.Sink = sink
	ledger := &fakeLedger{}
	opts.Ledger = ledger

	result, err := Run(context.Background(), opts)
	require.Error(t, err)
	assert.False(t, events.IsRecoverable(err))
	assert.Contains(t, err.Error(), "disk full")
	assert.True(t, sink.aborted)
	assert.Equal(t, 0, result.Processed)
	assert.Equal(t, 1, server.count("20160101000000.export.CSV.zip"))
	assert.Equal(t, 0, server.count("20160102000000.export.CSV.zip"), "run stops at the first fatal error")
	assert.Equal(t, []string{db.StatusFailed}, ledger.completed)
}

func TestRun_CancelledContext(t *testing.T) {
	server := newGDELTServer(t,
		archive{stamp: "20160101000000", body: zipRows(t, "a.export.CSV", row("1", "KOR"))},
		archive{stamp: "20160102000000", body: zipRows(t, "b.export.CSV", row("2", "KOR"))},
	)
	opts := testOptions(t, server)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	opts.OnProgress = func(e ProgressEvent) {
		if e.Position == 1 {
			cancel()
		}
	}

	result, err := Run(ctx, opts)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, result.Processed)

	_, statErr := os.Stat(opts.OutputPath)
	assert.True(t, os.IsNotExist(statErr))
	_, statErr = os.Stat(opts.OutputPath + output.PartialSuffix)
	assert.True(t, os.IsNotExist(statErr))
}

func TestRun_Metrics(t *testing.T) {
	server := newGDELTServer(t,
		archive{stamp: "20160101000000", body: zipRows(t, "a.export.CSV", row("1", "KOR"), row("2", "USA"))},
		archive{stamp: "20160102000000", body: nil},
		archive{stamp: "20160103000000", body: []byte("garbage")},
	)
	opts := testOptions(t, server)
	m := metrics.New()
	opts.Metrics = m

	_, err := Run(context.Background(), opts)
	require.NoError(t, err)

	assert.Equal(t, 3.0, testutil.ToFloat64(m.EntriesSelected))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EntriesProcessed))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EntriesSkipped.WithLabelValues(metrics.ReasonTransfer)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EntriesSkipped.WithLabelValues(metrics.ReasonCorruptArchive)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.RowsScanned))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RowsRetained))
	assert.Greater(t, testutil.ToFloat64(m.LastSuccess), 0.0)
}

func TestRun_LedgerAndPublisher(t *testing.T) {
	server := newGDELTServer(t,
		archive{stamp: "20160101000000", body: zipRows(t, "a.export.CSV", row("1", "KOR"))},
		archive{stamp: "20160102000000", body: nil},
	)
	opts := testOptions(t, server)
	ledger := &fakeLedger{}
	publisher := &fakePublisher{}
	opts.Ledger = ledger
	opts.Publisher = publisher

	result, err := Run(context.Background(), opts)
	require.NoError(t, err)

	require.Len(t, ledger.runs, 1)
	assert.Equal(t, result.RunID, ledger.runs[0].ID)
	assert.Equal(t, "KOR", ledger.runs[0].CountryCode)
	assert.Equal(t, 2, ledger.runs[0].EntriesSelected)

	require.Len(t, ledger.skips, 1)
	assert.Equal(t, 2, ledger.skips[0].Position)
	assert.Equal(t, metrics.ReasonTransfer, ledger.skips[0].Reason)

	assert.Equal(t, []string{db.StatusCompleted}, ledger.completed)
	assert.Equal(t, 1, ledger.rows)
	assert.Equal(t, opts.OutputPath, ledger.output)

	assert.Equal(t, []string{opts.OutputPath}, publisher.paths)
	assert.Equal(t, "s3://results/2016_kor.csv", result.Published)
}

func TestRun_LedgerEmptyStatus(t *testing.T) {
	server := newGDELTServer(t,
		archive{stamp: "20160101000000", body: zipRows(t, "a.export.CSV", row("1", "USA"))},
	)
	opts := testOptions(t, server)
	ledger := &fakeLedger{}
	opts.Ledger = ledger
	publisher := &fakePublisher{}
	opts.Publisher = publisher

	_, err := Run(context.Background(), opts)
	require.ErrorIs(t, err, ErrEmptyResult)
	assert.Equal(t, []string{db.StatusEmpty}, ledger.completed)
	assert.Empty(t, publisher.paths)
}

func TestRun_LedgerErrorAborts(t *testing.T) {
	server := newGDELTServer(t,
		archive{stamp: "20160101000000", body: nil},
		archive{stamp: "20160102000000", body: zipRows(t, "b.export.CSV", row("2", "KOR"))},
	)
	opts := testOptions(t, server)
	opts.Ledger = &fakeLedger{skipErr: errors.New("connection reset")}

	result, err := Run(context.Background(), opts)
	require.Error(t, err)

	var stageErr *StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, StageLedger, stageErr.Stage)
	assert.Empty(t, result.Output)

	_, statErr := os.Stat(opts.OutputPath + output.PartialSuffix)
	assert.True(t, os.IsNotExist(statErr))
}

func TestRun_PublishFailure(t *testing.T) {
	server := newGDELTServer(t,
		archive{stamp: "20160101000000", body: zipRows(t, "a.export.CSV", row("1", "KOR"))},
	)
	opts := testOptions(t, server)
	opts.Publisher = &fakePublisher{err: errors.New("access denied")}

	result, err := Run(context.Background(), opts)
	require.Error(t, err)

	var stageErr *StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, StagePublish, stageErr.Stage)

	// the committed file is kept
	assert.Equal(t, opts.OutputPath, result.Output)
	_, statErr := os.Stat(opts.OutputPath)
	assert.NoError(t, statErr)
}

func TestRun_MemorySink(t *testing.T) {
	server := newGDELTServer(t,
		archive{stamp: "20160101000000", body: zipRows(t, "a.export.CSV", row("1", "KOR"), row("2", "KOR"))},
	)
	opts := testOptions(t, server)
	sink := output.NewMemorySink()
	opts.Sink = sink

	result, err := Run(context.Background(), opts)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Rows)
	assert.Equal(t, 2, sink.Table().Len())
	assert.Empty(t, result.Output)
}

func TestResult_Summary(t *testing.T) {
	server := newGDELTServer(t,
		archive{stamp: "20160101000000", body: zipRows(t, "a.export.CSV", row("1", "KOR"))},
		archive{stamp: "20160102000000", body: nil},
	)
	result, err := Run(context.Background(), testOptions(t, server))
	require.NoError(t, err)

	s := result.Summary()
	assert.Equal(t, result.RunID.String(), s.RunID)
	assert.Equal(t, 1, s.Processed)
	require.Len(t, s.Skipped, 1)
	assert.Equal(t, metrics.ReasonTransfer, s.Skipped[0].Reason)
	assert.GreaterOrEqual(t, s.Duration.Nanoseconds(), int64(0))
}
