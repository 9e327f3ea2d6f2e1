package journal

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"regexp"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"
)

func newMockStore(t *testing.T) (pgxmock.PgxPoolIface, *Store) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return mock, NewStore(mock, log)
}

func TestEnsureSchema(t *testing.T) {
	mock, store := newMockStore(t)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS call_records").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec("CREATE INDEX IF NOT EXISTS idx_call_records_adapter_time").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS usage_checkpoints").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, store.EnsureSchema(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordInserts(t *testing.T) {
	mock, store := newMockStore(t)
	ts := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectExec("INSERT INTO call_records").
		WithArgs("call-1", "adapter-slack", "chat", "post", "chat.post",
			"agent-7", "success", "", int64(42), ts).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	store.Record(context.Background(), Record{
		CallID:     "call-1",
		Adapter:    "adapter-slack",
		Tool:       "chat",
		Action:     "post",
		Category:   "chat.post",
		Caller:     "agent-7",
		Outcome:    "success",
		DurationMS: 42,
		ReceivedAt: ts,
	})
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordSwallowsInsertFailure(t *testing.T) {
	mock, store := newMockStore(t)

	mock.ExpectExec("INSERT INTO call_records").
		WillReturnError(errors.New("connection refused"))

	// Must not panic or propagate; journaling is best effort.
	store.Record(context.Background(), Record{CallID: "call-1", Adapter: "adapter-slack"})
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAdapters(t *testing.T) {
	mock, store := newMockStore(t)

	mock.ExpectQuery("SELECT DISTINCT adapter FROM call_records").
		WillReturnRows(pgxmock.NewRows([]string{"adapter"}).
			AddRow("adapter-brave").
			AddRow("adapter-slack"))

	adapters, err := store.Adapters(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"adapter-brave", "adapter-slack"}, adapters)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUsageSince(t *testing.T) {
	mock, store := newMockStore(t)
	since := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	early := since.Add(2 * time.Hour)
	late := since.Add(5 * time.Hour)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE adapter = $1 AND received_at > $2")).
		WithArgs("adapter-slack", since).
		WillReturnRows(pgxmock.NewRows([]string{"tool", "action", "outcome", "count", "sum", "max"}).
			AddRow("chat", "history", "success", int64(4), int64(900), late).
			AddRow("chat", "post", "success", int64(10), int64(2400), early))

	lines, latest, err := store.UsageSince(context.Background(), "adapter-slack", since)
	require.NoError(t, err)
	require.Len(t, lines, 2)
	require.Equal(t, Usage{Tool: "chat", Action: "history", Outcome: "success", Calls: 4, TotalMS: 900}, lines[0])
	require.Equal(t, Usage{Tool: "chat", Action: "post", Outcome: "success", Calls: 10, TotalMS: 2400}, lines[1])
	require.Equal(t, late, latest, "latest must be the max received_at across groups")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCheckpointMissingRowMeansNeverArchived(t *testing.T) {
	mock, store := newMockStore(t)

	mock.ExpectQuery("SELECT archived_to FROM usage_checkpoints").
		WithArgs("adapter-slack").
		WillReturnError(pgx.ErrNoRows)

	ts, err := store.Checkpoint(context.Background(), "adapter-slack")
	require.NoError(t, err)
	require.True(t, ts.IsZero())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCheckpointRoundTrip(t *testing.T) {
	mock, store := newMockStore(t)
	ts := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectExec("INSERT INTO usage_checkpoints").
		WithArgs("adapter-slack", ts).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectQuery("SELECT archived_to FROM usage_checkpoints").
		WithArgs("adapter-slack").
		WillReturnRows(pgxmock.NewRows([]string{"archived_to"}).AddRow(ts))

	require.NoError(t, store.AdvanceCheckpoint(context.Background(), "adapter-slack", ts))

	got, err := store.Checkpoint(context.Background(), "adapter-slack")
	require.NoError(t, err)
	require.Equal(t, ts, got)
	require.NoError(t, mock.ExpectationsWereMet())
}
