package core

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/JonMunkholm/registrysync/internal/importer"
	"github.com/JonMunkholm/registrysync/internal/metrics"
	"github.com/JonMunkholm/registrysync/internal/persist"
	"github.com/JonMunkholm/registrysync/internal/reconcile"
	"github.com/JonMunkholm/registrysync/internal/registry"
	"github.com/JonMunkholm/registrysync/internal/store/memstore"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func init() {
	reconcile.HashCost = bcrypt.MinCost
}

const ocnicExport = "OCNIC,OName,ItemCode,DocTotal,ReconSum,BalDueDeb\n" +
	"12345-6789012-3,Ali Khan,P-001,5000,1000,200\n" +
	"12345-6789012-3,Ali Khan,P-001,5000,500,100\n" +
	"42101-7654321-0,Sara Ahmed,P-002,8000,(250),0\n"

// flakyMirror is a memstore mirror that can be switched off.
type flakyMirror struct {
	*memstore.Mirror
	down atomic.Bool
}

var errMirrorDown = errors.New("mirror down")

func (f *flakyMirror) SelectAll(ctx context.Context, collection string) ([]json.RawMessage, error) {
	if f.down.Load() {
		return nil, errMirrorDown
	}
	return f.Mirror.SelectAll(ctx, collection)
}

func (f *flakyMirror) Upsert(ctx context.Context, collection string, rows []persist.Row) error {
	if f.down.Load() {
		return errMirrorDown
	}
	return f.Mirror.Upsert(ctx, collection, rows)
}

func (f *flakyMirror) Prune(ctx context.Context, collection string, keep []string) error {
	if f.down.Load() {
		return errMirrorDown
	}
	return f.Mirror.Prune(ctx, collection, keep)
}

type fixture struct {
	svc     *Service
	reg     *registry.Registry
	coord   *persist.Coordinator
	metrics *metrics.Metrics
}

func newFixture(t *testing.T, opts ...Option) fixture {
	t.Helper()
	return newFixtureWithRemote(t, nil, opts...)
}

func newFixtureWithRemote(t *testing.T, remote persist.RemoteStore, opts ...Option) fixture {
	t.Helper()
	m := metrics.New(prometheus.NewRegistry())
	reg := registry.New()

	coordOpts := []persist.Option{persist.WithMetrics(m)}
	if remote != nil {
		coordOpts = append(coordOpts, persist.WithRemote(remote))
	}
	coord := persist.New(reg, memstore.New(), coordOpts...)

	svc := NewService(coord, append([]Option{WithMetrics(m)}, opts...)...)
	require.NoError(t, svc.Hydrate(context.Background()))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = svc.Drain(ctx)
	})
	return fixture{svc: svc, reg: reg, coord: coord, metrics: m}
}

func TestImportFile_MergeAddsAccounts(t *testing.T) {
	f := newFixture(t)

	res, err := f.svc.ImportFile(context.Background(), "export.csv", []byte(ocnicExport), reconcile.ModeMerge)
	require.NoError(t, err)

	assert.Equal(t, "2 accounts registered", res.Message)
	assert.NotEmpty(t, res.ImportID)
	assert.Equal(t, 3, res.DataRows)
	assert.Equal(t, 3, res.Transactions)
	assert.Equal(t, 2, res.Accounts)
	assert.Equal(t, 2, res.Members)
	assert.Equal(t, 2, res.Changes.Accounts.New)
	assert.Equal(t, 0, res.SkippedCount)

	a, err := f.svc.Account("P-001")
	require.NoError(t, err)
	assert.True(t, a.PaymentsReceived.Equal(decimal.NewFromInt(1500)))
	assert.True(t, a.Balance.Equal(decimal.NewFromInt(300)))

	b, err := f.svc.Account("P-002")
	require.NoError(t, err)
	assert.True(t, b.PaymentsReceived.Equal(decimal.NewFromInt(-250)))

	_, err = f.svc.Account("DEMO-001")
	assert.NoError(t, err, "merge keeps seed data")

	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.ImportsTotal.WithLabelValues("merge", metrics.OutcomeSuccess)))
	assert.Equal(t, 3.0, testutil.ToFloat64(f.metrics.ImportRows))
}

func TestImportFile_ReplaceIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.svc.ImportFile(ctx, "a.csv", []byte(ocnicExport), reconcile.ModeReplace)
	require.NoError(t, err)
	assert.Equal(t, 1, first.Changes.Accounts.Removed, "seed account dropped")

	_, err = f.svc.Account("DEMO-001")
	assert.ErrorIs(t, err, ErrAccountNotFound)

	afterFirst := f.reg.Snapshot()
	second, err := f.svc.ImportFile(ctx, "a.csv", []byte(ocnicExport), reconcile.ModeReplace)
	require.NoError(t, err)

	assert.False(t, second.Changes.Changed())
	assert.Equal(t, 2, second.Changes.Accounts.Unchanged)
	assert.Equal(t, afterFirst, f.reg.Snapshot())
}

func TestImportFile_EmptyModeMeansMerge(t *testing.T) {
	f := newFixture(t)

	res, err := f.svc.ImportFile(context.Background(), "a.csv", []byte(ocnicExport), "")
	require.NoError(t, err)
	assert.Equal(t, reconcile.ModeMerge, res.Mode)
}

func TestImportFile_RejectionsLeaveRegistryUntouched(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		mode    reconcile.Mode
		wantErr error
	}{
		{"no data", "", reconcile.ModeMerge, ErrNoFile},
		{"header only", "OCNIC,ItemCode\n", reconcile.ModeMerge, importer.ErrTooFewLines},
		{"delimiter-only rows", "OCNIC,OName,ItemCode,DocTotal,ReconSum,BalDueDeb\r\n,,,,,\r\n,,,,,\r\n", reconcile.ModeReplace, importer.ErrTooFewLines},
		{"no identity column", "Name,ItemCode\nAli,P-1\n", reconcile.ModeReplace, importer.ErrHeaderUnresolved},
		{"unknown mode", ocnicExport, "append", reconcile.ErrUnknownMode},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			before := f.reg.Snapshot()

			res, err := f.svc.ImportFile(context.Background(), "bad.csv", []byte(tt.data), tt.mode)
			require.ErrorIs(t, err, tt.wantErr)
			assert.Nil(t, res)
			assert.Equal(t, before, f.reg.Snapshot())

			recent := f.svc.RecentImports(1)
			require.Len(t, recent, 1)
			assert.Equal(t, metrics.OutcomeRejected, recent[0].Outcome)
			assert.NotEmpty(t, recent[0].Error)
		})
	}
}

func TestImportFile_SkippedRowsSampled(t *testing.T) {
	f := newFixture(t, WithSkippedSamples(2))

	var b strings.Builder
	b.WriteString("OCNIC,ItemCode,ReconSum\n")
	b.WriteString("11111-1111111-1,P-1,10\n")
	for i := 0; i < 5; i++ {
		b.WriteString("11111-1111111-1,,10\n")
	}
	b.WriteString(",P-9,10\n")

	res, err := f.svc.ImportFile(context.Background(), "skips.csv", []byte(b.String()), reconcile.ModeMerge)
	require.NoError(t, err)

	assert.Equal(t, 6, res.SkippedCount)
	require.Len(t, res.SkippedSamples, 2)
	assert.Equal(t, 3, res.SkippedSamples[0].Line)
	assert.Equal(t, "1 accounts registered", res.Message)

	assert.Equal(t, 5.0, testutil.ToFloat64(f.metrics.SkippedRowsTotal.WithLabelValues(string(importer.SkipMissingAccountCode))))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.SkippedRowsTotal.WithLabelValues(string(importer.SkipMissingIdentity))))
}

func TestImportFile_TooManyImports(t *testing.T) {
	limiter := NewImportLimiter(1, 20*time.Millisecond)
	f := newFixture(t, WithLimiter(limiter))

	require.True(t, limiter.TryAcquire())
	defer limiter.Release()

	_, err := f.svc.ImportFile(context.Background(), "a.csv", []byte(ocnicExport), reconcile.ModeMerge)
	assert.ErrorIs(t, err, ErrTooManyImports)
	assert.Equal(t, "UPL002", MapError(err).Code)
}

func TestImportFile_JournalRecordsSource(t *testing.T) {
	f := newFixture(t)
	ctx := ContextWithSource(context.Background(), "cli")
	ctx = ContextWithIPAddress(ctx, "10.0.0.7")

	_, err := f.svc.ImportFile(ctx, "a.csv", []byte(ocnicExport), reconcile.ModeMerge)
	require.NoError(t, err)

	recent := f.svc.RecentImports(10)
	require.Len(t, recent, 1)
	e := recent[0]
	assert.Equal(t, "cli", e.Source)
	assert.Equal(t, "10.0.0.7", e.IPAddress)
	assert.Equal(t, metrics.OutcomeSuccess, e.Outcome)
	assert.Equal(t, "2 accounts registered", e.Message)
	assert.Equal(t, 2, e.Accounts)
}

func TestPreview_DoesNotChangeState(t *testing.T) {
	f := newFixture(t)
	before := f.reg.Snapshot()

	p, err := f.svc.Preview(context.Background(), "a.csv", []byte(ocnicExport), reconcile.ModeReplace)
	require.NoError(t, err)

	assert.Equal(t, 2, p.File.Summary.Accounts)
	assert.Equal(t, 2, p.Changes.Accounts.New)
	assert.Equal(t, 1, p.Changes.Accounts.Removed)
	assert.Equal(t, before, f.reg.Snapshot())
	assert.Empty(t, f.svc.RecentImports(0), "previews are not journaled")
}

func TestPreview_Errors(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Preview(context.Background(), "a.csv", nil, reconcile.ModeMerge)
	assert.ErrorIs(t, err, ErrNoFile)

	_, err = f.svc.Preview(context.Background(), "a.csv", []byte(ocnicExport), "bogus")
	assert.ErrorIs(t, err, reconcile.ErrUnknownMode)

	cold := NewService(persist.New(registry.New(), memstore.New()))
	_, err = cold.Preview(context.Background(), "a.csv", []byte(ocnicExport), reconcile.ModeMerge)
	assert.ErrorIs(t, err, persist.ErrNotHydrated)
}

func TestClaim_RedactsCredential(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.svc.Claim(ctx, reconcile.ClaimRequest{
		Identity: "35202 1234567 9",
		Password: "s3cret-pass",
		Email:    "demo@example.com",
	})
	require.NoError(t, err)
	assert.False(t, res.Created)
	assert.Empty(t, res.Member.Credential)
	assert.Equal(t, registry.StatusActive, res.Member.Status)

	stored, ok := f.reg.Member("3520212345679")
	require.True(t, ok)
	assert.True(t, reconcile.VerifyCredential(stored, "s3cret-pass"))

	served, err := f.svc.Member("35202-1234567-9")
	require.NoError(t, err)
	assert.Empty(t, served.Credential)
	for _, m := range f.svc.Members() {
		assert.Empty(t, m.Credential)
	}

	_, err = f.svc.Claim(ctx, reconcile.ClaimRequest{Identity: "3520212345679", Password: "another-pass"})
	assert.ErrorIs(t, err, reconcile.ErrAlreadyClaimed)
}

func TestQueries(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.ImportFile(context.Background(), "a.csv", []byte(ocnicExport), reconcile.ModeMerge)
	require.NoError(t, err)

	accounts, err := f.svc.MemberAccounts("12345 6789012 3")
	require.NoError(t, err)
	require.Len(t, accounts, 1)
	assert.Equal(t, "P-001", accounts[0].Code)

	_, err = f.svc.MemberAccounts("99999-9999999-9")
	assert.ErrorIs(t, err, ErrMemberNotFound)

	_, err = f.svc.Member("99999-9999999-9")
	assert.ErrorIs(t, err, ErrMemberNotFound)

	all := f.svc.Accounts()
	require.Len(t, all, 3)
	assert.Equal(t, "DEMO-001", all[0].Code)
	assert.Equal(t, "P-001", all[1].Code)

	h := f.svc.Health()
	assert.True(t, h.Ready)
	assert.Equal(t, 3, h.Accounts)
	assert.Equal(t, 4, h.Members)
	assert.False(t, h.Mirror.Configured)
}

func TestReset_ReseedsAndResyncWithoutMirror(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.ImportFile(ctx, "a.csv", []byte(ocnicExport), reconcile.ModeReplace)
	require.NoError(t, err)

	res, err := f.svc.Reset(ctx)
	require.NoError(t, err)
	assert.Equal(t, "seed", res.Source)
	assert.Equal(t, registry.Seed(), f.reg.Snapshot())

	_, err = f.svc.Resync(ctx, true)
	assert.ErrorIs(t, err, persist.ErrNoMirror)
}

func TestImportFile_MirrorOutageDoesNotFailImport(t *testing.T) {
	mirror := &flakyMirror{Mirror: memstore.NewMirror()}
	mirror.down.Store(true)
	f := newFixtureWithRemote(t, mirror)
	ctx := context.Background()

	_, err := f.svc.ImportFile(ctx, "a.csv", []byte(ocnicExport), reconcile.ModeMerge)
	require.NoError(t, err)
	require.NoError(t, f.coord.Wait(ctx))
	assert.True(t, f.svc.SyncStatus().Dirty)

	mirror.down.Store(false)
	status, err := f.svc.Resync(ctx, false)
	require.NoError(t, err)
	assert.False(t, status.Dirty)
	assert.Equal(t, 3, mirror.Len(persist.KeyAccounts))
}
