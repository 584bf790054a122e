package audit_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jrsteele09/school-auth/audit"
	fakeauditsink "github.com/jrsteele09/school-auth/audit/repofake"
	"github.com/jrsteele09/school-auth/identity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testFixture struct {
	log  *audit.Log
	sink *fakeauditsink.FakeSink
}

func setupTestFixture(t *testing.T, options ...audit.Option) *testFixture {
	t.Helper()
	sink := fakeauditsink.NewFakeSink()
	opts := append([]audit.Option{audit.WithRetry(time.Millisecond, 5*time.Millisecond)}, options...)
	l, err := audit.NewLog(sink, opts...)
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = l.Close(ctx)
	})
	return &testFixture{log: l, sink: sink}
}

func flush(t *testing.T, l *audit.Log) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, l.Flush(ctx))
}

func TestNewLogRequiresSink(t *testing.T) {
	_, err := audit.NewLog(nil)
	require.Error(t, err)
}

func TestRecordPreservesOrder(t *testing.T) {
	f := setupTestFixture(t, audit.WithQueueSize(2))
	ctx := context.Background()

	for i := 0; i < 100; i++ {
		f.log.Record(ctx, audit.SecurityEvent{Type: audit.EventLoginFailed, TenantID: "t1", Detail: fmt.Sprint(i)})
	}
	flush(t, f.log)

	events := f.sink.All()
	require.Len(t, events, 100)
	for i, ev := range events {
		require.Equal(t, uint64(i+1), ev.Seq)
		require.Equal(t, fmt.Sprint(i), ev.Detail)
		require.NotEmpty(t, ev.ID)
		require.Equal(t, audit.SeverityLow, ev.Severity)
		if i > 0 {
			require.False(t, ev.Timestamp.Before(events[i-1].Timestamp))
		}
	}
}

func TestConcurrentRecordsAllWritten(t *testing.T) {
	f := setupTestFixture(t, audit.WithQueueSize(4))
	ctx := context.Background()

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 25; i++ {
				f.log.Record(ctx, audit.SecurityEvent{Type: audit.EventLoginSuccess, TenantID: "t1"})
			}
		}()
	}
	wg.Wait()
	flush(t, f.log)

	events := f.sink.All()
	require.Len(t, events, 200)
	for i, ev := range events {
		require.Equal(t, uint64(i+1), ev.Seq)
	}
}

func TestRecordSyncRetriesUntilSinkRecovers(t *testing.T) {
	f := setupTestFixture(t)
	f.sink.SetFailure(errors.New("disk full"))

	result := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		result <- f.log.RecordSync(ctx, audit.SecurityEvent{Type: audit.EventSuspiciousActivity, Severity: audit.SeverityHigh, TenantID: "t1"})
	}()

	require.Eventually(t, func() bool { return f.sink.Attempts() >= 3 }, 2*time.Second, time.Millisecond)
	f.sink.SetFailure(nil)

	select {
	case err := <-result:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("RecordSync did not return")
	}
	require.Len(t, f.sink.All(), 1)
	require.Empty(t, f.log.DeadLetters())
}

func TestRecordSyncContextEndsButEventStaysQueued(t *testing.T) {
	f := setupTestFixture(t)
	f.sink.SetFailure(errors.New("connection refused"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := f.log.RecordSync(ctx, audit.SecurityEvent{Type: audit.EventAccountLocked, TenantID: "t1"})
	require.ErrorIs(t, err, audit.ErrSinkUnavailable)

	f.sink.SetFailure(nil)
	flush(t, f.log)
	events := f.sink.All()
	require.Len(t, events, 1)
	require.Equal(t, audit.EventAccountLocked, events[0].Type)
}

func TestDeadLetterAfterGrace(t *testing.T) {
	f := setupTestFixture(t, audit.WithDeadLetterGrace(20*time.Millisecond))
	f.sink.SetFailure(errors.New("sink down"))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := f.log.RecordSync(ctx, audit.SecurityEvent{Type: audit.EventLoginFailed, TenantID: "t1", IdentityID: "u1"})
	require.ErrorIs(t, err, audit.ErrSinkUnavailable)

	dead := f.log.DeadLetters()
	require.Len(t, dead, 1)
	require.Equal(t, "u1", dead[0].IdentityID)

	// The writer moves on once the sink is back.
	f.sink.SetFailure(nil)
	require.NoError(t, f.log.RecordSync(ctx, audit.SecurityEvent{Type: audit.EventLoginSuccess, TenantID: "t1"}))
	require.Len(t, f.sink.All(), 1)
}

func TestCloseDrainsQueue(t *testing.T) {
	sink := fakeauditsink.NewFakeSink()
	l, err := audit.NewLog(sink)
	require.NoError(t, err)

	ctx := context.Background()
	for i := 0; i < 10; i++ {
		l.Record(ctx, audit.SecurityEvent{Type: audit.EventLogout, TenantID: "t1"})
	}
	closeCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	require.NoError(t, l.Close(closeCtx))
	require.Len(t, sink.All(), 10)

	// Nothing is dropped silently after close.
	l.Record(ctx, audit.SecurityEvent{Type: audit.EventLogout, TenantID: "t1"})
	require.Len(t, l.DeadLetters(), 1)
	require.ErrorIs(t, l.RecordSync(ctx, audit.SecurityEvent{Type: audit.EventLogout}), audit.ErrClosed)
}

func TestQueryAuthorization(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()
	f.log.Record(ctx, audit.SecurityEvent{Type: audit.EventLoginSuccess, TenantID: "school-a"})
	f.log.Record(ctx, audit.SecurityEvent{Type: audit.EventLoginFailed, TenantID: "school-b"})
	f.log.Record(ctx, audit.SecurityEvent{Type: audit.EventLoginFailed, TenantID: "school-a"})
	flush(t, f.log)

	superAdmin := audit.Requester{IdentityID: "root", Role: identity.RoleSuperAdmin}
	adminA := audit.Requester{IdentityID: "admin-a", TenantID: "school-a", Role: identity.RoleAdmin}
	teacherA := audit.Requester{IdentityID: "teacher-a", TenantID: "school-a", Role: identity.RoleTeacher}

	t.Run("admin reads own tenant", func(t *testing.T) {
		events, err := f.log.Query(ctx, "school-a", adminA)
		require.NoError(t, err)
		require.Len(t, events, 2)
		for _, ev := range events {
			require.Equal(t, "school-a", ev.TenantID)
		}
	})

	t.Run("admin defaults to own tenant", func(t *testing.T) {
		events, err := f.log.Query(ctx, "", adminA, audit.EventLoginFailed)
		require.NoError(t, err)
		require.Len(t, events, 1)
	})

	t.Run("admin denied other tenant", func(t *testing.T) {
		_, err := f.log.Query(ctx, "school-b", adminA)
		require.ErrorIs(t, err, audit.ErrForbidden)
	})

	t.Run("teacher denied", func(t *testing.T) {
		_, err := f.log.Query(ctx, "school-a", teacherA)
		require.ErrorIs(t, err, audit.ErrForbidden)
	})

	t.Run("super admin reads any tenant", func(t *testing.T) {
		events, err := f.log.Query(ctx, "school-b", superAdmin, audit.EventLoginFailed)
		require.NoError(t, err)
		require.Len(t, events, 1)

		events, err = f.log.Query(ctx, "", superAdmin, audit.EventLoginSuccess, audit.EventLoginFailed)
		require.NoError(t, err)
		require.Len(t, events, 3)
	})

	flush(t, f.log)
	var queries, denied int
	for _, ev := range f.sink.All() {
		if ev.Type != audit.EventAuditQuery {
			continue
		}
		queries++
		if ev.Severity == audit.SeverityHigh {
			denied++
		}
	}
	assert.Equal(t, 6, queries)
	assert.Equal(t, 2, denied)
}
