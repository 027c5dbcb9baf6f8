package archive

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeArchiver struct {
	before time.Time
	calls  int
}

func (f *fakeArchiver) ArchiveSettlements(_ context.Context, before time.Time) (int64, error) {
	f.before = before
	f.calls++
	return 3, nil
}

func TestJobRunUsesRetentionCutoff(t *testing.T) {
	fa := &fakeArchiver{}
	j := NewJob(fa, 30, slog.New(slog.NewTextHandler(io.Discard, nil)))

	require.NoError(t, j.Run(context.Background()))
	assert.Equal(t, 1, fa.calls)
	want := time.Now().UTC().Add(-30 * 24 * time.Hour)
	assert.WithinDuration(t, want, fa.before, time.Minute)
}

func TestNextCronTime(t *testing.T) {
	after := time.Date(2026, 3, 10, 2, 59, 30, 0, time.UTC)

	next, err := nextCronTime("0 3 * * *", after)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 10, 3, 0, 0, 0, time.UTC), next)

	next, err = nextCronTime("*/15 * * * *", after)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 10, 3, 0, 0, 0, time.UTC), next)

	next, err = nextCronTime("30 4 1 * *", after)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 4, 1, 4, 30, 0, 0, time.UTC), next)
}

func TestParseCronRejectsBadExpressions(t *testing.T) {
	for _, expr := range []string{"", "* * *", "61 * * * *", "*/0 * * * *", "a * * * *"} {
		_, err := parseCron(expr)
		assert.Error(t, err, expr)
	}
}
