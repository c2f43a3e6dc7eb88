package scheduler

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestAddCronRejectsInvalidExpression(t *testing.T) {
	s, err := New(zap.NewNop())
	require.NoError(t, err)
	defer s.Stop() //nolint:errcheck

	err = s.AddCron("bad", "not a cron", func(context.Context) error { return nil })
	assert.Error(t, err)
	assert.Empty(t, s.Jobs())
}

func TestAddCronRejectsDuplicateNames(t *testing.T) {
	s, err := New(nil)
	require.NoError(t, err)
	defer s.Stop() //nolint:errcheck

	task := func(context.Context) error { return nil }
	require.NoError(t, s.AddCron("sweep", "*/5 * * * *", task))
	assert.Error(t, s.AddCron("sweep", "*/5 * * * *", task))
	assert.Equal(t, []string{"sweep"}, s.Jobs())
}

func TestRunRecoversFromPanics(t *testing.T) {
	s, err := New(nil)
	require.NoError(t, err)
	defer s.Stop() //nolint:errcheck

	assert.NotPanics(t, func() {
		s.run("boom", func(context.Context) error { panic("boom") })
	})
}
