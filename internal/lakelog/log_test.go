package lakelog_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openaleph/lakehouse-go/internal/lakelog"
)

func TestConfigureBuildsLogger(t *testing.T) {
	lakelog.Configure(false)
	require.NotNil(t, lakelog.Get())

	lakelog.Configure(true)
	require.NotNil(t, lakelog.Get())
}

func TestForDatasetAttachesField(t *testing.T) {
	lakelog.Configure(false)
	l := lakelog.ForDataset("acme")
	assert.NotNil(t, l)
}

func TestForRunAttachesFields(t *testing.T) {
	lakelog.Configure(false)
	l := lakelog.ForRun("acme", "run1", "statements/last_updated", []string{"journal/last_updated"})
	assert.NotNil(t, l)
}

func TestSyncDoesNotPanic(t *testing.T) {
	lakelog.Configure(false)
	// zap's Sync commonly fails on stdout/stderr with ENOTTY in test
	// sandboxes; only assert it doesn't panic.
	_ = lakelog.Sync()
}
