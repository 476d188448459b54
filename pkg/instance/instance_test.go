package instance

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIDPrefersEnv(t *testing.T) {
	t.Setenv(EnvKey, "publisher-7")
	require.Equal(t, "publisher-7", ID("outbox-publisher"))
}

func TestIDFallsBack(t *testing.T) {
	t.Setenv(EnvKey, "")
	require.NotEmpty(t, ID("notification-worker"))
}
