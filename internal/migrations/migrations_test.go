package migrations

import (
	"testing"

	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/stretchr/testify/require"
)

func TestEmbeddedSourceHasAMatchingUpAndDownPair(t *testing.T) {
	src, err := iofs.New(sqlFiles, "sql")
	require.NoError(t, err)
	defer src.Close()

	version, err := src.First()
	require.NoError(t, err)
	require.EqualValues(t, 1, version)

	_, _, err = src.ReadUp(version)
	require.NoError(t, err)

	_, _, err = src.ReadDown(version)
	require.NoError(t, err)
}
