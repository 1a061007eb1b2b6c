package main

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWritePIDFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "run", "ypsync.pid")

	cleanup, err := writePIDFile(path)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, strconv.Itoa(os.Getpid()), strings.TrimSpace(string(data)))

	// The lock is exclusive within one process too.
	_, err = writePIDFile(path)
	assert.Error(t, err)

	cleanup()

	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	// Released lock can be re-acquired.
	cleanup, err = writePIDFile(path)
	require.NoError(t, err)
	cleanup()
}

func TestWritePIDFile_EmptyPath(t *testing.T) {
	t.Parallel()

	_, err := writePIDFile("")
	assert.Error(t, err)
}
