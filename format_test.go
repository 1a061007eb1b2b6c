package main

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatSize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		bytes int64
		want  string
	}{
		{0, "0 B"},
		{512, "512 B"},
		{1536, "1.5 KB"},
		{5 * sizeMB, "5.0 MB"},
		{3 * sizeGB, "3.0 GB"},
		{2 * sizeTB, "2.0 TB"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, formatSize(tt.bytes))
	}
}

func TestPrintTable(t *testing.T) {
	t.Parallel()

	var sb strings.Builder

	printTable(&sb, []string{"ID", "NAME"}, [][]string{
		{"1", "alpha"},
		{"23", "b"},
	})

	lines := strings.Split(strings.TrimRight(sb.String(), "\n"), "\n")
	assert.Len(t, lines, 3)
	assert.Equal(t, "ID  NAME", strings.TrimRight(lines[0], " "))
	assert.Equal(t, "1   alpha", strings.TrimRight(lines[1], " "))
	assert.Equal(t, "23  b", strings.TrimRight(lines[2], " "))
}
