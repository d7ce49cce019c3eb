package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imishinist/mlvc-cli/internal/lifecycle"
)

func newInputCommand(t *testing.T, flag string, args ...string) *cobra.Command {
	t.Helper()
	c := &cobra.Command{Use: "test"}
	c.Flags().StringArray(flag, []string{}, "")
	c.Flags().String("from-file", "", "")
	c.Flags().String("type", "", "")
	require.NoError(t, c.ParseFlags(args))
	return c
}

func TestKeyValueInput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "params.yaml")
	require.NoError(t, os.WriteFile(path, []byte("lr: 0.01\nbatch_size: 32\n"), 0o644))

	c := newInputCommand(t, "param", "--from-file", path, "--param", "lr=0.1", "--param", "note=a=b")
	values, err := keyValueInput(c, "param")
	require.NoError(t, err)

	assert.Equal(t, "0.1", values["lr"], "flags override the file")
	assert.Equal(t, float64(32), values["batch_size"])
	assert.Equal(t, "a=b", values["note"])
}

func TestKeyValueInputInvalid(t *testing.T) {
	for _, arg := range []string{"novalue", "=value"} {
		c := newInputCommand(t, "metric", "--metric", arg)
		_, err := keyValueInput(c, "metric")
		assert.Error(t, err, arg)
	}
}

func TestKeyValueInputEmpty(t *testing.T) {
	values, err := keyValueInput(newInputCommand(t, "result"), "result")
	require.NoError(t, err)
	assert.Empty(t, values)
}

func TestFileInputType(t *testing.T) {
	testCases := []struct {
		path    string
		args    []string
		want    string
		wantErr bool
	}{
		{path: "labels.json", want: lifecycle.InputJSONFile},
		{path: "train.CSV", want: lifecycle.InputCSVFile},
		{path: "labels.txt", wantErr: true},
		{path: "labels.txt", args: []string{"--type", "csv_file"}, want: lifecycle.InputCSVFile},
	}

	for _, tc := range testCases {
		t.Run(tc.path, func(t *testing.T) {
			c := newInputCommand(t, "file", tc.args...)
			got, err := fileInputType(c, tc.path)
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}
