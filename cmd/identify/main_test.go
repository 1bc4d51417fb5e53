package main

import (
	"bytes"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writePNG(t *testing.T, dir, name string) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 2, 2))))
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o600))
	return path
}

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := newCommand()
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func TestIdentify_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/predict/", r.URL.Path)
		_, header, err := r.FormFile("file")
		if assert.NoError(t, err) {
			assert.Equal(t, "leaf.png", header.Filename)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success":true,"prediction":"Aloe Vera","confidence":0.8734}`))
	}))
	defer srv.Close()

	path := writePNG(t, t.TempDir(), "leaf.png")
	stdout, stderr, err := execute(t, "--endpoint", srv.URL, path)

	require.NoError(t, err)
	assert.Equal(t, "Plant: Aloe Vera\nConfidence: 87.34%\n", stdout)
	assert.Empty(t, stderr)
}

func TestIdentify_Errors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"success":false,"error":"Low confidence"}`))
	}))
	defer srv.Close()

	dir := t.TempDir()
	leaf := writePNG(t, dir, "leaf.png")
	notes := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(notes, []byte("hello"), 0o600))

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"application error", []string{"--endpoint", srv.URL, leaf}, "Error: Low confidence\n"},
		{"rejected file", []string{"--endpoint", srv.URL, notes}, "Error: Only one JPEG or PNG image can be selected\n"},
		{"unreachable", []string{"--endpoint", "http://127.0.0.1:1", leaf}, "Error: An error occurred\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stdout, stderr, err := execute(t, tt.args...)
			assert.Error(t, err)
			assert.Empty(t, stdout)
			assert.Equal(t, tt.want, stderr)
		})
	}
}

func TestIdentify_MissingArgument(t *testing.T) {
	_, _, err := execute(t)
	assert.Error(t, err)
}
