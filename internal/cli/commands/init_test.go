package commands

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/quill/internal/bootstrap"
	"github.com/leapstack-labs/quill/internal/config"
)

func TestNewInitCommand(t *testing.T) {
	tests := []struct {
		name      string
		setupDir  func(t *testing.T, dir string)
		args      []string
		wantErr   bool
		wantFiles []string
	}{
		{
			name: "init empty directory",
			wantFiles: []string{
				"quill.yaml",
				".gitignore",
				"templates/hello.html",
				"functions/text.star",
			},
		},
		{
			name: "init existing config without force",
			setupDir: func(_ *testing.T, dir string) {
				_ = os.WriteFile(filepath.Join(dir, "quill.yaml"), []byte("existing"), 0600)
			},
			wantErr: true,
		},
		{
			name: "init existing config with force",
			setupDir: func(_ *testing.T, dir string) {
				_ = os.WriteFile(filepath.Join(dir, "quill.yaml"), []byte("existing"), 0600)
			},
			args:      []string{"--force"},
			wantFiles: []string{"quill.yaml", "templates"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmpDir := t.TempDir()
			if tt.setupDir != nil {
				tt.setupDir(t, tmpDir)
			}

			cmd := NewInitCommand()
			buf := new(bytes.Buffer)
			cmd.SetOut(buf)
			cmd.SetErr(buf)
			cmd.SetArgs(append([]string{tmpDir}, tt.args...))

			err := cmd.Execute()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)

			for _, f := range tt.wantFiles {
				_, err := os.Stat(filepath.Join(tmpDir, f))
				assert.False(t, os.IsNotExist(err), "expected file/dir %q to exist", f)
			}
		})
	}
}

func TestInitCommandMetadata(t *testing.T) {
	cmd := NewInitCommand()

	assert.Equal(t, "init [directory]", cmd.Use)
	assert.NotEmpty(t, cmd.Short)
	assert.NotNil(t, cmd.Flags().Lookup("force"))
}

func TestInit_KeepsExistingFiles(t *testing.T) {
	dir := t.TempDir()
	custom := filepath.Join(dir, "templates", "hello.html")
	require.NoError(t, os.MkdirAll(filepath.Dir(custom), 0750))
	require.NoError(t, os.WriteFile(custom, []byte("mine"), 0600))

	require.NoError(t, copyScaffold("minimal", dir, false))

	data, err := os.ReadFile(custom)
	require.NoError(t, err)
	assert.Equal(t, "mine", string(data))
}

func TestListScaffoldFiles(t *testing.T) {
	files, err := listScaffoldFiles("minimal")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{
		".gitignore",
		"functions/text.star",
		"quill.yaml",
		"templates/hello.html",
	}, files)
}

func TestInit_ScaffoldRenders(t *testing.T) {
	dir := t.TempDir()
	cmd := NewInitCommand()
	cmd.SetOut(new(bytes.Buffer))
	cmd.SetErr(new(bytes.Buffer))
	cmd.SetArgs([]string{dir})
	require.NoError(t, cmd.Execute())

	cfg, err := config.LoadFromDir(dir)
	require.NoError(t, err)
	require.NotNil(t, cfg)
	assert.Equal(t, config.CacheLRU, cfg.Cache.Kind)

	p, err := bootstrap.Open(cfg, nil)
	require.NoError(t, err)
	defer func() { _ = p.Close() }()

	tpl, err := p.Engine.GetTemplate("hello.html")
	require.NoError(t, err)

	out, err := tpl.Render(map[string]any{"name": "world", "count": 2})
	require.NoError(t, err)
	assert.Contains(t, out, "Hello, WORLD!")
	assert.Contains(t, out, "<li>Item 2</li>")
}
