package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skolmuirgheasa/resquared-automation/config"
)

func TestNewBrowserBackend(t *testing.T) {
	for _, driver := range []string{"", "rod", "chromedp"} {
		b, err := newBrowserBackend(&config.BrowserConfig{Driver: driver, Headless: true})
		require.NoError(t, err, driver)
		assert.False(t, b.IsRunning())
	}

	_, err := newBrowserBackend(&config.BrowserConfig{Driver: "webkit"})
	assert.ErrorContains(t, err, "unsupported browser driver")
}

func TestSnapshotCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "page.html")
	require.NoError(t, os.WriteFile(path, []byte(`<body><a href="/lists">Lists</a><div style="display:none"><button>Hidden</button></div></body>`), 0o644))

	cmd := newSnapshotCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs([]string{path})
	require.NoError(t, cmd.Execute())

	assert.Contains(t, out.String(), "Lists")
	assert.NotContains(t, out.String(), "Hidden")
	assert.Contains(t, errOut.String(), "1 interactive elements")
}

func TestVersionCommand(t *testing.T) {
	cmd := newVersionCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "Version: "+Version)
}
