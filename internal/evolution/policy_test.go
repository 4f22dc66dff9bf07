package evolution

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultPolicyMatchesSpecDefaults(t *testing.T) {
	p := DefaultPolicy()
	assert.Equal(t, 5, p.MaxFiles)
	assert.True(t, p.MustSimulate)
	assert.ElementsMatch(t, []string{"identity", "economy", "canon"}, p.ForbiddenDomains)
	assert.Equal(t, 3, p.AutoFreezeThreshold)
	assert.NotEmpty(t, p.ScanRules)
}

func TestLoadPolicyFallsBackWhenPathEmpty(t *testing.T) {
	p, err := LoadPolicy("")
	require.NoError(t, err)
	assert.Equal(t, DefaultPolicy().MaxFiles, p.MaxFiles)
}

func TestLoadPolicyFallsBackWhenFileMissing(t *testing.T) {
	p, err := LoadPolicy(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultPolicy().MaxFiles, p.MaxFiles)
}

func TestLoadPolicyOverridesFromYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte("max_files: 1\nauto_freeze_threshold: 1\n"), 0o644))

	p, err := LoadPolicy(path)
	require.NoError(t, err)
	assert.Equal(t, 1, p.MaxFiles)
	assert.Equal(t, 1, p.AutoFreezeThreshold)
	assert.NotEmpty(t, p.ScanRules, "missing scan_rules in override falls back to defaults")
}
