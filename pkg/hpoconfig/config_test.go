package hpoconfig_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hpoforge/hpo/pkg/hpoconfig"
)

func TestDefaultPassesValidate(t *testing.T) {
	assert.NoError(t, hpoconfig.Default().Validate())
}

func TestValidateRejectsNonPositiveMaxWorkers(t *testing.T) {
	cfg := hpoconfig.Default()
	cfg.Runner.MaxWorkers = 0
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsUnknownSchedulerMode(t *testing.T) {
	cfg := hpoconfig.Default()
	cfg.Scheduler.Mode = "serverless"
	assert.Error(t, cfg.Validate())
}

func TestValidateRequiresManifestPathInK8sMode(t *testing.T) {
	cfg := hpoconfig.Default()
	cfg.Scheduler.Mode = "k8s"
	assert.Error(t, cfg.Validate())

	cfg.Scheduler.K8sManifestPath = "manifest.yaml"
	assert.NoError(t, cfg.Validate())
}

func TestLoadWithMissingExplicitFileErrors(t *testing.T) {
	cfg, err := hpoconfig.Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.Error(t, err) // explicit path that doesn't exist still errors
	assert.Nil(t, cfg)
}

func TestLoadReadsFileOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "hpo.yaml")
	yaml := "runner:\n  max_workers: 8\n  max_retries: 3\nscheduler:\n  mode: k8s\n  k8s_manifest_path: manifest.yml\n"
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	cfg, err := hpoconfig.Load(path)
	require.NoError(t, err)
	assert.Equal(t, 8, cfg.Runner.MaxWorkers)
	assert.Equal(t, 3, cfg.Runner.MaxRetries)
	assert.Equal(t, "k8s", cfg.Scheduler.Mode)
	assert.Equal(t, "manifest.yml", cfg.Scheduler.K8sManifestPath)
}
