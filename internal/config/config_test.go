package config

import (
	"strings"
	"testing"
	"time"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("AZURE_STORAGE_ACCOUNT", "odmstore")
	t.Setenv("AZURE_STORAGE_KEY", "key==")
	t.Setenv("AZURE_SHARE_NAME", "odmshare")
	t.Setenv("DOCKER_USERNAME", "bot")
	t.Setenv("DOCKER_PASS", "pw")
	t.Setenv("ACI_RESOURCE_GROUP", "rg-odm")
	t.Setenv("AzureWebJobsStorage", "DefaultEndpointsProtocol=https;AccountName=odmstore;AccountKey=a2V5;EndpointSuffix=core.windows.net")
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.MountPath != "/mnt/odmshare" {
		t.Fatalf("unexpected mount path: %s", cfg.MountPath)
	}
	if cfg.JobImage != "opendronemap/odm" || cfg.JobCPU != 4 || cfg.JobMemoryGB != 8 {
		t.Fatalf("unexpected job defaults: %s %v %v", cfg.JobImage, cfg.JobCPU, cfg.JobMemoryGB)
	}
	if cfg.PollInterval != 10*time.Second || cfg.JobTimeout != 30*time.Minute {
		t.Fatalf("unexpected wait defaults: %s %s", cfg.PollInterval, cfg.JobTimeout)
	}
	if cfg.OutputDir != "odm_orthophoto" || cfg.ResultsContainer != "odm-results" {
		t.Fatalf("unexpected output defaults: %s %s", cfg.OutputDir, cfg.ResultsContainer)
	}
	if cfg.JobCommand != "odm --project-path /datasets" || cfg.JobMountPath != "/datasets/code" {
		t.Fatalf("unexpected command defaults: %q %q", cfg.JobCommand, cfg.JobMountPath)
	}
	if !strings.HasPrefix(cfg.ConnectionString, "DefaultEndpointsProtocol") {
		t.Fatalf("connection string not read from AzureWebJobsStorage: %q", cfg.ConnectionString)
	}
	if cfg.Trigger != "nats" || cfg.LockBackend != "none" || !cfg.InputValidation || !cfg.InboxScan {
		t.Fatalf("unexpected mode defaults: %+v", cfg)
	}
}

func TestLoadOverrides(t *testing.T) {
	setRequired(t)
	t.Setenv("POLL_INTERVAL", "5s")
	t.Setenv("JOB_TIMEOUT", "1h")
	t.Setenv("JOB_CPU", "2.5")
	t.Setenv("MOUNT_PATH", "/data/share")
	t.Setenv("LOCK_BACKEND", "etcd")
	t.Setenv("ETCD_ENDPOINTS", "etcd-0:2379, etcd-1:2379")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.PollInterval != 5*time.Second || cfg.JobTimeout != time.Hour || cfg.JobCPU != 2.5 {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
	if cfg.MountPath != "/data/share" {
		t.Fatalf("unexpected mount path: %s", cfg.MountPath)
	}
	if len(cfg.EtcdEndpoints) != 2 || cfg.EtcdEndpoints[1] != "etcd-1:2379" {
		t.Fatalf("unexpected etcd endpoints: %v", cfg.EtcdEndpoints)
	}
}

func TestLoadMissingRequired(t *testing.T) {
	setRequired(t)
	t.Setenv("DOCKER_PASS", "")
	t.Setenv("ACI_RESOURCE_GROUP", "")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error for missing required settings")
	}
	for _, name := range []string{"DOCKER_PASS", "ACI_RESOURCE_GROUP"} {
		if !strings.Contains(err.Error(), name) {
			t.Fatalf("error does not mention %s: %v", name, err)
		}
	}
}

func TestLoadConnectionStringOnlyForAzblob(t *testing.T) {
	setRequired(t)
	t.Setenv("AzureWebJobsStorage", "")

	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "AzureWebJobsStorage") {
		t.Fatalf("expected AzureWebJobsStorage error, got %v", err)
	}

	t.Setenv("RESULTS_BACKEND", "memory")
	if _, err := Load(); err != nil {
		t.Fatalf("memory backend should not need a connection string: %v", err)
	}
}

func TestLoadRejectsTimeoutShorterThanInterval(t *testing.T) {
	setRequired(t)
	t.Setenv("POLL_INTERVAL", "1m")
	t.Setenv("JOB_TIMEOUT", "30s")

	if _, err := Load(); err == nil {
		t.Fatal("expected error when timeout is not longer than the poll interval")
	}
}
