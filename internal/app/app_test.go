package app

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/yungbote/marketlake/internal/data/repos"
	"github.com/yungbote/marketlake/internal/data/repos/testutil"
	"github.com/yungbote/marketlake/internal/jobs/pipeline/daily"
	"github.com/yungbote/marketlake/internal/objectstore"
	"github.com/yungbote/marketlake/internal/platform/gcp"
	"github.com/yungbote/marketlake/internal/platform/logger"
)

func TestLoadConfigLocalDefaults(t *testing.T) {
	t.Setenv("OBJECT_STORAGE_MODE", "local")
	t.Setenv("LAKE_LOCAL_ROOT", t.TempDir())
	t.Setenv("JOB_RUNNER_URL", "")
	t.Setenv("JOB_RUNNER_TIMEOUT", "90s")
	t.Setenv("PIPELINE_CONFIG_PATH", "")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Storage.Mode != gcp.ObjectStorageModeLocal {
		t.Fatalf("storage mode: want=%q got=%q", gcp.ObjectStorageModeLocal, cfg.Storage.Mode)
	}
	if cfg.JobRunnerTimeout != 90*time.Second {
		t.Fatalf("job runner timeout: want=%s got=%s", 90*time.Second, cfg.JobRunnerTimeout)
	}
	if cfg.Pipeline.GoldWindowDays != daily.DefaultConfig().GoldWindowDays {
		t.Fatalf("pipeline config: got=%+v", cfg.Pipeline)
	}
}

func TestLoadConfigRejectsBadStorageMode(t *testing.T) {
	t.Setenv("OBJECT_STORAGE_MODE", "s3")
	if _, err := LoadConfig(); err == nil {
		t.Fatalf("LoadConfig: expected error for unsupported storage mode")
	}
}

func TestWireServicesInProcess(t *testing.T) {
	cfg := Config{Pipeline: daily.DefaultConfig()}
	c := Clients{Objects: objectstore.NewMemory()}
	r := repos.New(testutil.DB(t), nil)

	svcs, err := wireServices(context.Background(), logger.Nop(), cfg, c, r, nil)
	if err != nil {
		t.Fatalf("wireServices: %v", err)
	}
	if svcs.Daily == nil || svcs.Runs == nil || svcs.Engine == nil {
		t.Fatalf("services: got=%+v", svcs)
	}
	if svcs.RunEvents != nil || svcs.Hub == nil {
		t.Fatalf("events: want in-process hub and no redis bus, got=%+v", svcs)
	}

	got := svcs.Jobs.Names()
	sort.Strings(got)
	want := append([]string(nil), daily.TaskNames...)
	sort.Strings(want)
	if len(got) != len(want) {
		t.Fatalf("jobs: want=%v got=%v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("jobs: want=%v got=%v", want, got)
		}
	}
}
