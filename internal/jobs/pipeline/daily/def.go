package daily

import (
	"fmt"

	"github.com/yungbote/marketlake/internal/domain/pipeline"
	"github.com/yungbote/marketlake/internal/executor"
	"github.com/yungbote/marketlake/internal/jobs/orchestrator"
	"github.com/yungbote/marketlake/internal/platform/logger"
)

// TaskNames lists the graph's tasks in flow order.
var TaskNames = []string{
	pipeline.JobRawDownloadCategories,
	pipeline.JobBronzeCategories,
	pipeline.JobRawDownloadProductCategory,
	pipeline.JobBronzeProducts,
	pipeline.JobSilverProducts,
	pipeline.JobGoldCategories,
	pipeline.JobGoldLocations,
	pipeline.JobGoldProducts,
}

// Pipeline is the daily materialization graph. Light tasks go through the
// invoker; bronze products goes through the polled executor.
type Pipeline struct {
	log     *logger.Logger
	engine  *orchestrator.Engine
	invoker executor.Invoker
	poller  executor.Poller
	cfg     Config
}

func New(baseLog *logger.Logger, engine *orchestrator.Engine, invoker executor.Invoker, poller executor.Poller, cfg Config) (*Pipeline, error) {
	if engine == nil || invoker == nil || poller == nil {
		return nil, fmt.Errorf("daily pipeline missing deps")
	}
	if baseLog == nil {
		baseLog = logger.Nop()
	}
	return &Pipeline{
		log:     baseLog.With("pipeline", "daily"),
		engine:  engine,
		invoker: invoker,
		poller:  poller,
		cfg:     cfg,
	}, nil
}

func (p *Pipeline) Type() string { return "daily" }
