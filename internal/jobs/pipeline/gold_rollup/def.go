package gold_rollup

import (
	"fmt"

	"github.com/yungbote/marketlake/internal/etl"
	"github.com/yungbote/marketlake/internal/platform/logger"
)

// Pipeline runs one gold rollup. The three gold jobs share it and differ
// only in the rollup they carry.
type Pipeline struct {
	log    *logger.Logger
	etl    *etl.Transformer
	rollup etl.Rollup
	window int
}

func New(baseLog *logger.Logger, t *etl.Transformer, job string, window int) (*Pipeline, error) {
	r, ok := etl.RollupFor(job)
	if !ok {
		return nil, fmt.Errorf("no gold rollup named %q", job)
	}
	return &Pipeline{
		log:    baseLog.With("job", job),
		etl:    t,
		rollup: r,
		window: window,
	}, nil
}

func (p *Pipeline) Type() string { return p.rollup.Job }
