package targets

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/smartcontractkit/keeper-registry/pkg/types"
)

// Directory maps addresses to the jobs deployed at them. An address that
// was never deployed to has no code.
type Directory struct {
	mu   sync.RWMutex
	jobs map[common.Address]types.TargetJob
}

func NewDirectory() *Directory {
	return &Directory{
		jobs: make(map[common.Address]types.TargetJob),
	}
}

// Deploy places job at address, replacing anything already there.
func (d *Directory) Deploy(address common.Address, job types.TargetJob) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.jobs[address] = job
}

func (d *Directory) Resolve(address common.Address) (types.TargetJob, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	job, ok := d.jobs[address]

	return job, ok
}
