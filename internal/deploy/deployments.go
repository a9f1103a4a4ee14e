package deploy

import (
	"fmt"
	"maps"
	"slices"

	"github.com/compose-network/fuse-deployer/internal/deploy/store"
	"github.com/ethereum/go-ethereum/common"
)

// Deployments are the records produced by a run, keyed by step name.
type Deployments map[string]store.Record

// Address returns the deployed address of a step.
func (d Deployments) Address(name string) (common.Address, error) {
	record, ok := d[name]
	if !ok {
		return common.Address{}, fmt.Errorf("%w: %s", ErrUnresolved, name)
	}
	return record.Address, nil
}

// Addresses returns every deployed address keyed by step name.
func (d Deployments) Addresses() map[string]common.Address {
	out := make(map[string]common.Address, len(d))
	for name, record := range d {
		out[name] = record.Address
	}
	return out
}

// Names returns the step names, sorted.
func (d Deployments) Names() []string {
	return slices.Sorted(maps.Keys(d))
}

// restrict returns the subset of records a step declared as dependencies.
func (d Deployments) restrict(names []string) Deployments {
	out := make(Deployments, len(names))
	for _, name := range names {
		if record, ok := d[name]; ok {
			out[name] = record
		}
	}
	return out
}
