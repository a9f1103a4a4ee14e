package deploy

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/compose-network/fuse-deployer/internal/contracts"
	"github.com/compose-network/fuse-deployer/internal/evm"
	"github.com/ethereum/go-ethereum/common"
)

var ErrUnresolved = errors.New("deployment not resolved")

type (
	// Step deploys one named contract. Args and Init only see the records of
	// the steps listed in DependsOn.
	Step struct {
		Name          string
		Contract      contracts.Name
		DependsOn     []string
		Deterministic bool
		Args          func(deps Deployments) ([]byte, error)
		Init          func(ctx context.Context, env Env) error
	}

	// Env is what an initializer runs with.
	Env struct {
		Client      *evm.Client
		Address     common.Address
		Deployments Deployments
	}

	// Plan is an ordered set of steps. Declaration order breaks ties between
	// steps that do not depend on each other.
	Plan struct {
		Steps []Step
	}
)

// Sort returns the steps in dependency order. Unknown dependencies, cycles and
// duplicate names fail before anything is deployed.
func (p Plan) Sort() ([]Step, error) {
	index := make(map[string]int, len(p.Steps))
	for i, step := range p.Steps {
		if step.Name == "" {
			return nil, fmt.Errorf("step %d has no name", i)
		}
		if _, ok := index[step.Name]; ok {
			return nil, fmt.Errorf("duplicate step %q", step.Name)
		}
		index[step.Name] = i
	}

	indegree := make([]int, len(p.Steps))
	dependents := make([][]int, len(p.Steps))
	for i, step := range p.Steps {
		for _, dep := range step.DependsOn {
			j, ok := index[dep]
			if !ok {
				return nil, fmt.Errorf("step %q depends on %q: %w", step.Name, dep, ErrUnresolved)
			}
			indegree[i]++
			dependents[j] = append(dependents[j], i)
		}
	}

	sorted := make([]Step, 0, len(p.Steps))
	done := make([]bool, len(p.Steps))
	for len(sorted) < len(p.Steps) {
		next := -1
		for i := range p.Steps {
			if !done[i] && indegree[i] == 0 {
				next = i
				break
			}
		}
		if next < 0 {
			return nil, fmt.Errorf("dependency cycle between steps: %s", strings.Join(p.pending(done), ", "))
		}

		done[next] = true
		sorted = append(sorted, p.Steps[next])
		for _, dependent := range dependents[next] {
			indegree[dependent]--
		}
	}

	return sorted, nil
}

func (p Plan) pending(done []bool) []string {
	var names []string
	for i, step := range p.Steps {
		if !done[i] {
			names = append(names, step.Name)
		}
	}
	return names
}

// Names lists the step names in declaration order.
func (p Plan) Names() []string {
	names := make([]string, len(p.Steps))
	for i, step := range p.Steps {
		names[i] = step.Name
	}
	return names
}

// Contracts lists the distinct artifacts the plan needs.
func (p Plan) Contracts() []contracts.Name {
	seen := make(map[contracts.Name]struct{})
	var names []contracts.Name
	for _, step := range p.Steps {
		if _, ok := seen[step.Contract]; ok {
			continue
		}
		seen[step.Contract] = struct{}{}
		names = append(names, step.Contract)
	}
	return names
}
