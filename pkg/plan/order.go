package plan

import (
	"github.com/odrift/odrift/pkg/rpc"
)

// orderOperations partitions operations into creates, updates, and deletes,
// in that order, then topologically sorts each partition so every dependency
// precedes its dependents. Cross-partition dependencies (an update referring
// to a create) are satisfied by the partition order itself.
//
// Validation has already rejected cycles by the time this runs, but the sort
// still reports one if it cannot make progress.
func orderOperations(ops []Operation) ([]Operation, error) {
	var creates, updates, deletes []Operation
	for _, op := range ops {
		switch op.Type {
		case OpCreate:
			creates = append(creates, op)
		case OpUpdate:
			updates = append(updates, op)
		case OpDelete:
			deletes = append(deletes, op)
		}
	}

	ordered := make([]Operation, 0, len(ops))
	for _, partition := range [][]Operation{creates, updates, deletes} {
		sorted, err := topoSort(partition)
		if err != nil {
			return nil, err
		}
		ordered = append(ordered, sorted...)
	}
	return ordered, nil
}

// topoSort is Kahn's algorithm over one partition, considering only
// dependencies that resolve inside it. The input order is preserved among
// operations whose dependencies do not force otherwise.
func topoSort(ops []Operation) ([]Operation, error) {
	if len(ops) <= 1 {
		return ops, nil
	}

	index := make(map[string]int, len(ops))
	for i := range ops {
		index[ops[i].ID] = i
	}

	inDegree := make([]int, len(ops))
	dependents := make([][]int, len(ops))
	for i := range ops {
		for _, dep := range ops[i].Dependencies {
			j, inPartition := index[dep]
			if !inPartition {
				continue
			}
			dependents[j] = append(dependents[j], i)
			inDegree[i]++
		}
	}

	// Ready queue seeded in input order keeps the sort stable.
	var queue []int
	for i := range ops {
		if inDegree[i] == 0 {
			queue = append(queue, i)
		}
	}

	sorted := make([]Operation, 0, len(ops))
	for len(queue) > 0 {
		i := queue[0]
		queue = queue[1:]
		sorted = append(sorted, ops[i])
		for _, dependent := range dependents[i] {
			inDegree[dependent]--
			if inDegree[dependent] == 0 {
				queue = append(queue, dependent)
			}
		}
	}

	if len(sorted) != len(ops) {
		return nil, rpc.NewValidationError("dependency cycle prevented operation ordering").WithCode(rpc.ErrCodeCycle)
	}
	return sorted, nil
}
