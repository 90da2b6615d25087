package course

import (
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/systemshift/coursefs/internal/dag"
)

var (
	// operationsTotal counts repository operations by name and outcome.
	operationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "coursefs_operations_total",
		Help: "Repository operations by operation and result",
	}, []string{"operation", "result"})

	// mutationPathDepth tracks how many ancestors a tree mutation rebuilds.
	mutationPathDepth = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "coursefs_mutation_path_depth",
		Help:    "Length of the path passed to node mutations",
		Buckets: []float64{1, 2, 3, 4, 6, 8, 12, 16, 32},
	})
)

func observe(op string, err error) {
	operationsTotal.WithLabelValues(op, resultLabel(err)).Inc()
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, dag.ErrConflict):
		return "conflict"
	case errors.Is(err, dag.ErrBrokenPath):
		return "broken_path"
	case errors.Is(err, dag.ErrNotFound):
		return "not_found"
	case errors.Is(err, dag.ErrDuplicateBranch), errors.Is(err, dag.ErrDuplicateCourse):
		return "duplicate"
	case errors.Is(err, dag.ErrInvalidNode):
		return "invalid"
	}
	return "error"
}
