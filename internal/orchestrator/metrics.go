package orchestrator

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// stepsTotal counts evolution steps by engine path
	stepsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pattern_memory_steps_total",
		Help: "Evolution steps by engine path",
	}, []string{"path"})

	// nodesTotal counts memory graph writes by result (created, merged)
	nodesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pattern_memory_nodes_total",
		Help: "Memory nodes created or merged",
	}, []string{"result"})

	achievementsUnlocked = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pattern_memory_achievements_unlocked_total",
		Help: "Achievements unlocked by code",
	}, []string{"code"})

	// persistFailures counts swallowed persistence errors by operation
	persistFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pattern_memory_persist_failures_total",
		Help: "Best-effort persistence failures by operation",
	}, []string{"op"})
)
