package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type DeployerMetrics struct {
	transactions *prometheus.CounterVec
	simulations  *prometheus.CounterVec
	deployments  *prometheus.CounterVec
	rewardReads  *prometheus.CounterVec
}

const (
	ResultSuccess = "success"
	ResultFailed  = "failed"

	SimulationAccepted = "accepted"
	SimulationRejected = "rejected"
	SimulationErrored  = "error"

	DeploymentDeployed = "deployed"
	DeploymentSkipped  = "skipped"
)

var (
	deployerOnce     sync.Once
	deployerRegistry *DeployerMetrics
)

func Deployer() *DeployerMetrics {
	deployerOnce.Do(func() {
		deployerRegistry = &DeployerMetrics{
			transactions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "fuse_deployer_transactions_total",
				Help: "Transactions mined per operation and receipt result.",
			}, []string{"operation", "result"}),
			simulations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "fuse_deployer_simulations_total",
				Help: "Dry-run guard outcomes per operation.",
			}, []string{"operation", "result"}),
			deployments: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "fuse_deployer_deployments_total",
				Help: "Orchestrator steps per contract and outcome.",
			}, []string{"contract", "outcome"}),
			rewardReads: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "fuse_deployer_reward_reads_total",
				Help: "Per-pool reward aggregation reads by result.",
			}, []string{"result"}),
		}
		prometheus.MustRegister(
			deployerRegistry.transactions,
			deployerRegistry.simulations,
			deployerRegistry.deployments,
			deployerRegistry.rewardReads,
		)
	})
	return deployerRegistry
}

func (m *DeployerMetrics) ObserveTransaction(operation string, ok bool) {
	if m == nil {
		return
	}
	m.transactions.WithLabelValues(orUnknown(operation), result(ok)).Inc()
}

func (m *DeployerMetrics) ObserveSimulation(operation, outcome string) {
	if m == nil {
		return
	}
	m.simulations.WithLabelValues(orUnknown(operation), orUnknown(outcome)).Inc()
}

func (m *DeployerMetrics) ObserveDeployment(contract, outcome string) {
	if m == nil {
		return
	}
	m.deployments.WithLabelValues(orUnknown(contract), orUnknown(outcome)).Inc()
}

func (m *DeployerMetrics) ObserveRewardRead(ok bool) {
	if m == nil {
		return
	}
	m.rewardReads.WithLabelValues(result(ok)).Inc()
}

// Serve exposes the default registry on listen until ctx is done. An empty
// listen address disables the endpoint.
func Serve(ctx context.Context, listen string) error {
	if listen == "" {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: listen, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("metrics endpoint on %s failed: %w", listen, err)
	}
}

func result(ok bool) string {
	if ok {
		return ResultSuccess
	}
	return ResultFailed
}

func orUnknown(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
