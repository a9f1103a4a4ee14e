package metrics

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeployerMetricsCount(t *testing.T) {
	m := Deployer()
	require.Same(t, m, Deployer())

	before := testutil.ToFloat64(m.transactions.WithLabelValues("deployPool", ResultFailed))
	m.ObserveTransaction("deployPool", false)
	assert.Equal(t, before+1, testutil.ToFloat64(m.transactions.WithLabelValues("deployPool", ResultFailed)))

	before = testutil.ToFloat64(m.simulations.WithLabelValues("unknown", SimulationRejected))
	m.ObserveSimulation("", SimulationRejected)
	assert.Equal(t, before+1, testutil.ToFloat64(m.simulations.WithLabelValues("unknown", SimulationRejected)))

	before = testutil.ToFloat64(m.deployments.WithLabelValues("Comptroller", DeploymentSkipped))
	m.ObserveDeployment("Comptroller", DeploymentSkipped)
	assert.Equal(t, before+1, testutil.ToFloat64(m.deployments.WithLabelValues("Comptroller", DeploymentSkipped)))
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *DeployerMetrics
	m.ObserveTransaction("x", true)
	m.ObserveSimulation("x", SimulationAccepted)
	m.ObserveDeployment("x", DeploymentDeployed)
	m.ObserveRewardRead(false)
}

func TestServeDisabledWithoutListenAddress(t *testing.T) {
	require.NoError(t, Serve(context.Background(), ""))
}
