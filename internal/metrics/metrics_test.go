package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestObserveStrategyHitCounts(t *testing.T) {
	Init()
	before := testutil.ToFloat64(extractStrategyHitsTotal.WithLabelValues("graph"))
	ObserveStrategyHit("graph")
	ObserveStrategyHit("graph")
	assert.Equal(t, before+2, testutil.ToFloat64(extractStrategyHitsTotal.WithLabelValues("graph")))
}

func TestObserveSessionTransitionCounts(t *testing.T) {
	Init()
	before := testutil.ToFloat64(sessionTransitionsTotal.WithLabelValues("authenticated"))
	ObserveSessionTransition("authenticated")
	assert.Equal(t, before+1, testutil.ToFloat64(sessionTransitionsTotal.WithLabelValues("authenticated")))
}
