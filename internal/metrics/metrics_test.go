package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountersIncrement(t *testing.T) {
	m := New()

	m.MessageRouted("main_menu")
	m.MessageRouted("main_menu")
	m.StateTransition("idle", "main_menu")
	m.FlowStarted("check_item")
	m.FlowStep("check_item", "category")
	m.FlowCompleted("check_item")
	m.HandlerError("repository")
	m.ItemReported("bicycle")
	m.ItemChecked("bicycle", 0)
	m.ItemChecked("bicycle", 3)
	m.RateLimited()
	m.DuplicateDropped()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.messagesRouted.WithLabelValues("main_menu")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.stateTransitions.WithLabelValues("idle", "main_menu")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.flowsStarted.WithLabelValues("check_item")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.flowSteps.WithLabelValues("check_item", "category")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.flowsCompleted.WithLabelValues("check_item")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.handlerErrors.WithLabelValues("repository")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.itemsReported.WithLabelValues("bicycle")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.itemsChecked.WithLabelValues("bicycle", "match")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.itemsChecked.WithLabelValues("bicycle", "no_match")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.rateLimited))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.duplicates))
}

func TestInstancesDoNotShareState(t *testing.T) {
	a, b := New(), New()
	a.FlowStarted("report_item")
	assert.Equal(t, 0.0, testutil.ToFloat64(b.flowsStarted.WithLabelValues("report_item")))
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New()
	m.ItemReported("phone")

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.True(t, strings.Contains(string(body), `isitstolen_items_reported_total{category="phone"} 1`))
}
