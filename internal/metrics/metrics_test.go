package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestRegister_Idempotent(t *testing.T) {
	reg := prometheus.NewRegistry()
	require.NoError(t, Register(reg))
	require.NoError(t, Register(reg))

	ChallengesSent.WithLabelValues("sms", "ok").Inc()
	require.Equal(t, 1.0, testutil.ToFloat64(ChallengesSent.WithLabelValues("sms", "ok")))
}
