package elfcontext

import (
	"bytes"
	"context"
	"testing"

	"github.com/go-kit/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapTree(t *testing.T) {
	var buf bytes.Buffer
	ctx := WithLogger(context.Background(), log.NewLogfmtLogger(&buf))
	ctx = WrapTree(ctx, "old")

	require.NoError(t, Logger(ctx).Log("msg", "hello"))
	assert.Equal(t, "tree=old msg=hello\n", buf.String())
}

func TestRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	ctx := WithRegistry(context.Background(), reg)

	c := prometheus.NewCounter(prometheus.CounterOpts{Name: "files_total", Help: "files"})
	Registry(ctx).MustRegister(c)
	c.Inc()
	n, err := testutil.GatherAndCount(reg, "files_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestDefaults(t *testing.T) {
	assert.NotNil(t, Logger(context.Background()))
	assert.NotNil(t, Registry(context.Background()))
}
