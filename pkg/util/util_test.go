package util

import (
	"errors"
	"runtime"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConcurrencyLimit(t *testing.T) {
	var c ConcurrencyLimit
	assert.Equal(t, "auto", c.String())

	require.NoError(t, c.Set("4"))
	assert.Equal(t, ConcurrencyLimit(4), c)

	require.NoError(t, c.Set("auto"))
	assert.Equal(t, ConcurrencyLimit(runtime.GOMAXPROCS(-1)), c)

	require.NoError(t, c.Set("-3"))
	assert.Equal(t, ConcurrencyLimit(1), c)

	require.ErrorContains(t, c.Set("many"), "auto or a number of workers")

	assert.Equal(t, runtime.GOMAXPROCS(-1), ConcurrencyLimit(0).Workers())
	assert.Equal(t, 3, ConcurrencyLimit(3).Workers())
}

func TestRecoverPanic(t *testing.T) {
	err := RecoverPanic(func() error { panic("boom") })()
	var p *PanicError
	require.True(t, errors.As(err, &p))
	assert.Equal(t, "boom", p.Value)

	sentinel := errors.New("plain")
	assert.Equal(t, sentinel, RecoverPanic(func() error { return sentinel })())
}

func TestRegisterOrGet(t *testing.T) {
	reg := prometheus.NewRegistry()
	opts := prometheus.CounterOpts{Name: "things_total", Help: "things"}
	a := RegisterOrGet(reg, prometheus.NewCounter(opts))
	b := RegisterOrGet(reg, prometheus.NewCounter(opts))
	assert.Same(t, a, b)

	assert.NotNil(t, RegisterOrGet(nil, prometheus.NewCounter(opts)))
}
