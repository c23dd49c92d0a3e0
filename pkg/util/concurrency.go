package util

import (
	"fmt"
	"runtime"
	"strconv"

	_ "go.uber.org/automaxprocs"
)

// ConcurrencyLimit is the number of binaries parsed in parallel. The zero
// value means GOMAXPROCS, which automaxprocs aligns with the container CPU
// quota. It can be set from a flag or from YAML ("auto" or a count).
type ConcurrencyLimit int

// Workers resolves the limit to the size of the parse worker pool.
func (c ConcurrencyLimit) Workers() int {
	if c < 1 {
		return runtime.GOMAXPROCS(-1)
	}
	return int(c)
}

func (c *ConcurrencyLimit) String() string {
	if *c == 0 {
		return "auto"
	}
	return strconv.Itoa(int(*c))
}

// Set parses "auto" (or nothing) as GOMAXPROCS. Counts below one are raised
// to one worker.
func (c *ConcurrencyLimit) Set(v string) error {
	if v == "" || v == "auto" {
		*c = ConcurrencyLimit(runtime.GOMAXPROCS(-1))
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("invalid concurrency %q, expected auto or a number of workers", v)
	}
	*c = ConcurrencyLimit(max(n, 1))
	return nil
}

func (c *ConcurrencyLimit) UnmarshalText(text []byte) error {
	return c.Set(string(text))
}

func (c *ConcurrencyLimit) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}
