package main

import "fmt"

// DemoRoot is the object exposed to a connecting proxy. Its shape exercises
// every operation kind the bridge supports: plain calls, awaited property
// access, constructed sub-objects, and a callback argument that the server
// invokes repeatedly over its own sub-channel.
type DemoRoot struct {
	Version string
}

// Add is a plain call target: two inline arguments, one inline result.
func (r *DemoRoot) Add(a, b int) int {
	return a + b
}

// Greet returns a string, exercising a single inline string argument.
func (r *DemoRoot) Greet(name string) string {
	return fmt.Sprintf("hello, %s", name)
}

// NewCounter is a construct target: its result is always returned
// wrapped, even though *Counter carries no functions of its own until the
// dispatcher inspects its methods.
func (r *DemoRoot) NewCounter(start int) *Counter {
	return &Counter{value: start}
}

// Counter is the instance a successful Construct("NewCounter", start)
// resolves to on the client as a fresh sub-proxy.
type Counter struct {
	value int
}

// Next advances and returns the counter's value.
func (c *Counter) Next() int {
	c.value++
	return c.value
}

// Value reports the counter's current value without mutating it.
func (c *Counter) Value() int {
	return c.value
}

// Watch calls back into the supplied function three times with
// successive values: the function argument travels wrapped, and the
// dispatcher calls back into the client's proxy for it over a dedicated
// sub-channel.
func (r *DemoRoot) Watch(tick func(n int) int) []int {
	seen := make([]int, 0, 3)
	for i := 1; i <= 3; i++ {
		seen = append(seen, tick(i))
	}
	return seen
}
