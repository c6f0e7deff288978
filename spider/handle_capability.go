package spider

// FetchContext is the capability callbacks receive instead of the full
// Scheduler, per the design note "Cyclic references": the Scheduler↔Session↔
// Handle graph stays a DAG because callbacks can only Enqueue/Close, never
// reach back into scheduler internals.
type FetchContext struct {
	enqueue func(*Request)
	close   func(reason string)
}

// Enqueue submits a derived Request for dispatch.
func (c *FetchContext) Enqueue(r *Request) {
	if c != nil && c.enqueue != nil {
		c.enqueue(r)
	}
}

// Close stops the owning spider from admitting further work.
func (c *FetchContext) Close(reason string) {
	if c != nil && c.close != nil {
		c.close(reason)
	}
}
