package metrics

import (
	"net"
	"time"
)

// MultiConnectionLifecycleHook fans emissions out to several hooks.
type MultiConnectionLifecycleHook []ConnectionLifecycleHook

// MultiConnectionIOHook fans emissions out to several hooks.
type MultiConnectionIOHook []ConnectionIOHook

// MultiWhoisHook fans emissions out to several hooks.
type MultiWhoisHook []WhoisHook

// NewMultiConnectionLifecycleHook combines hooks; a single hook is returned as is and no hooks at
// all yield a noop hook.
func NewMultiConnectionLifecycleHook(hooks ...ConnectionLifecycleHook) ConnectionLifecycleHook {
	switch len(hooks) {
	case 0:
		return NewNoopConnectionLifecycleHook()
	case 1:
		return hooks[0]
	default:
		return MultiConnectionLifecycleHook(hooks)
	}
}

// NewMultiConnectionIOHook combines hooks like NewMultiConnectionLifecycleHook.
func NewMultiConnectionIOHook(hooks ...ConnectionIOHook) ConnectionIOHook {
	switch len(hooks) {
	case 0:
		return NewNoopConnectionIOHook()
	case 1:
		return hooks[0]
	default:
		return MultiConnectionIOHook(hooks)
	}
}

// NewMultiWhoisHook combines hooks like NewMultiConnectionLifecycleHook.
func NewMultiWhoisHook(hooks ...WhoisHook) WhoisHook {
	switch len(hooks) {
	case 0:
		return NewNoopWhoisHook()
	case 1:
		return hooks[0]
	default:
		return MultiWhoisHook(hooks)
	}
}

func (m MultiConnectionLifecycleHook) EmitConnectionOpen(latency time.Duration, addr net.Addr) {
	for _, h := range m {
		h.EmitConnectionOpen(latency, addr)
	}
}

func (m MultiConnectionLifecycleHook) EmitConnectionClose(addr net.Addr) {
	for _, h := range m {
		h.EmitConnectionClose(addr)
	}
}

func (m MultiConnectionLifecycleHook) EmitConnectionError() {
	for _, h := range m {
		h.EmitConnectionError()
	}
}

func (m MultiConnectionIOHook) EmitReadError(addr net.Addr) {
	for _, h := range m {
		h.EmitReadError(addr)
	}
}

func (m MultiConnectionIOHook) EmitWriteError(addr net.Addr) {
	for _, h := range m {
		h.EmitWriteError(addr)
	}
}

func (m MultiConnectionIOHook) EmitTimeout(addr net.Addr) {
	for _, h := range m {
		h.EmitTimeout(addr)
	}
}

func (m MultiWhoisHook) EmitQuery(outcome string, client net.Addr) {
	for _, h := range m {
		h.EmitQuery(outcome, client)
	}
}

func (m MultiWhoisHook) EmitCacheHit() {
	for _, h := range m {
		h.EmitCacheHit()
	}
}

func (m MultiWhoisHook) EmitCacheMiss() {
	for _, h := range m {
		h.EmitCacheMiss()
	}
}

func (m MultiWhoisHook) EmitRecursion(zone string) {
	for _, h := range m {
		h.EmitRecursion(zone)
	}
}

func (m MultiWhoisHook) EmitUpstreamLatency(latency time.Duration, server string) {
	for _, h := range m {
		h.EmitUpstreamLatency(latency, server)
	}
}

func (m MultiWhoisHook) EmitRTT(latency time.Duration, client net.Addr) {
	for _, h := range m {
		h.EmitRTT(latency, client)
	}
}

func (m MultiWhoisHook) EmitResponseSize(bytes int64, client net.Addr) {
	for _, h := range m {
		h.EmitResponseSize(bytes, client)
	}
}

func (m MultiWhoisHook) EmitError() {
	for _, h := range m {
		h.EmitError()
	}
}
