// Package testutil provides shared test fakes.
package testutil

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// StubRunner is a fake git runner. Responses are keyed by the joined
// argument string; per-key queues allow different responses on repeated
// calls, with an optional default fallback.
type StubRunner struct {
	mu       sync.Mutex
	stubs    map[string][]stubResponse
	defaults map[string]stubResponse
	calls    []string
}

type stubResponse struct {
	out string
	err error
}

// NewStubRunner creates an empty stub runner.
func NewStubRunner() *StubRunner {
	return &StubRunner{
		stubs:    make(map[string][]stubResponse),
		defaults: make(map[string]stubResponse),
	}
}

// Stub queues a response for an exact argument string.
func (s *StubRunner) Stub(args string, out string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stubs[args] = append(s.stubs[args], stubResponse{out: out, err: err})
}

// StubDefault sets a fallback response for an argument string.
func (s *StubRunner) StubDefault(args string, out string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.defaults[args] = stubResponse{out: out, err: err}
}

// Exec implements git.Runner.
func (s *StubRunner) Exec(ctx context.Context, dir string, args ...string) (string, error) {
	key := strings.Join(args, " ")
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls = append(s.calls, key)
	queue := s.stubs[key]
	if len(queue) > 0 {
		resp := queue[0]
		s.stubs[key] = queue[1:]
		return resp.out, resp.err
	}
	if resp, ok := s.defaults[key]; ok {
		return resp.out, resp.err
	}
	// Unstubbed commands succeed with empty output, so tests only need to
	// stub the calls they care about.
	return "", nil
}

// Calls returns the argument strings seen so far, in order.
func (s *StubRunner) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.calls))
	copy(out, s.calls)
	return out
}

// CalledWith reports whether any call's arguments contain the substring.
func (s *StubRunner) CalledWith(substr string) bool {
	for _, call := range s.Calls() {
		if strings.Contains(call, substr) {
			return true
		}
	}
	return false
}

// FailWith returns an error resembling a git failure for stub responses.
func FailWith(args, stderr string) error {
	return fmt.Errorf("git %s failed: exit status 1\nstderr: %s", args, stderr)
}
