package device

import (
	"context"
	"fmt"
	"sync"
)

// StubExecutor answers commands by their exact CommandString. It is meant for
// tests.
type StubExecutor struct {
	mu        sync.Mutex
	responses map[string][]*Result
	errs      map[string]error
	calls     []string
}

// NewStubExecutor returns an executor with no responses.
func NewStubExecutor() *StubExecutor {
	return &StubExecutor{responses: map[string][]*Result{}, errs: map[string]error{}}
}

// RespondTo queues a successful response with the given stdout. Queued
// responses are consumed in order; the last one repeats.
func (s *StubExecutor) RespondTo(command, stdout string) *StubExecutor {
	return s.RespondWith(command, &Result{Stdout: stdout})
}

// RespondWith queues a full result for command.
func (s *StubExecutor) RespondWith(command string, res *Result) *StubExecutor {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responses[command] = append(s.responses[command], res)
	return s
}

// FailWith makes command fail to run with err.
func (s *StubExecutor) FailWith(command string, err error) *StubExecutor {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errs[command] = err
	return s
}

// Calls returns the command strings executed so far.
func (s *StubExecutor) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

func (s *StubExecutor) Execute(ctx context.Context, cmd Command) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	key := cmd.CommandString()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, key)
	if err, ok := s.errs[key]; ok {
		return nil, err
	}
	queue := s.responses[key]
	if len(queue) == 0 {
		return nil, fmt.Errorf("stub: unexpected command %q", key)
	}
	res := *queue[0]
	if len(queue) > 1 {
		s.responses[key] = queue[1:]
	}
	return &res, nil
}
