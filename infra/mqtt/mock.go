package mqtt

import (
	"context"
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/battswap/boothd/core/model"
)

// MockTransport records commands instead of publishing them. Used by tests
// and by the simulator.
type MockTransport struct {
	mu       sync.Mutex
	commands map[model.SlotRef][]model.Command
	FailRefs map[model.SlotRef]error
}

// NewMockTransport creates an empty MockTransport.
func NewMockTransport() *MockTransport {
	return &MockTransport{
		commands: make(map[model.SlotRef][]model.Command),
		FailRefs: make(map[model.SlotRef]error),
	}
}

// Fail makes SendCommand fail for ref with the given error.
func (m *MockTransport) Fail(ref model.SlotRef, err error) {
	m.mu.Lock()
	m.FailRefs[ref] = err
	m.mu.Unlock()
}

func (m *MockTransport) SendCommand(_ context.Context, ref model.SlotRef, cmd model.Command) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err, ok := m.FailRefs[ref]; ok {
		return errors.Wrapf(err, "mock transport %s", ref)
	}
	m.commands[ref] = append(m.commands[ref], cmd)
	return nil
}

// Commands returns the commands recorded for ref.
func (m *MockTransport) Commands(ref model.SlotRef) []model.Command {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Command, len(m.commands[ref]))
	copy(out, m.commands[ref])
	return out
}

// LastCommand returns the most recent command recorded for ref.
func (m *MockTransport) LastCommand(ref model.SlotRef) (model.Command, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cmds := m.commands[ref]
	if len(cmds) == 0 {
		return model.Command{}, false
	}
	return cmds[len(cmds)-1], true
}
