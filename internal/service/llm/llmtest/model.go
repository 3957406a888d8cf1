// Package llmtest provides scripted model doubles for tests.
package llmtest

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// ErrUnscripted is returned once a Model runs out of steps.
var ErrUnscripted = errors.New("llmtest: unscripted model call")

// Step is one scripted model answer.
type Step struct {
	Text string
	Err  error
}

// Text scripts a successful reply.
func Text(s string) Step { return Step{Text: s} }

// Fail scripts a failed call.
func Fail(err error) Step { return Step{Err: err} }

// Model replays Steps in order and records every input it sees.
//
// If Gate is set, Generate blocks until Gate yields or the context ends.
// If Entered is set, Generate sends on it before blocking on Gate.
type Model struct {
	Gate    chan struct{}
	Entered chan struct{}

	mu    sync.Mutex
	steps []Step
	calls [][]*schema.Message
}

// NewModel returns a Model that answers with steps.
func NewModel(steps ...Step) *Model {
	return &Model{steps: steps}
}

// Push appends more steps.
func (m *Model) Push(steps ...Step) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.steps = append(m.steps, steps...)
}

func (m *Model) Generate(ctx context.Context, input []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	m.mu.Lock()
	m.calls = append(m.calls, input)
	m.mu.Unlock()

	if m.Entered != nil {
		m.Entered <- struct{}{}
	}
	if m.Gate != nil {
		select {
		case <-m.Gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.steps) == 0 {
		return nil, ErrUnscripted
	}
	step := m.steps[0]
	m.steps = m.steps[1:]
	if step.Err != nil {
		return nil, step.Err
	}
	return schema.AssistantMessage(step.Text, nil), nil
}

func (m *Model) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	msg, err := m.Generate(ctx, input, opts...)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]*schema.Message{msg}), nil
}

// Calls reports how many times the model was invoked.
func (m *Model) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// Call returns the input of the i-th call.
func (m *Model) Call(i int) []*schema.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	if i < 0 || i >= len(m.calls) {
		return nil
	}
	return m.calls[i]
}

// LastPrompt joins the text content of the most recent call.
func (m *Model) LastPrompt() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.calls) == 0 {
		return ""
	}
	var b strings.Builder
	for _, msg := range m.calls[len(m.calls)-1] {
		if msg == nil {
			continue
		}
		b.WriteString(msg.Content)
		for _, part := range msg.MultiContent {
			if part.Type == schema.ChatMessagePartTypeText {
				b.WriteString(part.Text)
			}
		}
	}
	return b.String()
}
