package dispatch

import (
	"context"
	"fmt"
	"reflect"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/taskgate/taskgate/model"
)

type echoInput struct {
	Message string
	Count   string
}

type echoHandler struct {
	executed bool
	input    *echoInput
	err      error
	delay    time.Duration
	timeout  time.Duration
}

func (h *echoHandler) Name() string { return "echo" }

func (h *echoHandler) Signature() Signature {
	return Signature{Name: "echo", Input: reflect.TypeOf(&echoInput{})}
}

func (h *echoHandler) Timeout() time.Duration { return h.timeout }

func (h *echoHandler) Execute(ctx context.Context, in interface{}) error {
	if h.delay > 0 {
		select {
		case <-time.After(h.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	h.executed = true
	h.input, _ = in.(*echoInput)
	return h.err
}

func TestExecuteRoutesByType(t *testing.T) {
	handler := &echoHandler{}
	dispatcher := New()
	dispatcher.Register(handler)

	task := &model.Task{
		ID:   "ECHO_1",
		Type: "Echo",
		Body: "Message: hello there\nCount: 2",
	}
	outcome := dispatcher.Execute(context.Background(), task)
	assert.True(t, outcome.Success)
	assert.True(t, handler.executed)
	assert.Equal(t, "hello there", handler.input.Message)
	assert.Equal(t, "2", handler.input.Count)
}

func TestExecutePayloadOverridesBody(t *testing.T) {
	handler := &echoHandler{}
	dispatcher := New()
	dispatcher.Register(handler)

	task := &model.Task{
		ID:      "ECHO_2",
		Type:    "echo",
		Body:    "Message: from body",
		Payload: map[string]interface{}{"message": "from payload"},
	}
	outcome := dispatcher.Execute(context.Background(), task)
	assert.True(t, outcome.Success)
	assert.Equal(t, "from payload", handler.input.Message)
}

func TestExecuteFallback(t *testing.T) {
	fallback := &echoHandler{}
	dispatcher := New(WithFallback(fallback))

	outcome := dispatcher.Execute(context.Background(), &model.Task{ID: "X", Type: "unknown"})
	assert.True(t, outcome.Success)
	assert.True(t, fallback.executed)

	bare := New()
	outcome = bare.Execute(context.Background(), &model.Task{ID: "X", Type: "unknown"})
	assert.False(t, outcome.Success)
}

func TestExecuteHandlerFailure(t *testing.T) {
	handler := &echoHandler{err: fmt.Errorf("smtp unreachable")}
	dispatcher := New()
	dispatcher.Register(handler)

	outcome := dispatcher.Execute(context.Background(), &model.Task{ID: "E", Type: "echo", Body: "Message: x"})
	assert.False(t, outcome.Success)
	assert.Contains(t, outcome.Reason, "echo")
	assert.Contains(t, outcome.Reason, "smtp unreachable")
}

func TestExecuteTimeout(t *testing.T) {
	handler := &echoHandler{delay: 200 * time.Millisecond, timeout: 20 * time.Millisecond}
	dispatcher := New()
	dispatcher.Register(handler)

	outcome := dispatcher.Execute(context.Background(), &model.Task{ID: "S", Type: "echo", Body: "Message: slow"})
	assert.False(t, outcome.Success)
	assert.Equal(t, "timeout", outcome.Reason)
}

func TestFields(t *testing.T) {
	body := `---
# A comment line
To: ops@example.com
Subject: weekly report
Body: first line
second line
Amount_due: 42
`
	values := Fields(body)
	assert.Equal(t, "ops@example.com", values["To"])
	assert.Equal(t, "weekly report", values["Subject"])
	assert.Equal(t, "first line\nsecond line", values["Body"])
	assert.Equal(t, "42", values["AmountDue"])
	_, ok := values["#"]
	assert.False(t, ok)
}
