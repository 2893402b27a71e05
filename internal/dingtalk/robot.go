package dingtalk

import (
	"context"
	"fmt"
	"net/http"

	"github.com/lalithlochan/courier/internal/circuitbreaker"
)

// Robot posts messages to group chatbot webhooks.
type Robot struct {
	doer circuitbreaker.HTTPDoer
}

func NewRobot(doer circuitbreaker.HTTPDoer) *Robot {
	return &Robot{doer: doer}
}

// Send posts payload to webhook. Non-2xx statuses and non-zero errcodes
// are errors.
func (r *Robot) Send(ctx context.Context, webhook string, payload any) error {
	var out oapiResponse
	status, err := doJSON(ctx, r.doer, http.MethodPost, webhook, nil, payload, &out)
	if err != nil {
		return fmt.Errorf("chatbot webhook: %w", err)
	}
	if status < 200 || status >= 300 {
		return fmt.Errorf("chatbot webhook: unexpected status %d", status)
	}
	if err := out.err(); err != nil {
		return fmt.Errorf("chatbot webhook: %w", err)
	}
	return nil
}
