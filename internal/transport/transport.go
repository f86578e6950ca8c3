// Package transport defines how a single message reaches a recipient.
package transport

import (
	"context"

	"github.com/unclebandit/outreach-dispatch/internal/model"
)

// Result is the outcome of a send the platform answered. A returned error
// from Send means the call itself failed and no answer was received.
type Result struct {
	delivered bool
	reason    string
}

func Delivered() Result { return Result{delivered: true} }

func Rejected(reason string) Result {
	if reason == "" {
		reason = "unknown error"
	}
	return Result{reason: reason}
}

func (r Result) OK() bool       { return r.delivered }
func (r Result) Reason() string { return r.reason }

type Transport interface {
	Send(ctx context.Context, account model.SenderAccount, contact model.Contact, text string) (Result, error)
}

// Func adapts a plain function to Transport.
type Func func(ctx context.Context, account model.SenderAccount, contact model.Contact, text string) (Result, error)

func (f Func) Send(ctx context.Context, account model.SenderAccount, contact model.Contact, text string) (Result, error) {
	return f(ctx, account, contact, text)
}
