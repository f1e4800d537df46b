// README: Push notification dispatch via FCM; tokens are resolved from user profiles.
package notify

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"firebase.google.com/go/v4/messaging"

	"campusride/internal/modules/profile"
	"campusride/internal/types"
)

const defaultSendTimeout = 10 * time.Second

// Sender is satisfied by *messaging.Client.
type Sender interface {
	Send(ctx context.Context, msg *messaging.Message) (string, error)
}

// Tokens resolves a user's device token.
type Tokens interface {
	Lookup(ctx context.Context, uid types.ID) (*profile.Profile, error)
}

type Notification struct {
	Title string
	Body  string
	Data  map[string]string
}

// Dispatcher sends notifications in the background. Failures are logged and
// never reach the caller.
type Dispatcher struct {
	sender  Sender
	tokens  Tokens
	timeout time.Duration
	wg      sync.WaitGroup
}

func NewDispatcher(sender Sender, tokens Tokens) *Dispatcher {
	return &Dispatcher{sender: sender, tokens: tokens, timeout: defaultSendTimeout}
}

// Notify queues a push to uid. The caller's cancellation does not abort it.
func (d *Dispatcher) Notify(ctx context.Context, uid types.ID, n Notification) {
	if d == nil || d.sender == nil || uid == "" {
		return
	}
	ctx = context.WithoutCancel(ctx)
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		sendCtx, cancel := context.WithTimeout(ctx, d.timeout)
		defer cancel()
		if err := d.send(sendCtx, uid, n); err != nil {
			log.Printf("notify: uid=%s title=%q: %v", uid, n.Title, err)
		}
	}()
}

// Wait blocks until queued sends finish.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) send(ctx context.Context, uid types.ID, n Notification) error {
	p, err := d.tokens.Lookup(ctx, uid)
	if err != nil {
		return fmt.Errorf("resolve token: %w", err)
	}
	if p.FCMToken == "" {
		return nil
	}
	msg := &messaging.Message{
		Token: p.FCMToken,
		Data:  n.Data,
		Notification: &messaging.Notification{
			Title: n.Title,
			Body:  n.Body,
		},
		Android: &messaging.AndroidConfig{
			Priority: "high",
		},
	}
	id, err := d.sender.Send(ctx, msg)
	if err != nil {
		return fmt.Errorf("sending FCM: %w", err)
	}
	log.Printf("FCM sent uid=%s message_id=%s", uid, id)
	return nil
}
