// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ipc

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bureau-foundation/switchboard/host"
	"github.com/bureau-foundation/switchboard/lib/codec"
	"github.com/bureau-foundation/switchboard/lib/port"
	"github.com/bureau-foundation/switchboard/lib/testutil"
)

const timeout = 5 * time.Second

type fixture struct {
	registry *host.Registry
	router   *Router
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	registry := host.NewRegistry(nil, nil, nil)
	router := NewRouter(registry, Options{SyncPayloadLimit: 64})
	t.Cleanup(func() {
		router.Close()
		registry.Close()
	})
	return &fixture{registry: registry, router: router}
}

func (f *fixture) renderer(t *testing.T, id string) (*Renderer, *host.View) {
	t.Helper()
	view, err := f.registry.Create(host.ViewConfig{ID: id, URL: "https://app.test/" + id})
	if err != nil {
		t.Fatalf("Create(%s): %v", id, err)
	}
	return NewRenderer(view, f.router), view
}

func decodeString(t *testing.T, raw codec.RawMessage) string {
	t.Helper()
	var value string
	if err := codec.Unmarshal(raw, &value); err != nil {
		t.Fatalf("decoding reply: %v", err)
	}
	return value
}

func TestInvokeStampsSenderAndEncodesReply(t *testing.T) {
	f := newFixture(t)
	f.router.Handle("echo", func(ctx context.Context, event *Event) (any, error) {
		var text string
		if err := event.Args(&text); err != nil {
			return nil, err
		}
		return event.Sender.ID + ":" + text, nil
	})
	renderer, _ := f.renderer(t, "main")

	reply, err := renderer.Invoke(context.Background(), "echo", "hi")
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if got := decodeString(t, reply); got != "main:hi" {
		t.Errorf("reply = %q, want main:hi", got)
	}
}

func TestInvokeErrors(t *testing.T) {
	f := newFixture(t)
	failure := errors.New("handler failed")
	f.router.Handle("fail", func(context.Context, *Event) (any, error) { return nil, failure })
	f.router.Handle("panic", func(context.Context, *Event) (any, error) { panic("boom") })
	renderer, _ := f.renderer(t, "main")

	if _, err := renderer.Invoke(context.Background(), "missing"); !errors.Is(err, ErrNoHandler) {
		t.Errorf("Invoke(missing) = %v, want ErrNoHandler", err)
	}
	if _, err := renderer.Invoke(context.Background(), "fail"); !errors.Is(err, failure) {
		t.Errorf("Invoke(fail) = %v, want wrapped handler error", err)
	}
	if _, err := renderer.Invoke(context.Background(), "panic"); err == nil || !strings.Contains(err.Error(), "panicked") {
		t.Errorf("Invoke(panic) = %v, want panic error", err)
	}
}

func TestInvokeHandlersRunConcurrently(t *testing.T) {
	f := newFixture(t)
	release := make(chan struct{})
	f.router.Handle("slow", func(ctx context.Context, event *Event) (any, error) {
		select {
		case <-release:
			return "slow", nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	})
	f.router.Handle("fast", func(context.Context, *Event) (any, error) { return "fast", nil })
	renderer, _ := f.renderer(t, "main")

	slowReply := make(chan string, 1)
	go func() {
		reply, err := renderer.Invoke(context.Background(), "slow")
		if err != nil {
			slowReply <- "error: " + err.Error()
			return
		}
		var value string
		codec.Unmarshal(reply, &value)
		slowReply <- value
	}()

	reply, err := renderer.Invoke(context.Background(), "fast")
	if err != nil {
		t.Fatalf("Invoke(fast) while slow pending: %v", err)
	}
	if decodeString(t, reply) != "fast" {
		t.Error("fast reply wrong")
	}
	testutil.RequireNoReceive(t, slowReply, 20*time.Millisecond)
	close(release)
	if got := testutil.RequireReceive(t, slowReply, timeout); got != "slow" {
		t.Errorf("slow reply = %q", got)
	}
}

func TestInvokeHonorsCallerContext(t *testing.T) {
	f := newFixture(t)
	f.router.Handle("block", func(ctx context.Context, event *Event) (any, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	renderer, _ := f.renderer(t, "main")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := renderer.Invoke(ctx, "block"); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Invoke = %v, want deadline exceeded", err)
	}
}

func TestDuplicateHandlePanics(t *testing.T) {
	f := newFixture(t)
	f.router.Handle("once", func(context.Context, *Event) (any, error) { return nil, nil })
	defer func() {
		if recover() == nil {
			t.Error("second Handle did not panic")
		}
	}()
	f.router.Handle("once", func(context.Context, *Event) (any, error) { return nil, nil })
}

func TestSendListenersRunInOrder(t *testing.T) {
	f := newFixture(t)
	received := make(chan int, 16)
	var mu sync.Mutex
	var senders []string
	f.router.On("counter-value", func(event *Event) {
		var value int
		event.Args(&value)
		mu.Lock()
		senders = append(senders, event.Sender.ID)
		mu.Unlock()
		received <- value
	})
	renderer, _ := f.renderer(t, "main")

	for value := range 5 {
		if err := renderer.Send("counter-value", value); err != nil {
			t.Fatalf("Send: %v", err)
		}
	}
	for want := range 5 {
		if got := testutil.RequireReceive(t, received, timeout); got != want {
			t.Fatalf("received %d, want %d", got, want)
		}
	}
	mu.Lock()
	defer mu.Unlock()
	for _, sender := range senders {
		if sender != "main" {
			t.Errorf("sender = %q, want main", sender)
		}
	}
}

func TestReplyReachesOnlySender(t *testing.T) {
	f := newFixture(t)
	f.router.On("asynchronous-message", func(event *Event) {
		event.Reply("asynchronous-reply", "pong")
	})
	first, _ := f.renderer(t, "first")
	second, _ := f.renderer(t, "second")

	firstReplies := make(chan string, 1)
	secondReplies := make(chan string, 1)
	first.On("asynchronous-reply", func(message port.Message) {
		var text string
		DecodeArgs(message, &text)
		firstReplies <- text
	})
	second.On("asynchronous-reply", func(message port.Message) { secondReplies <- "unexpected" })

	if err := first.Send("asynchronous-message", "ping"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if got := testutil.RequireReceive(t, firstReplies, timeout); got != "pong" {
		t.Errorf("reply = %q, want pong", got)
	}
	testutil.RequireNoReceive(t, secondReplies, 50*time.Millisecond)
}

func TestSendWithoutListenerClosesPorts(t *testing.T) {
	f := newFixture(t)
	renderer, _ := f.renderer(t, "main")
	local, remote := port.NewChannel()
	closed := make(chan struct{})
	local.OnClose(func() { close(closed) })
	local.Start()

	if err := renderer.PostMessage("nobody", nil, remote); err != nil {
		t.Fatalf("PostMessage: %v", err)
	}
	if !remote.Detached() {
		t.Error("posted endpoint still attached to the sender")
	}
	testutil.RequireClosed(t, closed, timeout)
}

func TestPostMessageTransfersPorts(t *testing.T) {
	f := newFixture(t)
	received := make(chan *Event, 1)
	f.router.On("port", func(event *Event) { received <- event })
	renderer, _ := f.renderer(t, "main")
	_, remote := port.NewChannel()

	if err := renderer.PostMessage("port", "hello", remote); err != nil {
		t.Fatalf("PostMessage: %v", err)
	}
	event := testutil.RequireReceive(t, received, timeout)
	var text string
	if err := event.Args(&text); err != nil || text != "hello" {
		t.Errorf("payload = %q (err %v)", text, err)
	}
	if len(event.Message.Ports) != 1 || event.Message.Ports[0] == remote {
		t.Errorf("event ports = %v, want one fresh handle", event.Message.Ports)
	}
}

func TestSendSync(t *testing.T) {
	f := newFixture(t)
	f.router.HandleSync("synchronous-message", func(event *Event) (any, error) { return "pong", nil })
	renderer, _ := f.renderer(t, "main")

	reply, err := renderer.SendSync("synchronous-message", "ping")
	if err != nil {
		t.Fatalf("SendSync: %v", err)
	}
	if decodeString(t, reply) != "pong" {
		t.Error("sync reply is not pong")
	}

	if _, err := renderer.SendSync("synchronous-message", strings.Repeat("x", 100)); !errors.Is(err, ErrPayloadTooLarge) {
		t.Errorf("oversized SendSync = %v, want ErrPayloadTooLarge", err)
	}
	if _, err := renderer.SendSync("missing"); !errors.Is(err, ErrNoHandler) {
		t.Errorf("SendSync(missing) = %v, want ErrNoHandler", err)
	}
}

func TestPushToMissingContext(t *testing.T) {
	f := newFixture(t)
	if err := f.router.Push("gone", "update-counter", 1); !errors.Is(err, host.ErrTargetUnavailable) {
		t.Errorf("Push(gone) = %v, want ErrTargetUnavailable", err)
	}
}

func TestRendererOff(t *testing.T) {
	f := newFixture(t)
	renderer, _ := f.renderer(t, "main")
	received := make(chan struct{}, 1)
	subscription := renderer.On("update-counter", func(port.Message) { received <- struct{}{} })
	if !renderer.Off(subscription) {
		t.Fatal("Off returned false")
	}
	f.router.Push("main", "update-counter", 1)
	testutil.RequireNoReceive(t, received, 50*time.Millisecond)
}

func TestClosedRouterRejectsCalls(t *testing.T) {
	f := newFixture(t)
	renderer, _ := f.renderer(t, "main")
	f.router.Close()
	if _, err := renderer.Invoke(context.Background(), "anything"); !errors.Is(err, ErrRouterClosed) {
		t.Errorf("Invoke after Close = %v", err)
	}
	if err := renderer.Send("anything"); !errors.Is(err, ErrRouterClosed) {
		t.Errorf("Send after Close = %v", err)
	}
}

func TestDecodeArgs(t *testing.T) {
	message, err := NewMessage([]any{"a", 2})
	if err != nil {
		t.Fatalf("NewMessage: %v", err)
	}
	var (
		first  string
		second int
		third  = "untouched"
	)
	if err := DecodeArgs(message, &first, &second, &third); err != nil {
		t.Fatalf("DecodeArgs: %v", err)
	}
	if first != "a" || second != 2 || third != "untouched" {
		t.Errorf("decoded %q %d %q", first, second, third)
	}
	if count, _ := ArgCount(message); count != 2 {
		t.Errorf("ArgCount = %d, want 2", count)
	}

	empty, _ := NewMessage(nil)
	if count, err := ArgCount(empty); count != 0 || err != nil {
		t.Errorf("ArgCount(empty) = %d, %v", count, err)
	}
	if err := DecodeArgs(port.MustMessage("not a list"), &first); err == nil {
		t.Error("DecodeArgs on a non-list payload succeeded")
	}
}
