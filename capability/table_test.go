// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package capability

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/bureau-foundation/switchboard/host"
	"github.com/bureau-foundation/switchboard/ipc"
	"github.com/bureau-foundation/switchboard/lib/codec"
	"github.com/bureau-foundation/switchboard/lib/port"
	"github.com/bureau-foundation/switchboard/lib/testutil"
)

const timeout = 5 * time.Second

type fixture struct {
	registry *host.Registry
	router   *ipc.Router
	view     *host.View
	renderer *ipc.Renderer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	registry := host.NewRegistry(nil, nil, nil)
	router := ipc.NewRouter(registry, ipc.Options{})
	t.Cleanup(func() {
		router.Close()
		registry.Close()
	})
	view, err := registry.Create(host.ViewConfig{ID: "main", URL: "https://example.com/"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return &fixture{
		registry: registry,
		router:   router,
		view:     view,
		renderer: ipc.NewRenderer(view, router),
	}
}

func (f *fixture) standardTable(t *testing.T) *Table {
	t.Helper()
	table, err := NewTable(f.renderer, StandardAPI()...)
	if err != nil {
		t.Fatalf("NewTable: %v", err)
	}
	return table
}

func TestNamesAreSortedCopies(t *testing.T) {
	f := newFixture(t)
	table := f.standardTable(t)

	want := []string{"open_file", "ping", "send_counter_value", "set_title", "subscribe_counter_updates", "sync_echo"}
	names := table.Names()
	if !reflect.DeepEqual(names, want) {
		t.Fatalf("Names() = %v, want %v", names, want)
	}
	names[0] = "format_disk"
	if table.Names()[0] != "open_file" {
		t.Error("mutating the Names() result changed the table")
	}
	if _, ok := table.Describe("format_disk"); ok {
		t.Error("Describe found an undeclared capability")
	}
	if len(table.Descriptors()) != len(want) {
		t.Errorf("Descriptors() has %d entries", len(table.Descriptors()))
	}
}

func TestNewTableRejectsBadDeclarations(t *testing.T) {
	f := newFixture(t)
	tests := []struct {
		name         string
		conduit      Conduit
		declarations []Declaration
	}{
		{"duplicate", f.renderer, []Declaration{Invoke("ping", "ping", 0), Send("ping", "x", 0)}},
		{"empty name", f.renderer, []Declaration{Invoke("", "ping", 0)}},
		{"no channel", f.renderer, []Declaration{Invoke("ping", "", 0)}},
		{"operation without conduit", nil, []Declaration{Invoke("ping", "ping", 0)}},
		{"unencodable value", nil, []Declaration{Value("bad", make(chan int))}},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if _, err := NewTable(test.conduit, test.declarations...); err == nil {
				t.Error("NewTable succeeded")
			}
		})
	}
}

func TestPingIsDeterministic(t *testing.T) {
	f := newFixture(t)
	f.router.Handle(ChannelPing, func(context.Context, *ipc.Event) (any, error) { return "pong", nil })
	table := f.standardTable(t)

	for range 3 {
		raw, err := table.Invoke(context.Background(), "ping")
		if err != nil {
			t.Fatalf("Invoke(ping): %v", err)
		}
		var reply string
		if err := codec.Unmarshal(raw, &reply); err != nil || reply != "pong" {
			t.Fatalf("ping = %q (err %v), want pong", reply, err)
		}
	}
}

func TestShapeAndArityEnforced(t *testing.T) {
	f := newFixture(t)
	table := f.standardTable(t)

	if _, err := table.Invoke(context.Background(), "ping", "extra"); !errors.Is(err, ErrArity) {
		t.Errorf("ping with an argument = %v, want ErrArity", err)
	}
	if err := table.Send("set_title"); !errors.Is(err, ErrArity) {
		t.Errorf("set_title without a title = %v, want ErrArity", err)
	}
	if err := table.Send("ping"); !errors.Is(err, ErrUnknownCapability) {
		t.Errorf("Send(ping) = %v, want ErrUnknownCapability", err)
	}
	if _, err := table.Invoke(context.Background(), "get_secrets"); !errors.Is(err, ErrUnknownCapability) {
		t.Errorf("Invoke(get_secrets) = %v, want ErrUnknownCapability", err)
	}
	if _, err := table.Subscribe("subscribe_counter_updates", nil); !errors.Is(err, ErrArity) {
		t.Errorf("Subscribe with nil handler = %v, want ErrArity", err)
	}
	if _, err := table.Value("ping"); !errors.Is(err, ErrUnknownCapability) {
		t.Errorf("Value(ping) = %v, want ErrUnknownCapability", err)
	}
}

func TestSendForwardsToChannel(t *testing.T) {
	f := newFixture(t)
	titles := make(chan string, 1)
	f.router.On(ChannelSetTitle, func(event *ipc.Event) {
		var title string
		event.Args(&title)
		titles <- event.Sender.ID + ":" + title
	})
	table := f.standardTable(t)

	if err := table.Send("set_title", "Hello"); err != nil {
		t.Fatalf("Send(set_title): %v", err)
	}
	if got := testutil.RequireReceive(t, titles, timeout); got != "main:Hello" {
		t.Errorf("set-title received %q, want main:Hello", got)
	}
}

func TestSyncEcho(t *testing.T) {
	f := newFixture(t)
	f.router.HandleSync(ChannelSyncEcho, func(*ipc.Event) (any, error) { return "pong", nil })
	table := f.standardTable(t)

	raw, err := table.SendSync("sync_echo", "ping")
	if err != nil {
		t.Fatalf("SendSync: %v", err)
	}
	var reply string
	codec.Unmarshal(raw, &reply)
	if reply != "pong" {
		t.Errorf("sync_echo = %q, want pong", reply)
	}
}

func TestSubscribeAndUnsubscribe(t *testing.T) {
	f := newFixture(t)
	table := f.standardTable(t)

	deltas := make(chan int, 4)
	subscription, err := table.Subscribe("subscribe_counter_updates", func(message port.Message) {
		var delta int
		ipc.DecodeArgs(message, &delta)
		deltas <- delta
	})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	f.router.Push("main", ChannelUpdateCounter, 1)
	f.router.Push("main", ChannelUpdateCounter, -1)
	if got := testutil.RequireReceive(t, deltas, timeout); got != 1 {
		t.Errorf("first delta = %d, want 1", got)
	}
	if got := testutil.RequireReceive(t, deltas, timeout); got != -1 {
		t.Errorf("second delta = %d, want -1", got)
	}

	if !table.Unsubscribe(subscription) {
		t.Fatal("Unsubscribe returned false")
	}
	f.router.Push("main", ChannelUpdateCounter, 1)
	testutil.RequireNoReceive(t, deltas, 50*time.Millisecond)
}

func TestVersionsAreSnapshots(t *testing.T) {
	versions, err := NewTable(nil, StandardVersions()...)
	if err != nil {
		t.Fatalf("NewTable: %v", err)
	}
	if got := versions.Names(); !reflect.DeepEqual(got, []string{"commit", "go", "switchboard"}) {
		t.Errorf("version names = %v", got)
	}

	source := map[string]int{"n": 1}
	table, err := NewTable(nil, Value("config", source))
	if err != nil {
		t.Fatalf("NewTable: %v", err)
	}
	source["n"] = 2
	raw, err := table.Value("config")
	if err != nil {
		t.Fatalf("Value: %v", err)
	}
	var snapshot map[string]int
	codec.Unmarshal(raw, &snapshot)
	if snapshot["n"] != 1 {
		t.Errorf("value changed after build: %v", snapshot)
	}
	raw[0] = 0
	again, _ := table.Value("config")
	if again[0] == 0 {
		t.Error("mutating a returned snapshot changed the table")
	}
}
