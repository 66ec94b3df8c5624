package persist

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"halo/backend/domain"
	"halo/backend/repository/events"
	"halo/backend/repository/memory"
)

func testState() domain.AppState {
	return domain.AppState{
		Servers: []domain.ServerProfile{
			{ID: "p1", Name: "home", Server: "example.com:443", Listen: "127.0.0.1:30000", RoutingMode: domain.RoutingBypassCN},
			{ID: "p2", Name: "office", Server: "o.example.com:443", Listen: "127.0.0.1:30001", RoutingMode: domain.RoutingGlobal},
		},
		CurrentServerID: "p2",
		LastState: domain.LastRunState{
			WasRunning:         true,
			SystemProxyEnabled: true,
			AutoStartChecked:   false,
		},
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.json")
	if err := Save(path, testState()); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got := Load(path)
	if len(got.Servers) != 2 {
		t.Fatalf("servers = %d", len(got.Servers))
	}
	if got.Servers[0].ID != "p1" || got.Servers[1].Name != "office" {
		t.Fatalf("servers = %+v", got.Servers)
	}
	if got.CurrentServerID != "p2" {
		t.Fatalf("current = %s", got.CurrentServerID)
	}
	if !got.LastState.WasRunning || !got.LastState.SystemProxyEnabled || got.LastState.AutoStartChecked {
		t.Fatalf("last state = %+v", got.LastState)
	}
}

func TestLoadMissingFileReturnsEmpty(t *testing.T) {
	t.Parallel()

	got := Load(filepath.Join(t.TempDir(), "nope.json"))
	if len(got.Servers) != 0 || got.CurrentServerID != "" {
		t.Fatalf("missing file should yield empty state: %+v", got)
	}
}

func TestLoadCorruptFileReturnsEmpty(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte("{broken"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	got := Load(path)
	if len(got.Servers) != 0 {
		t.Fatalf("corrupt file should yield empty state: %+v", got)
	}
}

func TestConfigFileFieldNames(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.json")
	if err := Save(path, testState()); err != nil {
		t.Fatalf("Save: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	text := string(data)
	for _, want := range []string{
		`"servers"`, `"current_server_id"`, `"last_state"`,
		`"was_running"`, `"system_proxy_enabled"`, `"auto_start_checked"`,
		`"routing_mode"`,
	} {
		if !strings.Contains(text, want) {
			t.Fatalf("config file missing field %s:\n%s", want, text)
		}
	}
}

func TestSnapshotterSaveNow(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.json")
	store := memory.NewStore(events.NewBus())
	store.LoadState(testState())

	s := NewSnapshotter(path, store)
	if err := s.SaveNow(); err != nil {
		t.Fatalf("SaveNow: %v", err)
	}

	got := Load(path)
	if len(got.Servers) != 2 || got.CurrentServerID != "p2" {
		t.Fatalf("round trip via snapshotter: %+v", got)
	}
	if got.GeneratedAt.IsZero() {
		t.Fatalf("generatedAt not stamped")
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Fatalf("tmp file left behind")
	}
}

func TestSnapshotterEventDriven(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.json")
	bus := events.NewBus()
	store := memory.NewStore(bus)
	store.LoadState(testState())

	s := NewSnapshotter(path, store)
	s.SetDebounce(10 * time.Millisecond)
	s.SubscribeEvents(bus)

	// 任何仓储写事件都应触发一次防抖落盘
	repo := memory.NewProfileRepo(store)
	if _, err := repo.Create(context.Background(), domain.ServerProfile{Name: "third", Server: "x:1", Listen: "y:2"}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if got := Load(path); len(got.Servers) == 3 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("debounced snapshot never written")
}
