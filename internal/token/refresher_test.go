package token

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/YaganovValera/feed-bridge/common/logger"
)

func TestRefresher_IntervalFloor(t *testing.T) {
	r := NewRefresher(newTestStore(), HarvesterFunc(nil), RefresherConfig{Interval: 10 * time.Second}, logger.Nop())
	if r.Interval() != MinRefreshInterval {
		t.Errorf("Interval = %v, want %v", r.Interval(), MinRefreshInterval)
	}
	r = NewRefresher(newTestStore(), HarvesterFunc(nil), RefresherConfig{}, logger.Nop())
	if r.Interval() != 260*time.Second {
		t.Errorf("default Interval = %v", r.Interval())
	}
}

func TestRefresher_Check(t *testing.T) {
	fresh := jwtWithExp(fixedNow.Unix() + 3600)
	cases := []struct {
		name      string
		initial   string
		harvest   func(context.Context) (string, error)
		wantSet   bool
		wantCalls int32
	}{
		{
			name:      "usable token skips harvest",
			initial:   fresh,
			harvest:   func(context.Context) (string, error) { return "never", nil },
			wantCalls: 0,
		},
		{
			name:      "missing token is harvested",
			harvest:   func(context.Context) (string, error) { return fresh, nil },
			wantSet:   true,
			wantCalls: 1,
		},
		{
			name:      "stale token is harvested",
			initial:   jwtWithExp(fixedNow.Unix() + 30),
			harvest:   func(context.Context) (string, error) { return fresh, nil },
			wantSet:   true,
			wantCalls: 1,
		},
		{
			name:      "not found leaves store untouched",
			harvest:   func(context.Context) (string, error) { return "", ErrNotFound },
			wantCalls: 1,
		},
		{
			name:      "harvest error leaves store untouched",
			harvest:   func(context.Context) (string, error) { return "", errors.New("browser crashed") },
			wantCalls: 1,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := newTestStore()
			if tc.initial != "" {
				s.Set(tc.initial)
			}
			var calls atomic.Int32
			h := HarvesterFunc(func(ctx context.Context) (string, error) {
				calls.Add(1)
				return tc.harvest(ctx)
			})
			r := NewRefresher(s, h, RefresherConfig{}, logger.Nop())
			if got := r.Check(context.Background()); got != tc.wantSet {
				t.Errorf("Check = %v, want %v", got, tc.wantSet)
			}
			if calls.Load() != tc.wantCalls {
				t.Errorf("harvest calls = %d, want %d", calls.Load(), tc.wantCalls)
			}
			if tc.wantSet {
				if got, ok := s.Get(); !ok || got != fresh {
					t.Errorf("store holds %q, %v", got, ok)
				}
			}
		})
	}
}

func TestRefresher_HarvestTimeout(t *testing.T) {
	h := HarvesterFunc(func(ctx context.Context) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})
	r := NewRefresher(newTestStore(), h, RefresherConfig{HarvestTimeout: 20 * time.Millisecond}, logger.Nop())
	start := time.Now()
	if r.Check(context.Background()) {
		t.Fatal("Check reported success")
	}
	if el := time.Since(start); el > time.Second {
		t.Errorf("harvest not bounded: %v", el)
	}
}

func TestRefresher_RunStopsOnCancel(t *testing.T) {
	var calls atomic.Int32
	h := HarvesterFunc(func(context.Context) (string, error) {
		calls.Add(1)
		return "", ErrNotFound
	})
	r := NewRefresher(newTestStore(), h, RefresherConfig{}, logger.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	deadline := time.After(time.Second)
	for calls.Load() == 0 {
		select {
		case <-deadline:
			t.Fatal("first check did not run")
		default:
			time.Sleep(5 * time.Millisecond)
		}
	}
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run = %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not stop")
	}
}

func TestFileHarvester(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "token")

	h := FileHarvester{Path: path}
	if _, err := h.Harvest(context.Background()); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing file: err = %v, want ErrNotFound", err)
	}

	if err := os.WriteFile(path, []byte("\n# comment\n  abc.def.ghi  \nother\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	got, err := h.Harvest(context.Background())
	if err != nil || got != "abc.def.ghi" {
		t.Errorf("Harvest = (%q, %v)", got, err)
	}

	if err := os.WriteFile(path, []byte("   \n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := h.Harvest(context.Background()); !errors.Is(err, ErrNotFound) {
		t.Errorf("blank file: err = %v, want ErrNotFound", err)
	}
}
