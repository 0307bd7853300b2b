package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

type countingAdvancer struct {
	calls atomic.Int32
}

func (c *countingAdvancer) AdvanceAll(context.Context) int {
	c.calls.Add(1)
	return 2
}

func TestRegister_RejectsBadSchedule(t *testing.T) {
	a := New(context.Background(), &countingAdvancer{})
	if err := a.Register("every tuesday"); err == nil {
		t.Error("expected error for invalid schedule")
	}
	// Five-field specs lack the seconds column.
	if err := a.Register("0 * * * *"); err == nil {
		t.Error("expected error for five-field schedule")
	}
	if err := a.Register("0 0 * * * *"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestRunNow(t *testing.T) {
	adv := &countingAdvancer{}
	a := New(context.Background(), adv)
	a.RunNow()
	a.RunNow()
	if got := adv.calls.Load(); got != 2 {
		t.Errorf("expected 2 calls, got %d", got)
	}
}

func TestRunNow_SkipsAfterCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	adv := &countingAdvancer{}
	a := New(ctx, adv)
	cancel()
	a.RunNow()
	if got := adv.calls.Load(); got != 0 {
		t.Errorf("expected no calls after cancel, got %d", got)
	}
}

func TestStart_FiresOnSchedule(t *testing.T) {
	adv := &countingAdvancer{}
	a := New(context.Background(), adv)
	if err := a.Register("* * * * * *"); err != nil {
		t.Fatal(err)
	}
	a.Start()
	defer a.Stop()

	deadline := time.Now().Add(3 * time.Second)
	for adv.calls.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(50 * time.Millisecond)
	}
	if adv.calls.Load() == 0 {
		t.Error("expected the job to fire within 3s")
	}
}
