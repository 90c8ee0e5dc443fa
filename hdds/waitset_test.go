// Copyright 2024 The hdds Authors.

package hdds

import (
	"testing"
	"time"
)

func TestGuardConditionWakesAttachedWaitSet(t *testing.T) {
	ws := NewWaitSet()
	gc := NewGuardCondition()
	ws.Attach(gc)

	done := make(chan []int64, 1)
	go func() {
		ids, err := ws.Wait(time.Second)
		if err != nil {
			t.Error(err)
			return
		}
		done <- ids
	}()

	time.Sleep(10 * time.Millisecond)
	gc.Trigger()

	select {
	case ids := <-done:
		if len(ids) != 1 || ids[0] != gc.id() {
			t.Fatalf("triggered = %v, want [%d]", ids, gc.id())
		}
	case <-time.After(time.Second):
		t.Fatal("waitset never woke")
	}
}

func TestGuardConditionFansOutToMultipleWaitSets(t *testing.T) {
	gc := NewGuardCondition()
	ws1, ws2 := NewWaitSet(), NewWaitSet()
	ws1.Attach(gc)
	ws2.Attach(gc)

	gc.Trigger()

	for _, ws := range []*WaitSet{ws1, ws2} {
		ids, err := ws.Wait(time.Second)
		if err != nil {
			t.Fatalf("Wait: %v", err)
		}
		if len(ids) != 1 || ids[0] != gc.id() {
			t.Fatalf("triggered = %v", ids)
		}
	}
}

func TestWaitSetTimesOutWithNoTrigger(t *testing.T) {
	ws := NewWaitSet()
	ws.Attach(NewGuardCondition())

	_, err := ws.Wait(20 * time.Millisecond)
	if err != ErrTimeout {
		t.Fatalf("err = %v, want ErrTimeout", err)
	}
}

func TestGuardConditionResetClearsTrigger(t *testing.T) {
	ws := NewWaitSet()
	gc := NewGuardCondition()
	ws.Attach(gc)

	gc.Trigger()
	if _, err := ws.Wait(time.Second); err != nil {
		t.Fatalf("Wait: %v", err)
	}

	gc.Reset()
	_, err := ws.Wait(20 * time.Millisecond)
	if err != ErrTimeout {
		t.Fatalf("err after reset = %v, want ErrTimeout", err)
	}
}

func TestWaitSetDetachStopsWakeups(t *testing.T) {
	ws := NewWaitSet()
	gc := NewGuardCondition()
	ws.Attach(gc)
	ws.Detach(gc.id())

	gc.Trigger()
	_, err := ws.Wait(20 * time.Millisecond)
	if err != ErrTimeout {
		t.Fatalf("err = %v, want ErrTimeout (detached condition should not wake)", err)
	}
}
