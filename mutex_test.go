package fiber

import (
	"testing"
	"time"
)

func TestMutexFIFOHandoff(t *testing.T) {
	s := NewScheduler()
	m := NewMutex()
	var order []string

	_, err := s.Create("first", func(self *Fiber, _ interface{}) {
		if err := m.Lock(self, 0); err != nil {
			t.Errorf("Lock: %v", err)
		}
		order = append(order, "first-acquired")
		self.Yield()
		order = append(order, "first-releases")
		if err := m.Unlock(self); err != nil {
			t.Errorf("Unlock: %v", err)
		}
	}, nil, 0)
	if err != nil {
		t.Fatal(err)
	}

	_, err = s.Create("second", func(self *Fiber, _ interface{}) {
		// "first" ran before us and holds the lock across its Yield, so this
		// Lock blocks until first's Unlock hands ownership over directly.
		if err := m.Lock(self, 0); err != nil {
			t.Errorf("Lock: %v", err)
		}
		order = append(order, "second-acquired")
		if err := m.Unlock(self); err != nil {
			t.Errorf("Unlock: %v", err)
		}
	}, nil, 0)
	if err != nil {
		t.Fatal(err)
	}

	s.Schedule()

	want := []string{"first-acquired", "first-releases", "second-acquired"}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}

func TestMutexTimeoutReturnsErrLockTimeout(t *testing.T) {
	s := NewScheduler()
	m := NewMutex()
	var lockErr error

	_, err := s.Create("holder", func(self *Fiber, _ interface{}) {
		if err := m.Lock(self, 0); err != nil {
			t.Errorf("Lock: %v", err)
		}
		self.Delay(50) // hold well past the waiter's timeout
		m.Unlock(self)
	}, nil, 0)
	if err != nil {
		t.Fatal(err)
	}

	_, err = s.Create("impatient", func(self *Fiber, _ interface{}) {
		lockErr = m.Lock(self, 5*time.Millisecond)
	}, nil, 0)
	if err != nil {
		t.Fatal(err)
	}

	s.Stop()
	s.Schedule()

	if lockErr != ErrLockTimeout {
		t.Fatalf("Lock with timeout = %v, want ErrLockTimeout", lockErr)
	}
}

func TestMutexUnlockByNonOwnerIsErrMisuse(t *testing.T) {
	s := NewScheduler()
	m := NewMutex()
	var unlockErr error

	_, err := s.Create("bystander", func(self *Fiber, _ interface{}) {
		unlockErr = m.Unlock(self)
	}, nil, 0)
	if err != nil {
		t.Fatal(err)
	}

	s.Schedule()

	if unlockErr != ErrMisuse {
		t.Fatalf("Unlock by non-owner = %v, want ErrMisuse", unlockErr)
	}
}

func TestMutexTryLock(t *testing.T) {
	s := NewScheduler()
	m := NewMutex()

	f, err := s.Create("holder", func(self *Fiber, _ interface{}) {}, nil, 0)
	if err != nil {
		t.Fatal(err)
	}

	if !m.TryLock(f) {
		t.Fatal("TryLock on an unlocked mutex should succeed")
	}
	if m.TryLock(f) {
		t.Fatal("TryLock on an already-locked mutex should fail")
	}
}
