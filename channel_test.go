package fiber

import "testing"

func TestChannelRendezvousZeroCapacity(t *testing.T) {
	s := NewScheduler()
	ch := NewChannel[int](0)
	var received int
	var ok bool

	_, err := s.Create("sender", func(self *Fiber, _ interface{}) {
		if err := ch.Send(self, 42); err != nil {
			t.Errorf("Send: %v", err)
		}
	}, nil, 0)
	if err != nil {
		t.Fatal(err)
	}

	_, err = s.Create("receiver", func(self *Fiber, _ interface{}) {
		received, ok = ch.Recv(self)
	}, nil, 0)
	if err != nil {
		t.Fatal(err)
	}

	s.Schedule()

	if !ok || received != 42 {
		t.Fatalf("received = (%d, %v), want (42, true)", received, ok)
	}
}

func TestChannelBufferedSendDoesNotBlock(t *testing.T) {
	s := NewScheduler()
	ch := NewChannel[string](2)
	sent := false

	_, err := s.Create("sender", func(self *Fiber, _ interface{}) {
		if err := ch.Send(self, "a"); err != nil {
			t.Errorf("Send: %v", err)
		}
		if err := ch.Send(self, "b"); err != nil {
			t.Errorf("Send: %v", err)
		}
		sent = true
	}, nil, 0)
	if err != nil {
		t.Fatal(err)
	}

	s.Schedule()

	if !sent {
		t.Fatal("buffered sender should never have blocked")
	}
	if ch.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", ch.Len())
	}
}

func TestChannelFIFOReceivers(t *testing.T) {
	s := NewScheduler()
	ch := NewChannel[int](0)
	var order []int

	for i := 0; i < 3; i++ {
		_, err := s.Create("receiver", func(self *Fiber, _ interface{}) {
			v, _ := ch.Recv(self)
			order = append(order, v)
		}, nil, 0)
		if err != nil {
			t.Fatal(err)
		}
	}

	_, err := s.Create("sender", func(self *Fiber, _ interface{}) {
		for i := 0; i < 3; i++ {
			if err := ch.Send(self, i); err != nil {
				t.Errorf("Send: %v", err)
			}
		}
	}, nil, 0)
	if err != nil {
		t.Fatal(err)
	}

	s.Schedule()

	want := []int{0, 1, 2}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}

func TestChannelCloseWakesBlockedReceiverWithZeroValue(t *testing.T) {
	s := NewScheduler()
	ch := NewChannel[int](0)
	var received int
	var ok = true

	_, err := s.Create("receiver", func(self *Fiber, _ interface{}) {
		received, ok = ch.Recv(self)
	}, nil, 0)
	if err != nil {
		t.Fatal(err)
	}

	_, err = s.Create("closer", func(self *Fiber, _ interface{}) {
		self.Yield() // let the receiver block first
		ch.Close(s)
	}, nil, 0)
	if err != nil {
		t.Fatal(err)
	}

	s.Schedule()

	if ok {
		t.Fatal("ok = true, want false after Close")
	}
	if received != 0 {
		t.Fatalf("received = %d, want 0", received)
	}
}

func TestChannelSendAfterCloseFails(t *testing.T) {
	s := NewScheduler()
	ch := NewChannel[int](1)
	ch.Close(s)

	var sendErr error
	_, err := s.Create("sender", func(self *Fiber, _ interface{}) {
		sendErr = ch.Send(self, 1)
	}, nil, 0)
	if err != nil {
		t.Fatal(err)
	}

	s.Schedule()

	if sendErr != ErrChannelClosed {
		t.Fatalf("Send after Close = %v, want ErrChannelClosed", sendErr)
	}
}

func TestChannelBufferDrainsBeforeClosedStateObserved(t *testing.T) {
	s := NewScheduler()
	ch := NewChannel[int](2)

	_, err := s.Create("setup", func(self *Fiber, _ interface{}) {
		ch.Send(self, 1)
		ch.Send(self, 2)
	}, nil, 0)
	if err != nil {
		t.Fatal(err)
	}
	s.Schedule()

	ch.Close(s)

	var got []int
	var ok bool
	s2 := NewScheduler()
	_, err = s2.Create("drainer", func(self *Fiber, _ interface{}) {
		for {
			v, o := ch.Recv(self)
			if !o {
				ok = o
				break
			}
			got = append(got, v)
		}
	}, nil, 0)
	if err != nil {
		t.Fatal(err)
	}
	s2.Schedule()

	if len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Fatalf("got = %v, want [1 2]", got)
	}
	if ok {
		t.Fatal("final receive ok = true, want false")
	}
}
