package metrics

import (
	"sync"
	"time"
)

// Status is the human-facing sync snapshot.
type Status struct {
	mu sync.RWMutex

	state      string
	localTip   uint64
	liveHeight uint64
	mempool    int
	lastTick   time.Time
	lastError  string
}

// StatusView is the JSON shape of Status.
type StatusView struct {
	State      string     `json:"state"`
	LocalTip   uint64     `json:"local_tip"`
	LiveHeight uint64     `json:"live_height"`
	Lag        uint64     `json:"lag"`
	Mempool    int        `json:"mempool"`
	LastTick   *time.Time `json:"last_tick,omitempty"`
	LastError  string     `json:"last_error,omitempty"`
}

func (s *Status) setState(state string) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

func (s *Status) setHeights(local, live uint64) {
	s.mu.Lock()
	s.localTip, s.liveHeight = local, live
	s.mu.Unlock()
}

func (s *Status) setMempool(size int) {
	s.mu.Lock()
	s.mempool = size
	s.mu.Unlock()
}

func (s *Status) recordTick(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastTick = time.Now().UTC()
	s.lastError = ""
	if err != nil {
		s.lastError = err.Error()
	}
}

// View copies the snapshot.
func (s *Status) View() StatusView {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v := StatusView{
		State:      s.state,
		LocalTip:   s.localTip,
		LiveHeight: s.liveHeight,
		Mempool:    s.mempool,
		LastError:  s.lastError,
	}
	if s.liveHeight > s.localTip {
		v.Lag = s.liveHeight - s.localTip
	}
	if !s.lastTick.IsZero() {
		t := s.lastTick
		v.LastTick = &t
	}
	return v
}
