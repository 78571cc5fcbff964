package engine

import "github.com/iplayfast/gameai/internal/protocol"

// systemSleep wakes every sleeper whose deadline has come due. A sleep issued
// without a duration never fires here; it waits for an explicit wake command.
func (s *Sim) systemSleep(nowTick uint64) {
	for _, e := range s.reg.All() {
		if e.Awake || e.WakeAtTick == 0 || nowTick < e.WakeAtTick {
			continue
		}
		e.Awake = true
		e.WakeAtTick = 0
		s.emit(protocol.EventMsg{
			Event:    protocol.EventWokeUp,
			EntityID: e.ID,
			Tick:     nowTick,
		})
	}
}
