package engine

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"math"
)

// stateDigest hashes the dynamic entity state in registry order. Two runs fed
// the same commands at the same ticks must produce identical digests; anything
// wall-clock derived (timestamps, properties echoed from config) stays out.
func (s *Sim) stateDigest(nowTick uint64) string {
	h := sha256.New()
	var buf [8]byte

	binary.LittleEndian.PutUint64(buf[:], nowTick)
	h.Write(buf[:])

	writeF := func(f float64) {
		binary.LittleEndian.PutUint64(buf[:], math.Float64bits(f))
		h.Write(buf[:])
	}

	for _, e := range s.reg.All() {
		h.Write([]byte(e.ID))
		writeF(e.Pos.X)
		writeF(e.Pos.Y)
		writeF(e.Pos.Z)
		if e.Kind != KindPerson {
			continue
		}
		if e.Awake {
			h.Write([]byte{1})
		} else {
			h.Write([]byte{0})
		}
		binary.LittleEndian.PutUint64(buf[:], e.WakeAtTick)
		h.Write(buf[:])
		if e.Move != nil {
			h.Write([]byte{1})
			h.Write([]byte(e.Move.Mode))
			writeF(e.Move.Target.X)
			writeF(e.Move.Target.Y)
			writeF(e.Move.Target.Z)
			writeF(e.Move.Speed)
		} else {
			h.Write([]byte{0})
		}
		if e.Facing != nil {
			writeF(e.Facing.X)
			writeF(e.Facing.Y)
			writeF(e.Facing.Z)
		}
	}
	return hex.EncodeToString(h.Sum(nil))
}
