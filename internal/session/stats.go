package session

import (
	"sync/atomic"
	"time"
)

// ReceiveStats summarizes a listen task.
type ReceiveStats struct {
	Datagrams     int64 `json:"datagrams"`
	Bytes         int64 `json:"bytes"`
	KeysApplied   int64 `json:"keysApplied"`
	DecodeErrors  int64 `json:"decodeErrors"`
	UnknownJoints int64 `json:"unknownJoints"`
	Duplicates    int64 `json:"duplicates"`
	ElapsedMs     int64 `json:"elapsedMs"`
}

// TransmitStats summarizes a transmit task.
type TransmitStats struct {
	Packets int `json:"packets"`
	Bytes   int `json:"bytes"`
	Keys    int `json:"keys"`
}

type receiveCounters struct {
	datagrams     atomic.Int64
	bytes         atomic.Int64
	keysApplied   atomic.Int64
	decodeErrors  atomic.Int64
	unknownJoints atomic.Int64
	duplicates    atomic.Int64
	startedAt     atomic.Int64
	endedAt       atomic.Int64
}

// recordDatagram counts one received non-empty datagram.
func (c *receiveCounters) recordDatagram(n int) {
	c.startedAt.CompareAndSwap(0, time.Now().UnixMilli())
	c.datagrams.Add(1)
	c.bytes.Add(int64(n))
}

func (c *receiveCounters) stop() {
	c.endedAt.Store(time.Now().UnixMilli())
}

func (c *receiveCounters) snapshot() ReceiveStats {
	var elapsed int64
	if start := c.startedAt.Load(); start != 0 {
		end := c.endedAt.Load()
		if end == 0 {
			end = time.Now().UnixMilli()
		}
		elapsed = end - start
	}
	return ReceiveStats{
		Datagrams:     c.datagrams.Load(),
		Bytes:         c.bytes.Load(),
		KeysApplied:   c.keysApplied.Load(),
		DecodeErrors:  c.decodeErrors.Load(),
		UnknownJoints: c.unknownJoints.Load(),
		Duplicates:    c.duplicates.Load(),
		ElapsedMs:     elapsed,
	}
}
