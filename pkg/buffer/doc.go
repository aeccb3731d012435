// Package buffer provides the bounded hand-off queue used between real-time
// producers and their consumers.
//
// Queue is a fixed-size FIFO guarded by a mutex and a condition variable.
// The producer side has two modes:
//
//   - TryPush never blocks. When the queue is full the offered item is
//     rejected with ErrFull (drop-newest), so a capture thread or a session
//     loop can hand data off in constant time.
//
//   - Push blocks until a slot frees up or the context is done. It is meant
//     for shutdown paths where losing the last item is worse than waiting.
//
// Graceful shutdown goes through CloseWrite (consumers drain what is queued,
// then Pop returns io.EOF) or CloseWithError (immediate closure).
//
// Example usage:
//
//	q := buffer.NewQueue[*pcm.Chunk](100)
//
//	// producer
//	if err := q.TryPush(chunk); errors.Is(err, buffer.ErrFull) {
//		dropped++
//	}
//
//	// consumer
//	for {
//		c, err := q.Pop()
//		if err != nil {
//			break
//		}
//		handle(c)
//	}
package buffer
