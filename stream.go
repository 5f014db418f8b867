package sigqueue

import (
	"errors"
	"iter"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// StreamSource is a chunked byte producer in the readyRead style: it
// signals that bytes are available rather than emitting them, and the
// consumer drains with ReadAvailable. [Command.Stdout] and [Command.Stderr]
// are the in-package implementations.
type StreamSource interface {
	// Data emits whenever new bytes become available.
	Data() Source[struct{}]

	// Closed emits once when the stream ends; no Data events follow it.
	Closed() Source[struct{}]

	// ReadAvailable returns and clears all bytes buffered so far. It never
	// blocks; an empty return means an already-drained notification.
	ReadAvailable() []byte
}

// streamEvent is the merged data/closed notification StreamBytes awaits.
type streamEvent struct {
	closed bool
}

// StreamBytes returns the stream's remaining content as a sequence of
// non-empty chunks, ending after the stream closes. Bytes that arrived
// between events coalesce into one chunk; the drain after the closed event
// guarantees nothing delivered before closure is lost. Chunk boundaries
// are arbitrary and carry no meaning.
//
// The sequence is single-pass. Both its subscriptions are released when it
// ends, including when the consumer breaks early. A source failure is
// yielded as the final element with a nil chunk.
func StreamBytes(co *Coroutine, s StreamSource) iter.Seq2[[]byte, error] {
	return func(yield func([]byte, error) bool) {
		q, err := Listen(co.Reactor(),
			mapSource(s.Data(), func(struct{}) streamEvent { return streamEvent{} }),
			mapSource(s.Closed(), func(struct{}) streamEvent { return streamEvent{closed: true} }),
		)
		if err != nil {
			yield(nil, err)
			return
		}
		defer q.Cancel()
		for {
			ev, err := q.Await(co)
			if err != nil {
				if !errors.Is(err, ErrCanceled) {
					yield(nil, err)
				}
				return
			}
			if b := s.ReadAvailable(); len(b) > 0 {
				if !yield(b, nil) {
					return
				}
			}
			if ev.closed {
				return
			}
		}
	}
}

// mapSource adapts a Source[T] to a Source[U], so heterogeneous events can
// feed one queue.
func mapSource[T, U any](src Source[T], f func(T) U) Source[U] {
	return SourceFunc[U](func(fn func(U)) (Subscription, error) {
		return src.Subscribe(func(v T) { fn(f(v)) })
	})
}

// StreamText is [StreamBytes] with incremental UTF-8 decoding: each yielded
// string holds only complete runes, with multi-byte sequences split across
// chunks carried over to the next one. Invalid bytes decode to U+FFFD. A
// trailing incomplete sequence at closure is flushed as U+FFFD rather than
// dropped.
func StreamText(co *Coroutine, s StreamSource) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		dec := unicode.UTF8.NewDecoder()
		var carry []byte
		for b, err := range StreamBytes(co, s) {
			if err != nil {
				yield("", err)
				return
			}
			carry = append(carry, b...)
			var out []byte
			out, carry = decodeChunk(dec, nil, carry, false)
			if len(out) > 0 && !yield(string(out), nil) {
				return
			}
		}
		if len(carry) > 0 {
			out, _ := decodeChunk(dec, nil, carry, true)
			if len(out) > 0 {
				yield(string(out), nil)
			}
		}
	}
}

// decodeChunk runs src through dec, appending decoded bytes to out and
// returning the undecoded remainder (an incomplete trailing sequence when
// atEOF is false, nothing otherwise).
func decodeChunk(dec transform.Transformer, out, src []byte, atEOF bool) (decoded, rest []byte) {
	// Worst case is one replacement rune (3 bytes) per input byte.
	dst := make([]byte, len(src)*3+4)
	for {
		nDst, nSrc, err := dec.Transform(dst, src, atEOF)
		out = append(out, dst[:nDst]...)
		src = src[nSrc:]
		if errors.Is(err, transform.ErrShortDst) {
			continue
		}
		// nil, or ErrShortSrc leaving an incomplete multi-byte sequence to
		// carry into the next chunk. The UTF-8 decoder replaces invalid
		// input rather than failing, so no other errors occur.
		return out, src
	}
}
