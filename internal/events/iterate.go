package events

import "iter"

// Iteration helpers shared by every typed packet. All sequences are finite
// and restartable: ranging twice walks the packet again from the start.
// Forward order is slot 0..number-1, reverse is number-1..0. The valid-only
// variants skip slots whose validity bit is unset.

func forwardAll[E any](number int32, at func(int32) E) iter.Seq2[int32, E] {
	return func(yield func(int32, E) bool) {
		for n := int32(0); n < number; n++ {
			if !yield(n, at(n)) {
				return
			}
		}
	}
}

func forwardValid[E any](number int32, at func(int32) E, valid func(E) bool) iter.Seq2[int32, E] {
	return func(yield func(int32, E) bool) {
		for n := int32(0); n < number; n++ {
			ev := at(n)
			if !valid(ev) {
				continue
			}
			if !yield(n, ev) {
				return
			}
		}
	}
}

func reverseAll[E any](number int32, at func(int32) E) iter.Seq2[int32, E] {
	return func(yield func(int32, E) bool) {
		for n := number - 1; n >= 0; n-- {
			if !yield(n, at(n)) {
				return
			}
		}
	}
}

func reverseValid[E any](number int32, at func(int32) E, valid func(E) bool) iter.Seq2[int32, E] {
	return func(yield func(int32, E) bool) {
		for n := number - 1; n >= 0; n-- {
			ev := at(n)
			if !valid(ev) {
				continue
			}
			if !yield(n, ev) {
				return
			}
		}
	}
}

// findFirst linearly scans seq and returns the first event matching pred.
// Worst case O(number); packets are batch-bounded so this stays cheap.
func findFirst[E any](seq iter.Seq2[int32, E], pred func(E) bool) (int32, E, bool) {
	for n, ev := range seq {
		if pred(ev) {
			return n, ev, true
		}
	}
	var zero E
	return -1, zero, false
}
