package pipeline

// span is a half-open index range [lo, hi) assigned to one worker.
type span struct {
	lo int
	hi int
}

func (s span) size() int {
	return s.hi - s.lo
}

// partition splits size samples into at most workers contiguous spans.
// Every span gets size/count samples and the last one absorbs the
// remainder, so concatenating chunk outputs in span order reproduces
// the source order.
func partition(size, workers int) []span {
	if size <= 0 || workers <= 0 {
		return nil
	}

	count := workers
	if size < count {
		count = size
	}

	base := size / count
	spans := make([]span, count)
	for i := range spans {
		spans[i] = span{lo: i * base, hi: (i + 1) * base}
	}
	spans[count-1].hi = size
	return spans
}
