package logger

import (
	"strconv"
	"strings"
	"sync/atomic"
)

// ratioSampler lets num of every den events through. A zero ratio disables
// sampling.
type ratioSampler struct {
	ratio   atomic.Uint64 // num<<32 | den
	counter atomic.Uint64
}

func (s *ratioSampler) Set(num, den int) {
	if num <= 0 || den <= 0 {
		s.ratio.Store(0)
		return
	}
	if num > den {
		num = den
	}
	s.ratio.Store(uint64(num)<<32 | uint64(uint32(den)))
	s.counter.Store(0)
}

func (s *ratioSampler) Allow() bool {
	r := s.ratio.Load()
	if r == 0 {
		return true
	}
	num, den := r>>32, r&0xffffffff
	return (s.counter.Add(1)-1)%den < num
}

// parseRatioSpec accepts "num/den" or "n" (one in n). Anything else
// disables sampling.
func parseRatioSpec(spec string) (int, int) {
	spec = strings.TrimSpace(spec)
	if num, den, ok := strings.Cut(spec, "/"); ok {
		n, err1 := strconv.Atoi(strings.TrimSpace(num))
		d, err2 := strconv.Atoi(strings.TrimSpace(den))
		if err1 == nil && err2 == nil {
			return n, d
		}
		return 0, 0
	}
	if v, err := strconv.Atoi(spec); err == nil && v > 0 {
		return 1, v
	}
	return 0, 0
}
