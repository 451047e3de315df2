package executor

import "context"

// cancelCheckInterval is how many merge steps run between context checks.
const cancelCheckInterval = 256

// stepper counts merge-join advances and polls the context periodically.
type stepper struct {
	ctx   context.Context
	steps int
}

func (s *stepper) step() error {
	s.steps++
	if s.steps%cancelCheckInterval == 0 {
		return s.ctx.Err()
	}
	return nil
}

// The functions below take and return strictly increasing ID slices and
// run in time linear in the combined input length.

func intersect(s *stepper, a, b []string) ([]string, error) {
	out := make([]string, 0, min(len(a), len(b)))
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		if err := s.step(); err != nil {
			return nil, err
		}
		switch {
		case a[i] == b[j]:
			out = append(out, a[i])
			i++
			j++
		case a[i] < b[j]:
			i++
		default:
			j++
		}
	}
	return out, nil
}

func union(s *stepper, a, b []string) ([]string, error) {
	out := make([]string, 0, max(len(a), len(b)))
	i, j := 0, 0
	for i < len(a) || j < len(b) {
		if err := s.step(); err != nil {
			return nil, err
		}
		switch {
		case j == len(b) || (i < len(a) && a[i] < b[j]):
			out = append(out, a[i])
			i++
		case i == len(a) || b[j] < a[i]:
			out = append(out, b[j])
			j++
		default:
			out = append(out, a[i])
			i++
			j++
		}
	}
	return out, nil
}

// difference returns the IDs of a that are not in b.
func difference(s *stepper, a, b []string) ([]string, error) {
	out := make([]string, 0, len(a))
	i, j := 0, 0
	for i < len(a) {
		if err := s.step(); err != nil {
			return nil, err
		}
		switch {
		case j == len(b) || a[i] < b[j]:
			out = append(out, a[i])
			i++
		case a[i] == b[j]:
			i++
			j++
		default:
			j++
		}
	}
	return out, nil
}
