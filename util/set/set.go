package set

import "golang.org/x/exp/maps"

// Set is a non thread-safe set of comparable elements
type Set[K comparable] map[K]struct{}

func New[K comparable](elems ...K) Set[K] {
	ret := make(Set[K], len(elems))
	for _, el := range elems {
		ret.Insert(el)
	}
	return ret
}

func (s Set[K]) Insert(elems ...K) Set[K] {
	for _, el := range elems {
		s[el] = struct{}{}
	}
	return s
}

func (s Set[K]) Remove(elems ...K) Set[K] {
	for _, el := range elems {
		delete(s, el)
	}
	return s
}

func (s Set[K]) Contains(el K) bool {
	if len(s) == 0 {
		return false
	}
	_, contains := s[el]
	return contains
}

func (s Set[K]) ForEach(fun func(el K) bool) {
	for el := range s {
		if !fun(el) {
			return
		}
	}
}

func (s Set[K]) AsList() []K {
	if len(s) == 0 {
		return nil
	}
	return maps.Keys(s)
}

func (s Set[K]) Clone() Set[K] {
	return New(s.AsList()...)
}
