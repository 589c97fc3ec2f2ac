package util

import (
	"fmt"
	"sort"

	"golang.org/x/exp/maps"
)

// EvalLazyArgs evaluates closures passed as format arguments. Makes it
// possible to defer expensive String() calls until the message is actually
// rendered.
func EvalLazyArgs(args ...any) []any {
	ret := make([]any, len(args))
	for i, arg := range args {
		switch funArg := arg.(type) {
		case func() any:
			ret[i] = funArg()
		case func() string:
			ret[i] = funArg()
		default:
			ret[i] = arg
		}
	}
	return ret
}

func Assertf(cond bool, format string, args ...any) {
	if !cond {
		panic(fmt.Errorf("assertion failed:: "+format, EvalLazyArgs(args...)...))
	}
}

func AssertNoError(err error, prefix ...string) {
	pref := "error: "
	if len(prefix) > 0 {
		pref = prefix[0] + ": "
	}
	Assertf(err == nil, pref+"%v", err)
}

func CatchPanicOrError(f func() error) (err error) {
	func() {
		defer func() {
			r := recover()
			if r == nil {
				return
			}
			var ok bool
			if err, ok = r.(error); !ok {
				err = fmt.Errorf("%v", r)
			}
		}()
		err = f()
	}()
	return err
}

func Keys[K comparable, V any](m map[K]V) []K {
	return maps.Keys(m)
}

func SortKeys[K comparable, V any](m map[K]V, less func(k1, k2 K) bool) []K {
	ret := maps.Keys(m)
	sort.Slice(ret, func(i, j int) bool {
		return less(ret[i], ret[j])
	})
	return ret
}

func Find[T comparable](lst []T, el T) int {
	for i, e := range lst {
		if e == el {
			return i
		}
	}
	return -1
}

func AppendUnique[T comparable](lst []T, elems ...T) []T {
	for _, e := range elems {
		if Find(lst, e) < 0 {
			lst = append(lst, e)
		}
	}
	return lst
}

func Ref[T any](v T) *T {
	return &v
}
