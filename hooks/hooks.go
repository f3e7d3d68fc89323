// Package hooks provides ordered interceptor chains used at fixed stages of
// query compilation and search. A nil or empty Chain is the identity.
package hooks

// Chain is an ordered list of transforms. Each interceptor receives the output
// of the previous one.
type Chain[T any] []func(T) T

// Apply runs v through every interceptor in registration order.
func (c Chain[T]) Apply(v T) T {
	for _, fn := range c {
		if fn != nil {
			v = fn(v)
		}
	}
	return v
}

// Add appends an interceptor and returns the extended chain.
func (c Chain[T]) Add(fn func(T) T) Chain[T] {
	return append(c, fn)
}
