package proxy

import "math/rand/v2"

// Picker chooses the primary origin out of n configured origins.
type Picker interface {
	Pick(n int) int
}

// PickerFunc adapts a function to the Picker interface.
type PickerFunc func(n int) int

func (f PickerFunc) Pick(n int) int {
	return f(n)
}

// RandomPicker picks every origin with the same probability.
type RandomPicker struct{}

func (RandomPicker) Pick(n int) int {
	return rand.IntN(n)
}
