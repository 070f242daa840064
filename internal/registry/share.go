package registry

// Share is scoped as a percentage of global. A zero global total yields 0.
// Only scalars cross this boundary, never rows of the global view.
func Share(scoped, global float64) float64 {
	if global == 0 {
		return 0
	}
	return scoped / global * 100
}
