//go:build !linux

package touchtable

// SetCPUAffinity is a no-op on platforms without sched_setaffinity
func SetCPUAffinity(cores []int) error {
	return nil
}

// GetCPUAffinity is not supported on this platform and returns no cores
func GetCPUAffinity() ([]int, error) {
	return nil, nil
}
