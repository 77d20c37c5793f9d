package testutil

import "flag"

// RunLong enables the heavy tests that write and read large geometry graphs.
var RunLong = flag.Bool("long", false, "run heavy tests on large geometry graphs")

// Size returns n, or long when heavy tests are enabled.
func Size(n, long int) int {
	if *RunLong {
		return long
	}
	return n
}
