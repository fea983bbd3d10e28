package filter

import "compatsuite/internal/logging"

// ShouldRunModule reports whether a module with the given config metadata
// takes part in the run.
//
// A module is rejected as soon as any exclude key shares a value with its
// metadata. Otherwise it runs when include is empty or any include key shares
// a value with its metadata. Keys missing from the metadata never match.
func ShouldRunModule(metadata, include, exclude MultiMap) bool {
	if len(exclude) > 0 {
		for key, values := range exclude {
			if intersects(metadata[key], values) {
				logging.FilterDebug("excluded by metadata %s=%v", key, values)
				return false
			}
		}
	}
	if len(include) == 0 {
		return true
	}
	for key, values := range include {
		if intersects(metadata[key], values) {
			return true
		}
	}
	logging.FilterDebug("no include metadata matched %s", metadata)
	return false
}

func intersects(a, b []string) bool {
	for _, x := range a {
		for _, y := range b {
			if x == y {
				return true
			}
		}
	}
	return false
}
