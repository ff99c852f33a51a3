//go:build !unix

package control

func removeStaleSocket(path string) error { return nil }
