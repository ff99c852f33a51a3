//go:build unix

package control

import "os"

func removeStaleSocket(path string) error {
	return os.Remove(path)
}
