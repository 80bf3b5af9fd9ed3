//go:build !unix

package paths

func FreeBytes(dir string) (uint64, error) {
	return 0, ErrFreeSpaceUnsupported
}
