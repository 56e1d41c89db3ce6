//go:build !unix

package platform

func mmapCodeSegment(int) ([]byte, error) {
	return nil, ErrUnsupported
}

func munmapCodeSegment([]byte) error {
	return ErrUnsupported
}
