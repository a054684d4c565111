package chain

func coalesce[T any](incoming, existing *T) *T {
	if incoming != nil {
		return incoming
	}
	return existing
}

func coalesceBytes(incoming, existing []byte) []byte {
	if incoming != nil {
		return incoming
	}
	return existing
}

func clonePtr[T any](v *T) *T {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func maxHeight(a, b *uint64) *uint64 {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	case *a >= *b:
		return a
	}
	return b
}
