package models

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHandleAllocatorNew(t *testing.T) {
	var a HandleAllocator
	require.Equal(t, uint32(1), a.New())
	require.Equal(t, uint32(2), a.New())
	require.Equal(t, uint32(3), a.New())
}

func TestHandleAllocatorRelease(t *testing.T) {
	var a HandleAllocator
	a.New()
	a.New()

	a.Release(1)
	require.Equal(t, uint32(1), a.New())
	require.Equal(t, uint32(3), a.New())
}
