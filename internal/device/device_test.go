package device

import (
	"errors"
	"os"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestResolveExplicitDeviceSkipsProbe(t *testing.T) {
	probed := false
	p := ProberFunc(func() (bool, error) { probed = true; return true, nil })
	require.Equal(t, CPU, Resolve(CPU, p, zerolog.Nop()))
	require.Equal(t, GPU, Resolve(GPU, p, zerolog.Nop()))
	require.False(t, probed)
}

func TestResolveKeepsUnknownExplicitDevice(t *testing.T) {
	probed := false
	p := ProberFunc(func() (bool, error) { probed = true; return false, nil })
	require.Equal(t, Device("cuda"), Resolve("cuda", p, zerolog.Nop()))
	require.False(t, probed)
}

func TestResolveAuto(t *testing.T) {
	yes := ProberFunc(func() (bool, error) { return true, nil })
	no := ProberFunc(func() (bool, error) { return false, nil })
	broken := ProberFunc(func() (bool, error) { return true, errors.New("driver crashed") })

	require.Equal(t, GPU, Resolve(Auto, yes, zerolog.Nop()))
	require.Equal(t, GPU, Resolve("", yes, zerolog.Nop()))
	require.Equal(t, CPU, Resolve(Auto, no, zerolog.Nop()))
	require.Equal(t, CPU, Resolve(Auto, broken, zerolog.Nop()))
	require.Equal(t, CPU, Resolve(Auto, nil, zerolog.Nop()))
}

func TestCUDAProber(t *testing.T) {
	present := func(string) (os.FileInfo, error) { return nil, nil }
	absent := func(string) (os.FileInfo, error) { return nil, os.ErrNotExist }
	noEnv := func(string) (string, bool) { return "", false }

	ok, err := CUDAProber{Lookup: noEnv, Stat: present}.AcceleratorAvailable()
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = CUDAProber{Lookup: noEnv, Stat: absent}.AcceleratorAvailable()
	require.NoError(t, err)
	require.False(t, ok)

	hidden := func(string) (string, bool) { return "-1", true }
	ok, err = CUDAProber{Lookup: hidden, Stat: present}.AcceleratorAvailable()
	require.NoError(t, err)
	require.False(t, ok)

	denied := func(string) (os.FileInfo, error) { return nil, os.ErrPermission }
	ok, err = CUDAProber{Lookup: noEnv, Stat: denied}.AcceleratorAvailable()
	require.Error(t, err)
	require.False(t, ok)
}
