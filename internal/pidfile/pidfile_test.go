package pidfile

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// useTempPIDFile points the tracker at a scratch file and treats listed PIDs as alive
func useTempPIDFile(t *testing.T, live ...int32) {
	t.Helper()
	oldPath, oldAlive := pidFilePath, alive
	pidFilePath = filepath.Join(t.TempDir(), ".p2p-ci")
	alive = func(pid int32) bool {
		for _, p := range live {
			if p == pid {
				return true
			}
		}
		return false
	}
	t.Cleanup(func() { pidFilePath, alive = oldPath, oldAlive })
}

func TestRegisterListUnregister(t *testing.T) {
	self := int32(os.Getpid())
	useTempPIDFile(t, self)

	require.NoError(t, Register("server", "0.0.0.0:7734"))
	require.NoError(t, Register("server", "0.0.0.0:7735"))

	records, err := List()
	require.NoError(t, err)
	require.Len(t, records, 1, "re-registering replaces the record")
	assert.Equal(t, Record{PID: self, Role: "server", Addr: "0.0.0.0:7735"}, records[0])

	require.NoError(t, Unregister())
	records, err = List()
	require.NoError(t, err)
	assert.Empty(t, records)
}

// TestListDropsDeadProcesses tests that stale records are pruned from the file
func TestListDropsDeadProcesses(t *testing.T) {
	useTempPIDFile(t, 100)

	require.NoError(t, WithLock(pidFilePath, func(file *os.File) error {
		return writePIDFile(file, []Record{{PID: 100, Role: "peer"}, {PID: 200, Role: "peer"}})
	}))

	records, err := List()
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, int32(100), records[0].PID)

	data, err := os.ReadFile(pidFilePath)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "200")
}

func TestKillRejectsUnknownPID(t *testing.T) {
	useTempPIDFile(t)
	assert.Error(t, Kill(424242))
}

// TestWithLockSerializes tests that concurrent holders see each other's writes
func TestWithLockSerializes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "counter")
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := WithLock(path, func(file *os.File) error {
				data := make([]byte, 64)
				n, _ := file.Read(data)
				file.Truncate(0)
				file.Seek(0, 0)
				_, err := file.WriteString(string(data[:n]) + "x")
				return err
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Len(t, string(data), 10)
}
