// CRC: crc-ProcessTracker.md, Spec: main.md
package pidfile

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/process"
)

// ProcessName is matched against process names to recognize p2p-ci instances
const ProcessName = "p2p-ci"

var pidFilePath = filepath.Join(os.TempDir(), ".p2p-ci")

// Record is one tracked process
type Record struct {
	PID  int32  `json:"pid"`
	Role string `json:"role"`
	Addr string `json:"addr,omitempty"`
}

// PIDFile represents the JSON structure of the PID tracking file
// CRC: crc-ProcessTracker.md
type PIDFile struct {
	Processes []Record `json:"processes"`
}

var mu sync.Mutex

// alive reports whether pid is a running p2p-ci process; replaced in tests
var alive = isP2PCIProcess

// WithLock opens path (creating it), holds an exclusive file lock for the
// duration of fn and closes it afterwards. The file is positioned at 0.
func WithLock(path string, fn func(*os.File) error) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer file.Close()

	if err := lockFile(file); err != nil {
		return err
	}
	defer unlockFile(file)

	return fn(file)
}

// withLockedPIDFile reads and verifies the tracked records under the lock
func withLockedPIDFile(fn func(*os.File, []Record) error) error {
	return WithLock(pidFilePath, func(file *os.File) error {
		var records []Record
		stat, err := file.Stat()
		if err != nil {
			return err
		}
		if stat.Size() > 0 {
			var pf PIDFile
			if err := json.NewDecoder(file).Decode(&pf); err == nil {
				records = pf.Processes
			}
		}

		valid, err := verify(file, records)
		if err != nil {
			return err
		}
		return fn(file, valid)
	})
}

func isP2PCIProcess(pid int32) bool {
	proc, err := process.NewProcess(pid)
	if err != nil {
		return false
	}

	running, err := proc.IsRunning()
	if err != nil || !running {
		return false
	}

	name, err := proc.Name()
	if err != nil {
		return false
	}

	return strings.Contains(name, ProcessName)
}

func writePIDFile(file *os.File, records []Record) error {
	if err := file.Truncate(0); err != nil {
		return err
	}
	if _, err := file.Seek(0, 0); err != nil {
		return err
	}

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	return encoder.Encode(&PIDFile{Processes: records})
}

// verify drops records whose process is gone and rewrites the file if anything changed
func verify(file *os.File, records []Record) ([]Record, error) {
	valid := []Record{}
	for _, r := range records {
		if alive(r.PID) {
			valid = append(valid, r)
		}
	}

	if len(valid) != len(records) {
		if err := writePIDFile(file, valid); err != nil {
			return nil, err
		}
	}
	return valid, nil
}

func without(records []Record, pid int32) []Record {
	filtered := []Record{}
	for _, r := range records {
		if r.PID != pid {
			filtered = append(filtered, r)
		}
	}
	return filtered
}

// Register records the current process with its role ("server" or "peer") and address
// CRC: crc-ProcessTracker.md
// Sequence: seq-server-startup.md
func Register(role, addr string) error {
	mu.Lock()
	defer mu.Unlock()

	current := int32(os.Getpid())
	return withLockedPIDFile(func(file *os.File, records []Record) error {
		records = append(without(records, current), Record{PID: current, Role: role, Addr: addr})
		return writePIDFile(file, records)
	})
}

// Unregister removes the current process from the tracking file
func Unregister() error {
	mu.Lock()
	defer mu.Unlock()

	current := int32(os.Getpid())
	return withLockedPIDFile(func(file *os.File, records []Record) error {
		return writePIDFile(file, without(records, current))
	})
}

// List returns all verified running p2p-ci processes
// CRC: crc-ProcessTracker.md
func List() ([]Record, error) {
	mu.Lock()
	defer mu.Unlock()

	var result []Record
	err := withLockedPIDFile(func(file *os.File, records []Record) error {
		result = records
		return nil
	})
	return result, err
}

// terminate sends SIGTERM and waits up to 5s before SIGKILL
func terminate(proc *process.Process) error {
	if err := proc.Terminate(); err != nil {
		if err := proc.Kill(); err != nil {
			return fmt.Errorf("failed to kill process: %w", err)
		}
		return nil
	}

	for i := 0; i < 50; i++ {
		running, err := proc.IsRunning()
		if err != nil || !running {
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}

	if running, err := proc.IsRunning(); err == nil && running {
		if err := proc.Kill(); err != nil {
			return fmt.Errorf("failed to force kill process: %w", err)
		}
	}
	return nil
}

// Kill terminates a specific PID if it's a running p2p-ci process
// CRC: crc-ProcessTracker.md
func Kill(pid int32) error {
	mu.Lock()
	defer mu.Unlock()

	if !alive(pid) {
		return fmt.Errorf("PID %d is not a running p2p-ci process", pid)
	}

	proc, err := process.NewProcess(pid)
	if err != nil {
		return fmt.Errorf("failed to get process: %w", err)
	}
	if err := terminate(proc); err != nil {
		return err
	}

	// best-effort
	withLockedPIDFile(func(file *os.File, records []Record) error {
		return writePIDFile(file, without(records, pid))
	})
	return nil
}

// KillAll terminates all tracked p2p-ci processes and returns how many were signalled
func KillAll() (int, error) {
	mu.Lock()
	defer mu.Unlock()

	var toKill []Record
	err := withLockedPIDFile(func(file *os.File, records []Record) error {
		toKill = records
		return writePIDFile(file, []Record{})
	})
	if err != nil {
		return 0, err
	}

	var wg sync.WaitGroup
	for _, r := range toKill {
		proc, err := process.NewProcess(r.PID)
		if err != nil {
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			terminate(proc)
		}()
	}
	wg.Wait()

	return len(toKill), nil
}

// CommandLine returns the command line for a process
func CommandLine(pid int32) (string, error) {
	proc, err := process.NewProcess(pid)
	if err != nil {
		return "", err
	}
	return proc.Cmdline()
}
