// File: internal/concurrency/affinity_linux.go
//go:build linux
// +build linux

//
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Linux CPU/NUMA affinity via sysfs topology files and
// golang.org/x/sys/unix.SchedSetaffinity — no cgo/libnuma dependency needed.

package concurrency

import (
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

const sysNodeDir = "/sys/devices/system/node"

// platformNUMANodes enumerates /sys/devices/system/node/nodeN entries.
func platformNUMANodes() int {
	entries, err := os.ReadDir(sysNodeDir)
	if err != nil {
		return 1
	}
	n := 0
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), "node") {
			n++
		}
	}
	if n == 0 {
		return 1
	}
	return n
}

// platformCurrentNUMANodeID reports the NUMA node of the CPU the calling
// goroutine's OS thread is currently running on.
func platformCurrentNUMANodeID() int {
	id, err := currentCPU()
	if err != nil {
		return -1
	}
	node, err := cpuNUMANode(id)
	if err != nil {
		return -1
	}
	return node
}

// platformPreferredCPUID returns the lowest-indexed CPU belonging to the
// given NUMA node, or 0 if the node is unknown.
func platformPreferredCPUID(numaNode int) int {
	if numaNode < 0 {
		return 0
	}
	cpus, err := nodeCPUList(numaNode)
	if err != nil || len(cpus) == 0 {
		return 0
	}
	sort.Ints(cpus)
	return cpus[0]
}

// platformPinCurrentThread locks the calling goroutine to its OS thread and
// restricts it to the given CPU (NUMA node is implied by CPU choice).
func platformPinCurrentThread(numaNode, cpuID int) error {
	runtime.LockOSThread()
	if cpuID < 0 {
		cpuID = platformPreferredCPUID(numaNode)
	}
	var set unix.CPUSet
	set.Zero()
	set.Set(cpuID)
	return unix.SchedSetaffinity(0, &set)
}

// platformUnpinCurrentThread clears any CPU restriction on the calling
// thread and releases the OS-thread lock.
func platformUnpinCurrentThread() error {
	defer runtime.UnlockOSThread()
	var set unix.CPUSet
	ncpu := runtime.NumCPU()
	set.Zero()
	for i := 0; i < ncpu; i++ {
		set.Set(i)
	}
	return unix.SchedSetaffinity(0, &set)
}

func currentCPU() (int, error) {
	return unix.SchedGetcpu()
}

func cpuNUMANode(cpu int) (int, error) {
	entries, err := os.ReadDir(sysNodeDir)
	if err != nil {
		return 0, err
	}
	for _, e := range entries {
		if !strings.HasPrefix(e.Name(), "node") {
			continue
		}
		idStr := strings.TrimPrefix(e.Name(), "node")
		nodeID, err := strconv.Atoi(idStr)
		if err != nil {
			continue
		}
		if _, err := os.Stat(filepath.Join(sysNodeDir, e.Name(), "cpu"+strconv.Itoa(cpu))); err == nil {
			return nodeID, nil
		}
	}
	return 0, os.ErrNotExist
}

func nodeCPUList(node int) ([]int, error) {
	dir := filepath.Join(sysNodeDir, "node"+strconv.Itoa(node))
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var cpus []int
	for _, e := range entries {
		name := e.Name()
		if !strings.HasPrefix(name, "cpu") {
			continue
		}
		idStr := strings.TrimPrefix(name, "cpu")
		id, err := strconv.Atoi(idStr)
		if err != nil {
			continue
		}
		cpus = append(cpus, id)
	}
	return cpus, nil
}
