package system

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

func getRAMInfo() (*RAMInfo, error) {
	total, available, err := readMeminfo("/proc/meminfo")
	if err == nil && total > 0 {
		return &RAMInfo{TotalBytes: total, AvailableBytes: available}, nil
	}

	// Kernels without MemAvailable (or a missing procfs) fall back to sysinfo
	var si unix.Sysinfo_t
	if serr := unix.Sysinfo(&si); serr != nil {
		return nil, fmt.Errorf("reading memory info: %w", serr)
	}
	unit := int64(si.Unit)
	return &RAMInfo{
		TotalBytes:     int64(si.Totalram) * unit,
		AvailableBytes: (int64(si.Freeram) + int64(si.Bufferram)) * unit,
	}, nil
}

func readMeminfo(path string) (total, available int64, err error) {
	file, err := os.Open(path)
	if err != nil {
		return 0, 0, err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 2 {
			continue
		}
		kb, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			continue
		}
		switch strings.TrimSuffix(fields[0], ":") {
		case "MemTotal":
			total = kb * 1024
		case "MemAvailable":
			available = kb * 1024
		}
	}
	if err := scanner.Err(); err != nil {
		return 0, 0, err
	}
	if available == 0 {
		return 0, 0, fmt.Errorf("%s has no MemAvailable", path)
	}
	return total, available, nil
}
