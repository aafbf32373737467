package system

import (
	"fmt"

	"golang.org/x/sys/unix"
)

func getRAMInfo() (*RAMInfo, error) {
	total, err := unix.SysctlUint64("hw.memsize")
	if err != nil {
		return nil, fmt.Errorf("reading hw.memsize: %w", err)
	}

	// free plus inactive pages approximate what can be reclaimed
	free, err := unix.SysctlUint32("vm.page_free_count")
	if err != nil {
		return nil, fmt.Errorf("reading vm.page_free_count: %w", err)
	}
	inactive, _ := unix.SysctlUint32("vm.page_inactive_count")
	pageSize := int64(unix.Getpagesize())

	return &RAMInfo{
		TotalBytes:     int64(total),
		AvailableBytes: (int64(free) + int64(inactive)) * pageSize,
	}, nil
}
