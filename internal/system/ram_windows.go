package system

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/windows"
)

func getRAMInfo() (*RAMInfo, error) {
	var status windows.MemoryStatusEx
	status.Length = uint32(unsafe.Sizeof(status))
	if err := windows.GlobalMemoryStatusEx(&status); err != nil {
		return nil, fmt.Errorf("GlobalMemoryStatusEx failed: %w", err)
	}
	return &RAMInfo{
		TotalBytes:     int64(status.TotalPhys),
		AvailableBytes: int64(status.AvailPhys),
	}, nil
}
