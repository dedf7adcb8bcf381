package checkpoint

import (
	"fmt"

	"golang.org/x/sys/unix"

	"conveyor/internal/failures"
)

// freeSpaceFloor is the minimum free-space ratio required before a save is
// allowed to proceed (0.02 => refuse when the filesystem is over 98% full).
const freeSpaceFloor = 0.02

// statfsFunc allows tests to stub filesystem stats.
type statfsFunc func(path string) (total uint64, free uint64, err error)

func (s *Store) ensureFreeSpace() error {
	total, free, err := s.statfs(s.dir)
	if err != nil {
		return fmt.Errorf("statfs checkpoint directory: %w", err)
	}
	if total == 0 {
		return nil
	}
	if ratio := float64(free) / float64(total); ratio < freeSpaceFloor {
		return failures.Wrap(failures.ErrCheckpoint, "", "save",
			fmt.Sprintf("checkpoint filesystem nearly full (%.1f%% free)", ratio*100), nil)
	}
	return nil
}

func realStatfs(path string) (uint64, uint64, error) {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return 0, 0, err
	}
	total := stat.Blocks * uint64(stat.Bsize)
	free := stat.Bavail * uint64(stat.Bsize)
	return total, free, nil
}
