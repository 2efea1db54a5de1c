package probe

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// ScreenFromDisplay extracts the display number from a $DISPLAY value
// such as ":0", "localhost:10.0" or "unix:1". Unparseable values map to 0.
func ScreenFromDisplay(display string) int {
	i := strings.LastIndex(display, ":")
	if i < 0 {
		return 0
	}
	num := display[i+1:]
	if dot := strings.Index(num, "."); dot >= 0 {
		num = num[:dot]
	}
	n, err := strconv.Atoi(num)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// LatestXorgLog expands patterns for screen and returns the most recently
// modified file that exists. "~/" is resolved against home.
func LatestXorgLog(fsys SysFS, patterns []string, screen int, home string) (string, error) {
	var (
		best    string
		bestMod int64
	)
	for _, p := range patterns {
		path := p
		path = strings.ReplaceAll(path, "%d", strconv.Itoa(screen))
		if strings.HasPrefix(path, "~/") {
			if home == "" {
				continue
			}
			path = filepath.Join(home, path[2:])
		}
		fi, err := fsys.Stat(path)
		if err != nil || fi.IsDir() {
			continue
		}
		if mod := fi.ModTime().UnixNano(); best == "" || mod > bestMod {
			best, bestMod = path, mod
		}
	}
	if best == "" {
		return "", os.ErrNotExist
	}
	return best, nil
}

// Personal.AI order the ending
