package fstools

import (
	"bufio"
	"os"
	"strings"
)

// maxContentScanBytes bounds how much of one file content:"..." will read,
// so a single huge file can't stall a search.
const maxContentScanBytes = 4 << 20

// checkContent greps path for literal (case-insensitive), line by line, up
// to maxContentScanBytes.
func checkContent(path, literal string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()

	needle := strings.ToLower(literal)
	reader := bufio.NewReaderSize(f, 64*1024)
	var total int
	for {
		line, err := reader.ReadString('\n')
		total += len(line)
		if strings.Contains(strings.ToLower(line), needle) {
			return true
		}
		if err != nil || total > maxContentScanBytes {
			return false
		}
	}
}

// checkTag reports whether path carries every tag in tags. OS-level file
// tags (macOS Finder tags, Windows file properties) have no library within
// reach of this module, so a tag: filter deliberately never matches rather
// than guessing at a platform API.
func checkTag(_ string, _ []string) bool { return false }
