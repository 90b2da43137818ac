package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/schollz/progressbar/v3"

	"github.com/peerline/peerline/internal/chatlog"
)

// printMessage renders one log entry to stdout. Inbound files are
// saved under dir as a side effect so their payload survives the
// process.
func printMessage(m chatlog.Message, dir string) {
	switch m.Kind {
	case chatlog.KindNotice:
		fmt.Printf("* %s\n", m.Content)
	case chatlog.KindText:
		if m.Role == chatlog.RoleSelf {
			fmt.Printf("you: %s\n", m.Content)
		} else {
			fmt.Printf("peer: %s\n", m.Content)
		}
	case chatlog.KindFile:
		if m.Role == chatlog.RoleSelf {
			fmt.Printf("you sent %s (%d bytes)\n", m.FileName, m.FileSize)
			return
		}
		path, err := savePayload(dir, m.FileName, m.Payload)
		if err != nil {
			fmt.Printf("could not save %s: %v\n", m.FileName, err)
			return
		}
		fmt.Printf("peer sent %s (%d bytes), saved to %s\n", m.FileName, m.FileSize, path)
	}
}

// savePayload writes an inbound file under dir. The sender picked the
// name, so it is flattened to its base before touching the
// filesystem, and existing files are never overwritten.
func savePayload(dir, name string, payload []byte) (string, error) {
	name = filepath.Base(name)
	if name == "." || name == "/" || name == "" {
		name = "unnamed"
	}
	path := uniquePath(dir, name)
	if err := os.WriteFile(path, payload, 0o644); err != nil {
		return "", err
	}
	return path, nil
}

func uniquePath(dir, name string) string {
	path := filepath.Join(dir, name)
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	for i := 1; ; i++ {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return path
		}
		path = filepath.Join(dir, fmt.Sprintf("%s-%d%s", stem, i, ext))
	}
}

// newProgressPrinter adapts the transfer progress hook to a terminal
// progress bar. A link carries one transfer at a time, so a single
// bar is enough.
func newProgressPrinter(verb string) func(name string, done, total int) {
	var mu sync.Mutex
	var bar *progressbar.ProgressBar
	var barName string

	return func(name string, done, total int) {
		mu.Lock()
		defer mu.Unlock()

		if bar == nil || barName != name {
			bar = progressbar.DefaultBytes(int64(total), verb+" "+name)
			barName = name
		}
		_ = bar.Set64(int64(done))
		if done >= total {
			_ = bar.Finish()
			bar = nil
		}
	}
}
