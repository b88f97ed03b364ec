package mirrorlist

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/morikuni/failure/v2"
)

// Writer publishes mirror sets under Dir, one file per network.
type Writer struct {
	Dir string
	Now func() time.Time
}

// NewWriter creates a Writer for dir using the wall clock.
func NewWriter(dir string) *Writer {
	return &Writer{Dir: dir, Now: time.Now}
}

// Write replaces the network's published file with the contents of set and
// returns its path. Readers see either the old file or the new one.
func (w *Writer) Write(set *MirrorSet) (string, error) {
	dest := filepath.Join(w.Dir, set.Network.FileName())
	fail := func(err error, msg string) (string, error) {
		return "", failure.Translate(err, ErrOutputWriteFailure,
			failure.Message(msg),
			failure.Context{"path": dest})
	}

	if err := os.MkdirAll(w.Dir, 0o755); err != nil {
		return fail(err, "creating output directory")
	}

	tmp, err := os.CreateTemp(w.Dir, "."+set.Network.FileName()+".*")
	if err != nil {
		return fail(err, "creating temporary file")
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			tmp.Close()
			os.Remove(tmpPath)
		}
	}()

	bw := bufio.NewWriter(tmp)
	w.render(bw, set)
	if err := bw.Flush(); err != nil {
		return fail(err, "writing mirror list")
	}
	if err := tmp.Chmod(0o644); err != nil {
		return fail(err, "setting file mode")
	}
	if err := tmp.Close(); err != nil {
		return fail(err, "closing temporary file")
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		return fail(err, "publishing mirror list")
	}
	committed = true
	return dest, nil
}

func (w *Writer) render(bw *bufio.Writer, set *MirrorSet) {
	now := time.Now
	if w.Now != nil {
		now = w.Now
	}
	fmt.Fprintf(bw, "# Mirror list generated from %s\n", set.Network.ListURL)
	fmt.Fprintf(bw, "# Generated: %s\n\n", now().UTC().Format(time.DateOnly))
	fmt.Fprintf(bw, "Primary: %s\n\n", set.Network.PrimaryURL)
	for _, e := range set.Entries() {
		fmt.Fprintf(bw, "%s: %s\n", e.RegionKey, e.URL)
	}
}
