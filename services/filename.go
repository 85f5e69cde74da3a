package services

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
	"unicode"
)

const (
	// MaxComponentLength bounds each half of "{channel} - {title}", in runes.
	MaxComponentLength = 50
	// RecencyWindow is how recent a fallback output candidate must be.
	RecencyWindow = 60 * time.Second
)

const illegalFilenameChars = `<>:"/\|?*`

// SanitizeComponent makes s safe to use inside a file name.
// Applying it twice yields the same result as applying it once.
func SanitizeComponent(s string) string {
	cleaned := strings.Map(func(r rune) rune {
		switch {
		case strings.ContainsRune(illegalFilenameChars, r):
			return -1
		case unicode.IsSpace(r):
			return ' '
		case unicode.IsControl(r):
			return -1
		}
		return r
	}, s)

	cleaned = strings.Join(strings.Fields(cleaned), " ")

	runes := []rune(cleaned)
	if len(runes) > MaxComponentLength {
		cleaned = strings.TrimSpace(string(runes[:MaxComponentLength]))
	}
	return cleaned
}

// BuildBaseName derives "{channel} - {title}" from sanitized components
func BuildBaseName(channel, title string) string {
	channel = SanitizeComponent(channel)
	title = SanitizeComponent(title)

	switch {
	case channel != "" && title != "":
		return channel + " - " + title
	case title != "":
		return title
	default:
		return channel
	}
}

// NameReserver hands out base names that are unique in a directory across
// in-flight jobs, so two identical submissions never write the same file.
type NameReserver struct {
	mu       sync.Mutex
	reserved map[string]struct{}
	stat     func(name string) (os.FileInfo, error)
}

// NewNameReserver creates an empty reserver
func NewNameReserver() *NameReserver {
	return &NameReserver{
		reserved: make(map[string]struct{}),
		stat:     os.Stat,
	}
}

// Reserve returns base, or base with a " (n)" suffix, such that neither a
// file dir/<name><ext> exists nor another job holds the name.
func (r *NameReserver) Reserve(dir, base, ext string) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	for n := 1; ; n++ {
		candidate := base
		if n > 1 {
			candidate = fmt.Sprintf("%s (%d)", base, n)
		}
		key := reservationKey(dir, candidate)
		if _, taken := r.reserved[key]; taken {
			continue
		}
		if _, err := r.stat(filepath.Join(dir, candidate+ext)); err == nil {
			continue
		}
		r.reserved[key] = struct{}{}
		return candidate
	}
}

// Release frees a name returned by Reserve
func (r *NameReserver) Release(dir, name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.reserved, reservationKey(dir, name))
}

// Reserved reports whether an in-flight job holds name in dir
func (r *NameReserver) Reserved(dir, name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, taken := r.reserved[reservationKey(dir, name)]
	return taken
}

func reservationKey(dir, name string) string {
	return strings.ToLower(filepath.Join(dir, name))
}

// ResolveOutput locates the file a tool produced for base in dir.
// It prefers dir/<base><ext>, then an <ext> file named after base with a
// yt-dlp " [id]" or ".variant" suffix, then the newest <ext> file modified
// within window of now.
func ResolveOutput(dir, base, ext string, window time.Duration, now time.Time) (string, error) {
	exact := filepath.Join(dir, base+ext)
	if info, err := os.Stat(exact); err == nil && !info.IsDir() {
		return exact, nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("%w: read %s: %v", ErrArtifactNotFound, dir, err)
	}

	var (
		newestPath string
		newestTime time.Time
	)
	for _, entry := range entries {
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), ext) {
			continue
		}
		if matchesBase(entry.Name(), base) {
			return filepath.Join(dir, entry.Name()), nil
		}

		info, err := entry.Info()
		if err != nil {
			continue
		}
		modTime := info.ModTime()
		if now.Sub(modTime) > window || modTime.Before(newestTime) {
			continue
		}
		newestPath = filepath.Join(dir, entry.Name())
		newestTime = modTime
	}

	if newestPath == "" {
		return "", fmt.Errorf("%w: no %s file for %q in %s", ErrArtifactNotFound, ext, base, dir)
	}
	return newestPath, nil
}

// RemovePartials deletes leftovers of an interrupted run for name in dir:
// yt-dlp ".part"/".ytdl" fragments and unfinished ".tagging" files.
func RemovePartials(dir, name string) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}

	var removed []string
	for _, entry := range entries {
		file := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(file, name+".") {
			continue
		}
		rest := strings.TrimPrefix(file, name)
		if !strings.HasSuffix(rest, ".part") && !strings.HasSuffix(rest, ".ytdl") && !strings.HasPrefix(rest, ".tagging.") {
			continue
		}
		path := filepath.Join(dir, file)
		if err := os.Remove(path); err == nil {
			removed = append(removed, path)
		}
	}
	return removed
}
