// Package filestore turns downloaded byte streams into files on disk.
//
// Portal-suggested filenames routinely contain characters that are illegal on
// local filesystems ("Report: Term 1/2024.csv"), and bulk exports arrive as
// zip archives that need selective unpacking, so nothing gets written without
// passing through here first.
package filestore

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// File is a materialized download: the sanitized name it was saved under and
// where it ended up.
type File struct {
	Name string
	Path string
}

// Sanitize makes a portal-suggested filename safe for local filesystems:
// slashes become spaces (they delimit words, "Term 1/2024"), the rest of the
// forbidden set \ : * ? < > | is stripped, and runs of whitespace collapse
// into a single space.
func Sanitize(name string) string {
	var b strings.Builder
	b.Grow(len(name))

	lastWasSpace := false
	for _, r := range name {
		switch r {
		case '\\', ':', '*', '?', '<', '>', '|':
			continue
		case '/':
			r = ' '
		}
		if r == ' ' || r == '\t' || r == '\n' || r == '\r' {
			if lastWasSpace {
				continue
			}
			b.WriteRune(' ')
			lastWasSpace = true
			continue
		}
		b.WriteRune(r)
		lastWasSpace = false
	}
	return strings.TrimSpace(b.String())
}

// Save writes contents to dir under the sanitized name.
func Save(contents []byte, dir, name string) (File, error) {
	name = Sanitize(name)
	path := filepath.Join(dir, name)
	err := os.WriteFile(path, contents, 0644)
	if err != nil {
		return File{}, err
	}
	return File{Name: name, Path: path}, nil
}

// dateSuffixed inserts an ISO yyyy-mm-dd suffix before the file extension,
// e.g. "Teacher.csv" -> "Teacher 2024-03-01.csv".
func dateSuffixed(name string, date time.Time) string {
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	return fmt.Sprintf("%s %s%s", stem, date.Format("2006-01-02"), ext)
}

// ExtractMembers extracts the requested members of a zip archive into dir and
// deletes the archive once every member is out. A non-zero date stamps each
// extracted filename before its extension. Pre-existing files at the
// destination are removed first, so re-running an export overwrites the
// previous day's files instead of failing.
func ExtractMembers(archivePath string, members []string, dir string, date time.Time) ([]File, error) {
	out, err := extractMembers(archivePath, members, dir, date)
	if err != nil {
		return out, err
	}
	err = os.Remove(archivePath)
	if err != nil {
		return out, err
	}
	return out, nil
}

func extractMembers(archivePath string, members []string, dir string, date time.Time) ([]File, error) {
	reader, err := zip.OpenReader(archivePath)
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	var out []File
	for _, member := range members {
		entry, err := reader.Open(member)
		if err != nil {
			return out, fmt.Errorf("archive member %q: %w", member, err)
		}

		name := Sanitize(member)
		if !date.IsZero() {
			name = dateSuffixed(name, date)
		}
		path := filepath.Join(dir, name)

		err = os.Remove(path)
		if err != nil && !os.IsNotExist(err) {
			entry.Close()
			return out, err
		}

		dest, err := os.Create(path)
		if err != nil {
			entry.Close()
			return out, err
		}
		_, err = io.Copy(dest, entry)
		entry.Close()
		if closeErr := dest.Close(); err == nil {
			err = closeErr
		}
		if err != nil {
			return out, err
		}

		out = append(out, File{Name: name, Path: path})
	}
	return out, nil
}
