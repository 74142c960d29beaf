package drawsync

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"
)

const (
	maxEntryBytes        = 128 << 20
	fallbackEntryName    = "archive"
	workbookContentTypes = "[Content_Types].xml"
	workbookPart         = "xl/workbook.xml"
)

type archiveEntry struct {
	name    string
	content []byte
}

type entryFailure struct {
	name string
	err  error
}

// archiveEntries lists the files to parse from one payload. A zip yields its non-empty files; anything else,
// including an xlsx workbook, is a single entry named after the download URL.
func archiveEntries(downloadURL string, payload []byte) ([]archiveEntry, []entryFailure) {
	reader, err := zip.NewReader(bytes.NewReader(payload), int64(len(payload)))
	if err != nil || isWorkbookPackage(reader) {
		return []archiveEntry{{name: entryNameFromURL(downloadURL), content: payload}}, nil
	}

	entries := make([]archiveEntry, 0, len(reader.File))
	failures := make([]entryFailure, 0)
	for _, file := range reader.File {
		if file.FileInfo().IsDir() || file.UncompressedSize64 == 0 {
			continue
		}
		content, err := readEntry(file)
		if err != nil {
			failures = append(failures, entryFailure{name: file.Name, err: err})
			continue
		}
		if len(content) == 0 {
			continue
		}
		entries = append(entries, archiveEntry{name: file.Name, content: content})
	}
	return entries, failures
}

func readEntry(file *zip.File) ([]byte, error) {
	if file.UncompressedSize64 > maxEntryBytes {
		return nil, fmt.Errorf("entry exceeds %d bytes", maxEntryBytes)
	}
	handle, err := file.Open()
	if err != nil {
		return nil, err
	}
	defer handle.Close()
	return io.ReadAll(io.LimitReader(handle, maxEntryBytes))
}

func isWorkbookPackage(reader *zip.Reader) bool {
	hasContentTypes := false
	hasWorkbook := false
	for _, file := range reader.File {
		switch file.Name {
		case workbookContentTypes:
			hasContentTypes = true
		case workbookPart:
			hasWorkbook = true
		}
	}
	return hasContentTypes && hasWorkbook
}

func entryNameFromURL(downloadURL string) string {
	parsed, err := url.Parse(downloadURL)
	if err != nil {
		return fallbackEntryName
	}
	name := path.Base(parsed.Path)
	if name == "" || name == "." || name == "/" {
		return fallbackEntryName
	}
	if unescaped, err := url.PathUnescape(name); err == nil {
		name = unescaped
	}
	return strings.TrimSpace(name)
}
