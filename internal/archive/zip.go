// Package archive packages annotated frames into a ZIP file.
package archive

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// ZipDirectory compresses every regular file under srcDir into zipPath.
// Entry names are slash-separated paths relative to srcDir. An empty
// directory yields a valid empty archive. Returns the number of entries.
func ZipDirectory(srcDir, zipPath string) (int, error) {
	absZip, err := filepath.Abs(zipPath)
	if err != nil {
		return 0, err
	}

	zipFile, err := os.Create(zipPath)
	if err != nil {
		return 0, fmt.Errorf("failed to create archive: %w", err)
	}
	defer zipFile.Close()

	writer := zip.NewWriter(zipFile)
	entries := 0

	err = filepath.Walk(srcDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		if abs, err := filepath.Abs(path); err == nil && abs == absZip {
			return nil
		}

		relPath, err := filepath.Rel(srcDir, path)
		if err != nil {
			return err
		}

		fh, err := zip.FileInfoHeader(info)
		if err != nil {
			return err
		}
		fh.Name = filepath.ToSlash(relPath)
		fh.Method = zip.Deflate

		w, err := writer.CreateHeader(fh)
		if err != nil {
			return fmt.Errorf("failed to add %s: %w", fh.Name, err)
		}

		file, err := os.Open(path)
		if err != nil {
			return err
		}
		defer file.Close()

		if _, err := io.Copy(w, file); err != nil {
			return fmt.Errorf("failed to write %s: %w", fh.Name, err)
		}
		entries++
		return nil
	})
	if err != nil {
		writer.Close()
		return entries, fmt.Errorf("failed to archive %s: %w", srcDir, err)
	}

	if err := writer.Close(); err != nil {
		return entries, fmt.Errorf("failed to finalize archive: %w", err)
	}
	if err := zipFile.Close(); err != nil {
		return entries, fmt.Errorf("failed to finalize archive: %w", err)
	}
	return entries, nil
}
