// Package qr renders pairing codes to PNG files so an operator can scan them
// straight from the session directory, without any UI attached.
package qr

import (
	"fmt"
	"os"
	"path/filepath"

	qrcode "github.com/skip2/go-qrcode"
)

const imageSize = 256

// WriteFile renders code as a QR PNG at path, creating parent dirs.
func WriteFile(path, code string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("create qr dir: %w", err)
	}
	if err := qrcode.WriteFile(code, qrcode.Medium, imageSize, path); err != nil {
		return fmt.Errorf("write qr image: %w", err)
	}
	return nil
}

// Remove deletes a previously written pairing image. Missing files are fine:
// the code may never have been rendered.
func Remove(path string) {
	_ = os.Remove(path)
}
