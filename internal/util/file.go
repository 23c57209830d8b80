package util

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"
)

var ErrFileTooLarge = errors.New("file too large")

// SniffMimeType reads up to 512 bytes and returns the detected content type.
func SniffMimeType(reader io.Reader) (string, error) {
	buffer := make([]byte, 512)
	n, err := io.ReadFull(reader, buffer)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return "", err
	}
	return http.DetectContentType(buffer[:n]), nil
}

// ValidateMimeType checks the sniffed type against full types or prefixes such as "video/".
func ValidateMimeType(reader io.Reader, allowedTypes []string) (string, error) {
	mimeType, err := SniffMimeType(reader)
	if err != nil {
		return "", err
	}

	for _, allowed := range allowedTypes {
		if strings.HasPrefix(mimeType, allowed) {
			return mimeType, nil
		}
	}

	return mimeType, errors.New("invalid file type: " + mimeType)
}

func hasExtension(name string, allowed []string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, a := range allowed {
		if ext == a {
			return true
		}
	}
	return false
}

// ValidateProofImage accepts a JPEG, PNG or WEBP slip no larger than maxBytes.
// The type passes when either the sniffed content or the file extension matches.
func ValidateProofImage(fh *multipart.FileHeader, maxBytes int64) (string, error) {
	if fh.Size > maxBytes {
		return "", fmt.Errorf("%w: %d bytes exceeds limit of %d MB", ErrFileTooLarge, fh.Size, maxBytes/(1024*1024))
	}

	f, err := fh.Open()
	if err != nil {
		return "", err
	}
	defer f.Close()

	mimeType, sniffErr := ValidateMimeType(f, AllowedProofTypes)
	if sniffErr == nil {
		return mimeType, nil
	}
	if hasExtension(fh.Filename, AllowedProofExtensions) {
		return mimeType, nil
	}
	return mimeType, errors.New("only JPEG, PNG or WEBP images are allowed")
}

// ProofExtension picks the stored file extension for an accepted proof image.
func ProofExtension(mimeType, filename string) string {
	switch mimeType {
	case MimeJPEG:
		return ".jpg"
	case MimePNG:
		return ".png"
	case MimeWEBP:
		return ".webp"
	}
	if ext := strings.ToLower(filepath.Ext(filename)); ext != "" {
		return ext
	}
	return ".bin"
}

func IsVideoFile(filename string) bool {
	return hasExtension(filename, AllowedVideoExtensions)
}
