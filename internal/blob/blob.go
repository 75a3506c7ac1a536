package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// Slot names an icon position on a provider.
type Slot string

const (
	SlotLight   Slot = "light"
	SlotDark    Slot = "dark"
	SlotBgLight Slot = "bg_light"
	SlotBgDark  Slot = "bg_dark"
)

func (s Slot) Valid() bool {
	switch s {
	case SlotLight, SlotDark, SlotBgLight, SlotBgDark:
		return true
	}
	return false
}

// Extensions accepted for icon uploads.
var Extensions = []string{"png", "jpg", "jpeg", "webp", "gif"}

var ErrUnsupported = errors.New("unsupported icon")

// MaxSize caps a single upload.
const MaxSize = 5 << 20

// Store saves provider icons and returns their public URLs.
type Store interface {
	Put(ctx context.Context, providerID string, slot Slot, ext string, r io.Reader) (string, error)
	Delete(ctx context.Context, providerID string, slot Slot) error
}

// Key is partners/{providerID}/icons/{slot}.{ext}.
func Key(providerID string, slot Slot, ext string) string {
	return path.Join("partners", providerID, "icons", string(slot)+"."+ext)
}

// NormalizeExt lowercases ext, strips a leading dot and checks it is allowed.
func NormalizeExt(ext string) (string, error) {
	ext = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
	for _, e := range Extensions {
		if e == ext {
			return ext, nil
		}
	}
	return "", fmt.Errorf("%w: extension %q", ErrUnsupported, ext)
}

// ExtForContentType maps an image MIME type to an extension.
func ExtForContentType(ct string) (string, error) {
	ct = strings.ToLower(strings.TrimSpace(strings.SplitN(ct, ";", 2)[0]))
	switch ct {
	case "image/png":
		return "png", nil
	case "image/jpeg", "image/jpg":
		return "jpg", nil
	case "image/webp":
		return "webp", nil
	case "image/gif":
		return "gif", nil
	}
	return "", fmt.Errorf("%w: content type %q", ErrUnsupported, ct)
}

// Dir stores blobs under Root and serves them from BaseURL.
type Dir struct {
	Root    string
	BaseURL string
}

func (d Dir) Put(ctx context.Context, providerID string, slot Slot, ext string, r io.Reader) (string, error) {
	if !slot.Valid() {
		return "", fmt.Errorf("%w: slot %q", ErrUnsupported, slot)
	}
	ext, err := NormalizeExt(ext)
	if err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	// a new upload replaces any previous extension in the slot
	if err := d.Delete(ctx, providerID, slot); err != nil {
		return "", err
	}
	key := Key(providerID, slot, ext)
	full := filepath.Join(d.Root, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", err
	}
	tmp, err := os.CreateTemp(filepath.Dir(full), ".upload-*")
	if err != nil {
		return "", err
	}
	defer os.Remove(tmp.Name())
	n, err := io.Copy(tmp, io.LimitReader(r, MaxSize+1))
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return "", err
	}
	if n > MaxSize {
		return "", fmt.Errorf("%w: larger than %d bytes", ErrUnsupported, MaxSize)
	}
	if err := os.Rename(tmp.Name(), full); err != nil {
		return "", err
	}
	return d.URL(key), nil
}

// Delete removes the slot under every allowed extension.
func (d Dir) Delete(ctx context.Context, providerID string, slot Slot) error {
	for _, ext := range Extensions {
		full := filepath.Join(d.Root, filepath.FromSlash(Key(providerID, slot, ext)))
		if err := os.Remove(full); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
	}
	return nil
}

func (d Dir) URL(key string) string {
	return strings.TrimRight(d.BaseURL, "/") + "/" + key
}
