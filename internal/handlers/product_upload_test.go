package handlers

import (
	"bytes"
	"mime/multipart"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01")

func multipartImage(t *testing.T, filename string, content []byte) *multipart.FileHeader {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("image", filename)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	req := httptest.NewRequest("POST", "/api/products/x/images", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	require.NoError(t, req.ParseMultipartForm(10<<20))
	return req.MultipartForm.File["image"][0]
}

func TestSaveImageStoresUnderUploadDir(t *testing.T) {
	publicDir := t.TempDir()

	url, err := saveImage(multipartImage(t, "Mug.PNG", pngHeader), publicDir)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(url, "/uploads/products/"), url)
	assert.True(t, strings.HasSuffix(url, ".png"), url)

	stored, err := os.ReadFile(filepath.Join(publicDir, filepath.FromSlash(strings.TrimPrefix(url, "/"))))
	require.NoError(t, err)
	assert.Equal(t, pngHeader, stored)
}

func TestSaveImageRejectsBadUploads(t *testing.T) {
	publicDir := t.TempDir()

	_, err := saveImage(multipartImage(t, "anim.gif", []byte("GIF89a")), publicDir)
	assert.ErrorContains(t, err, "unsupported image type")

	_, err = saveImage(multipartImage(t, "noext", pngHeader), publicDir)
	assert.ErrorContains(t, err, "extension is required")

	_, err = saveImage(multipartImage(t, "fake.png", []byte("just some text")), publicDir)
	assert.ErrorContains(t, err, "does not match")

	big := append(append([]byte{}, pngHeader...), make([]byte, maxImageSize)...)
	_, err = saveImage(multipartImage(t, "big.png", big), publicDir)
	assert.ErrorContains(t, err, "too large")
}

func TestSafeDeleteUpload(t *testing.T) {
	publicDir := t.TempDir()
	url, err := saveImage(multipartImage(t, "a.png", pngHeader), publicDir)
	require.NoError(t, err)

	require.NoError(t, safeDeleteUpload(publicDir, url))
	_, statErr := os.Stat(filepath.Join(publicDir, filepath.FromSlash(strings.TrimPrefix(url, "/"))))
	assert.True(t, os.IsNotExist(statErr))

	assert.NoError(t, safeDeleteUpload(publicDir, url), "deleting twice is a no-op")
	assert.NoError(t, safeDeleteUpload(publicDir, ""))
	assert.Error(t, safeDeleteUpload(publicDir, "/../etc/passwd"))
	assert.Error(t, safeDeleteUpload(publicDir, "uploads/../../secret"))
	assert.Error(t, safeDeleteUpload(publicDir, "/config/app.env"))
}
