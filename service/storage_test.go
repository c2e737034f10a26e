package service

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFileRef(t *testing.T) {
	ref, ok := ParseFileRef("/uploads/image/a.jpg")
	require.True(t, ok)
	assert.Equal(t, BucketUploads, ref.Bucket)
	assert.Equal(t, "image/a.jpg", ref.Key)
	assert.Equal(t, "/uploads/image/a.jpg", ref.URL())

	ref, ok = ParseFileRef("/output/segments/s1/video.mp4")
	require.True(t, ok)
	assert.Equal(t, BucketOutput, ref.Bucket)

	// 非本地引用原样透传
	_, ok = ParseFileRef("https://cdn.example.com/a.mp4")
	assert.False(t, ok)
	_, ok = ParseFileRef("data:image/jpeg;base64,xxxx")
	assert.False(t, ok)
	_, ok = ParseFileRef("plain/relative/path.jpg")
	assert.False(t, ok)
}

func TestStorageResolveAndWrite(t *testing.T) {
	storage := NewStorage(testConfig(t))

	ref, err := storage.Write(BucketOutput, "segments/s1/v.mp4", []byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, "/output/segments/s1/v.mp4", ref.URL())
	assert.True(t, storage.Exists(ref.URL()))

	// Resolve 回到写入的那个文件
	p := storage.Resolve(ref.URL())
	assert.Equal(t, filepath.Join(storage.cfg.Storage.Output, "segments", "s1", "v.mp4"), p)

	// 远程引用 Resolve 原样返回
	assert.Equal(t, "https://x/y.mp4", storage.Resolve("https://x/y.mp4"))
}

func TestEncodeImageDataURL(t *testing.T) {
	storage := NewStorage(testConfig(t))

	ref, err := storage.Write(BucketUploads, "image/a.jpg", []byte{0xFF, 0xD8})
	require.NoError(t, err)

	dataURL, err := storage.EncodeImageDataURL(ref.URL())
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(dataURL, "data:image/jpeg;base64,"))

	// http 和 data 引用透传
	out, err := storage.EncodeImageDataURL("https://cdn/x.jpg")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn/x.jpg", out)

	// 文件缺失
	_, err = storage.EncodeImageDataURL("/uploads/image/missing.jpg")
	assert.ErrorIs(t, err, ErrMissingFile)
}
