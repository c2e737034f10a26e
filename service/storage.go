package service

import (
	"encoding/base64"
	"fmt"
	"mime"
	"os"
	"path"
	"path/filepath"
	"strings"

	"AIVideoCreator-server/config"
)

// 逻辑存储桶。引用以 "/uploads/...", "/output/...", "/temp/..." 形式入库，
// 前端可直接当 URL 用，落盘位置由配置的目录决定。
const (
	BucketUploads = "uploads"
	BucketOutput  = "output"
	BucketTemp    = "temp"
)

// FileRef 存储引用值类型：逻辑桶 + 桶内相对路径。
// 工作流层只操作 FileRef，不做任何 URL 前缀字符串拼接。
type FileRef struct {
	Bucket string
	Key    string
}

// ParseFileRef 解析 "/uploads/a/b.jpg" 形式的引用。
// http(s) 与 data: 前缀不是本地引用，返回 ok=false 由调用方原样透传。
func ParseFileRef(ref string) (FileRef, bool) {
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") ||
		strings.HasPrefix(ref, "data:") {
		return FileRef{}, false
	}
	for _, bucket := range []string{BucketUploads, BucketOutput, BucketTemp} {
		prefix := "/" + bucket + "/"
		if strings.HasPrefix(ref, prefix) {
			return FileRef{Bucket: bucket, Key: strings.TrimPrefix(ref, prefix)}, true
		}
	}
	// 没有已知前缀：当作相对于 temp 桶之外的裸路径处理
	return FileRef{}, false
}

// URL 入库/返回给前端的形式
func (r FileRef) URL() string {
	return "/" + r.Bucket + "/" + r.Key
}

// Storage 本地媒体存储：按桶解析文件路径、写入新文件。
// 生成产物一次一个新文件名，引用字段指向的是不可变内容。
type Storage struct {
	cfg *config.Config
}

func NewStorage(cfg *config.Config) *Storage {
	return &Storage{cfg: cfg}
}

func (st *Storage) bucketDir(bucket string) string {
	switch bucket {
	case BucketUploads:
		return st.cfg.Storage.Uploads
	case BucketOutput:
		return st.cfg.Storage.Output
	default:
		return st.cfg.Storage.Temp
	}
}

// Resolve 把存储引用解析为本地文件路径。
// 非本地引用（http/data）和裸路径原样返回。
func (st *Storage) Resolve(ref string) string {
	if fr, ok := ParseFileRef(ref); ok {
		return filepath.Join(st.bucketDir(fr.Bucket), filepath.FromSlash(fr.Key))
	}
	return ref
}

// Exists 引用指向的本地文件是否存在；非本地引用视为存在（由下载方处理）
func (st *Storage) Exists(ref string) bool {
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") ||
		strings.HasPrefix(ref, "data:") {
		return true
	}
	_, err := os.Stat(st.Resolve(ref))
	return err == nil
}

// Write 把字节写入指定桶，返回存储引用
func (st *Storage) Write(bucket, key string, data []byte) (FileRef, error) {
	p := filepath.Join(st.bucketDir(bucket), filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return FileRef{}, fmt.Errorf("创建目录失败: %w", err)
	}
	if err := os.WriteFile(p, data, 0o644); err != nil {
		return FileRef{}, fmt.Errorf("写文件失败: %w", err)
	}
	return FileRef{Bucket: bucket, Key: key}, nil
}

// Path 指定桶内 key 对应的本地路径（不创建文件）
func (st *Storage) Path(bucket, key string) string {
	return filepath.Join(st.bucketDir(bucket), filepath.FromSlash(key))
}

// EncodeImageDataURL 把首帧引用转成生成 API 需要的 payload：
// 本地引用读文件转 base64 data URL，http/data 引用原样透传。
func (st *Storage) EncodeImageDataURL(ref string) (string, error) {
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") ||
		strings.HasPrefix(ref, "data:") {
		return ref, nil
	}
	p := st.Resolve(ref)
	data, err := os.ReadFile(p)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrMissingFile, ref)
	}
	mimeType := mime.TypeByExtension(path.Ext(p))
	if mimeType == "" {
		mimeType = "image/jpeg"
	}
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data), nil
}
