package service

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

// MediaTool 媒体处理能力：时长探测、抽帧、拼接、混流、音频时长对齐。
// 全部是对文件的纯函数式操作。
type MediaTool interface {
	ProbeDuration(ctx context.Context, path string) (float64, error)
	ExtractFrame(ctx context.Context, videoPath, outPath string, offsetSec float64) error
	ExtractLastFrame(ctx context.Context, videoPath, outPath string) error
	ConcatVideos(ctx context.Context, inputs []string, outPath string) error
	ConcatAudios(ctx context.Context, inputs []string, outPath string) error
	Mux(ctx context.Context, videoPath, audioPath, outPath string) error
	AdjustAudioDuration(ctx context.Context, audioPath string, targetSec float64, outPath string) error
	MuxSegment(ctx context.Context, videoPath, audioPath, outPath string) error
}

// durationTolerance 音视频时长差在此容差内视为已对齐，音频直接拷贝
const durationTolerance = 0.1

// FFmpeg 基于 ffmpeg/ffprobe 的 MediaTool 实现
type FFmpeg struct {
	FFmpegPath  string
	FFprobePath string
}

func NewFFmpeg(ffmpegPath, ffprobePath string) *FFmpeg {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	return &FFmpeg{FFmpegPath: ffmpegPath, FFprobePath: ffprobePath}
}

func (f *FFmpeg) run(ctx context.Context, name string, args []string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		msg := strings.TrimSpace(string(out))
		if len(msg) > 500 {
			msg = msg[len(msg)-500:]
		}
		return "", fmt.Errorf("%s 执行失败: %w: %s", filepath.Base(name), err, msg)
	}
	return string(out), nil
}

func (f *FFmpeg) ProbeDuration(ctx context.Context, path string) (float64, error) {
	out, err := f.run(ctx, f.FFprobePath, []string{
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	})
	if err != nil {
		return 0, err
	}
	dur, err := strconv.ParseFloat(strings.TrimSpace(out), 64)
	if err != nil {
		return 0, fmt.Errorf("解析时长失败 %q: %w", out, err)
	}
	return dur, nil
}

func (f *FFmpeg) ExtractFrame(ctx context.Context, videoPath, outPath string, offsetSec float64) error {
	if offsetSec < 0 {
		offsetSec = 0
	}
	_, err := f.run(ctx, f.FFmpegPath, []string{
		"-y",
		"-ss", formatSeconds(offsetSec),
		"-i", videoPath,
		"-vframes", "1",
		"-q:v", "2",
		"-update", "1",
		outPath,
	})
	return err
}

// ExtractLastFrame 取片尾前 0.1 秒处的帧（短视频钳到 0）
func (f *FFmpeg) ExtractLastFrame(ctx context.Context, videoPath, outPath string) error {
	dur, err := f.ProbeDuration(ctx, videoPath)
	if err != nil {
		return err
	}
	return f.ExtractFrame(ctx, videoPath, outPath, dur-durationTolerance)
}

// concatList 生成 concat demuxer 的列表文件
func concatList(inputs []string, listPath string) error {
	var lines []string
	for _, in := range inputs {
		abs, err := filepath.Abs(in)
		if err != nil {
			abs = in
		}
		lines = append(lines, fmt.Sprintf("file '%s'", abs))
	}
	return os.WriteFile(listPath, []byte(strings.Join(lines, "\n")+"\n"), 0o644)
}

func (f *FFmpeg) concat(ctx context.Context, inputs []string, outPath string) error {
	if len(inputs) == 0 {
		return fmt.Errorf("concat 没有输入文件")
	}
	listPath := outPath + ".list.txt"
	if err := concatList(inputs, listPath); err != nil {
		return err
	}
	defer os.Remove(listPath)

	// 流拷贝拼接，要求各段编码/分辨率一致（上游生成保证）
	_, err := f.run(ctx, f.FFmpegPath, []string{
		"-y",
		"-f", "concat",
		"-safe", "0",
		"-i", listPath,
		"-c", "copy",
		outPath,
	})
	return err
}

func (f *FFmpeg) ConcatVideos(ctx context.Context, inputs []string, outPath string) error {
	return f.concat(ctx, inputs, outPath)
}

func (f *FFmpeg) ConcatAudios(ctx context.Context, inputs []string, outPath string) error {
	return f.concat(ctx, inputs, outPath)
}

// Mux 取视频的视频流和音频的音频流合成一个容器
func (f *FFmpeg) Mux(ctx context.Context, videoPath, audioPath, outPath string) error {
	_, err := f.run(ctx, f.FFmpegPath, []string{
		"-y",
		"-i", videoPath,
		"-i", audioPath,
		"-c:v", "copy",
		"-c:a", "aac",
		"-map", "0:v:0",
		"-map", "1:a:0",
		outPath,
	})
	return err
}

// AdjustAudioDuration 把音频时长对齐到目标：过长截断，过短补静音，
// 差值小于容差直接拷贝原文件。
func (f *FFmpeg) AdjustAudioDuration(ctx context.Context, audioPath string, targetSec float64, outPath string) error {
	current, err := f.ProbeDuration(ctx, audioPath)
	if err != nil {
		return err
	}

	diff := current - targetSec
	if diff < durationTolerance && diff > -durationTolerance {
		return copyFile(audioPath, outPath)
	}

	var args []string
	if current > targetSec {
		args = []string{
			"-y",
			"-i", audioPath,
			"-t", formatSeconds(targetSec),
			"-c:a", "libmp3lame",
			"-q:a", "2",
			outPath,
		}
	} else {
		args = []string{
			"-y",
			"-i", audioPath,
			"-af", fmt.Sprintf("apad=pad_dur=%s", formatSeconds(targetSec-current)),
			"-t", formatSeconds(targetSec),
			"-c:a", "libmp3lame",
			"-q:a", "2",
			outPath,
		}
	}
	_, err = f.run(ctx, f.FFmpegPath, args)
	return err
}

// MuxSegment 单段合成：探测视频时长 → 音频对齐 → 混流，中间文件随手清理
func (f *FFmpeg) MuxSegment(ctx context.Context, videoPath, audioPath, outPath string) error {
	videoDur, err := f.ProbeDuration(ctx, videoPath)
	if err != nil {
		return err
	}

	adjusted := outPath + ".adjusted.mp3"
	if err := f.AdjustAudioDuration(ctx, audioPath, videoDur, adjusted); err != nil {
		return err
	}
	defer func() {
		if err := os.Remove(adjusted); err != nil && !os.IsNotExist(err) {
			log.Printf("[ffmpeg] 清理临时音频失败: %v", err)
		}
	}()

	return f.Mux(ctx, videoPath, adjusted, outPath)
}

func formatSeconds(sec float64) string {
	return strconv.FormatFloat(sec, 'f', -1, 64)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()
	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}
