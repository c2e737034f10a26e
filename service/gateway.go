package service

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"AIVideoCreator-server/config"
)

// SegmentPlan 单个分段的生成脚本
type SegmentPlan struct {
	SegmentIndex   int    `json:"segment_index"`
	VideoPrompt    string `json:"video_prompt"`
	NarrationText  string `json:"narration_text"`
	EndFramePrompt string `json:"end_frame_prompt"`
}

// PlanResult 脚本生成的统一结果形态。上游返回什么鸭子类型都在网关边界
// 归一成这一种，工作流层只认这个。
type PlanResult struct {
	Title           string        `json:"title"`
	Segments        []SegmentPlan `json:"segments"`
	ContinuityNotes string        `json:"continuity_notes"`
}

// 视频任务状态，上游各种花样字符串在网关归一成三态
const (
	TaskProcessing = "processing"
	TaskSucceeded  = "succeeded"
	TaskFailed     = "failed"
)

// TaskStatus 异步视频任务的查询结果
type TaskStatus struct {
	State  string
	FileID string
	Err    string
}

// VideoRequest 视频生成请求
type VideoRequest struct {
	Prompt      string
	FirstFrame  string // base64 data URL 或公网 URL
	LastFrame   string // 可选
	DurationSec int
	Resolution  string
}

// GenerationGateway 三类外部生成能力的抽象：脚本规划、音色克隆 + TTS、
// 视频生成（异步任务协议）。工作流只依赖这个接口。
type GenerationGateway interface {
	GeneratePlan(ctx context.Context, storyPrompt string, segmentCount, segmentDuration int) (*PlanResult, error)
	UploadFile(ctx context.Context, data []byte, filename, purpose string) (string, error)
	CloneVoice(ctx context.Context, fileID, voiceID string) (string, error)
	TextToSpeech(ctx context.Context, text, voiceID string) ([]byte, error)
	GenerateVideo(ctx context.Context, req VideoRequest) (string, error)
	QueryVideoTask(ctx context.Context, taskID string) (TaskStatus, error)
	RetrieveFile(ctx context.Context, fileID string) (string, error)
}

// MiniMaxClient GenerationGateway 的 HTTP 实现。实例在启动时构造注入，
// 没有包级单例。
type MiniMaxClient struct {
	apiKey    string
	baseURL   string
	planKey   string
	planURL   string
	planModel string
	httpc     *http.Client
}

func NewMiniMaxClient(cfg *config.Config) *MiniMaxClient {
	planURL := cfg.Plan.BaseURL
	if planURL == "" {
		planURL = "https://api.openai.com/v1"
	}
	planModel := cfg.Plan.Model
	if planModel == "" {
		planModel = "gpt-4o"
	}
	return &MiniMaxClient{
		apiKey:    cfg.MiniMax.APIKey,
		baseURL:   strings.TrimRight(cfg.MiniMax.BaseURL, "/"),
		planKey:   cfg.Plan.APIKey,
		planURL:   strings.TrimRight(planURL, "/"),
		planModel: planModel,
		httpc:     &http.Client{Timeout: 120 * time.Second},
	}
}

// request 发 JSON 请求并做 base_resp 业务码检查
func (m *MiniMaxClient) request(ctx context.Context, method, endpoint string, body interface{}, out interface{}) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, m.baseURL+endpoint, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+m.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := m.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrExternal, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: 读取响应失败: %v", ErrExternal, err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d: %s", ErrExternal, resp.StatusCode, truncate(string(data), 300))
	}

	if err := checkBaseResp(data); err != nil {
		return err
	}
	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("%w: 解析响应失败: %v", ErrExternal, err)
		}
	}
	return nil
}

// checkBaseResp MiniMax 的业务级错误码放在 base_resp 里，HTTP 200 也可能失败
func checkBaseResp(data []byte) error {
	var envelope struct {
		BaseResp struct {
			StatusCode int    `json:"status_code"`
			StatusMsg  string `json:"status_msg"`
		} `json:"base_resp"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil // 没有 base_resp 结构就跳过检查
	}
	if envelope.BaseResp.StatusCode != 0 {
		return fmt.Errorf("%w: %s", ErrExternal, envelope.BaseResp.StatusMsg)
	}
	return nil
}

// ============================================================================
// 脚本规划
// ============================================================================

const planSystemPrompt = `You are an expert video story planner for short-form AI video.
Break the user's story into segments. For each segment produce:
- video_prompt: 2-3 sentences of concrete visual detail, may include camera commands like [Zoom in], [Pan left]
- narration_text: voice-over matching the segment duration
- end_frame_prompt: the exact visual state at the segment's end, it becomes the next segment's start
Keep characters, style and atmosphere consistent across segments.
Respond with JSON only: {"title": "...", "segments": [{"segment_index": 0, "video_prompt": "...", "narration_text": "...", "end_frame_prompt": "..."}], "continuity_notes": "..."}`

func (m *MiniMaxClient) GeneratePlan(ctx context.Context, storyPrompt string, segmentCount, segmentDuration int) (*PlanResult, error) {
	userMsg := fmt.Sprintf(
		"Story concept: %s\n\nRequirements:\n- %d segments of %d seconds each\n- Total duration: %d seconds",
		storyPrompt, segmentCount, segmentDuration, segmentCount*segmentDuration,
	)

	body := map[string]interface{}{
		"model": m.planModel,
		"messages": []map[string]string{
			{"role": "system", "content": planSystemPrompt},
			{"role": "user", "content": userMsg},
		},
		"response_format": map[string]string{"type": "json_object"},
	}

	b, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.planURL+"/chat/completions", bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+m.planKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExternal, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil || resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: 脚本生成请求失败 status %d", ErrExternal, resp.StatusCode)
	}

	var completion struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(data, &completion); err != nil || len(completion.Choices) == 0 {
		return nil, fmt.Errorf("%w: 脚本生成响应不可解析", ErrExternal)
	}

	return normalizePlan([]byte(completion.Choices[0].Message.Content))
}

// normalizePlan 把上游返回的各种形态归一成 PlanResult：
// 带 title/segments 的对象，或裸的 segments 数组，都接受。
func normalizePlan(raw []byte) (*PlanResult, error) {
	var plan PlanResult
	if err := json.Unmarshal(raw, &plan); err == nil && len(plan.Segments) > 0 {
		if plan.Title == "" {
			plan.Title = "Untitled"
		}
		return &plan, nil
	}

	var segments []SegmentPlan
	if err := json.Unmarshal(raw, &segments); err == nil && len(segments) > 0 {
		return &PlanResult{Title: "Untitled", Segments: segments}, nil
	}

	return nil, fmt.Errorf("%w: 脚本生成结果不可解析", ErrExternal)
}

// ============================================================================
// 文件与音色
// ============================================================================

func (m *MiniMaxClient) UploadFile(ctx context.Context, data []byte, filename, purpose string) (string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	fw, err := w.CreateFormFile("file", filename)
	if err != nil {
		return "", err
	}
	if _, err := fw.Write(data); err != nil {
		return "", err
	}
	if err := w.WriteField("purpose", purpose); err != nil {
		return "", err
	}
	if err := w.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+"/files/upload", &buf)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+m.apiKey)
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := m.httpc.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrExternal, err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if err := checkBaseResp(body); err != nil {
		return "", err
	}
	var out struct {
		File struct {
			FileID json.Number `json:"file_id"`
		} `json:"file"`
	}
	if err := json.Unmarshal(body, &out); err != nil || out.File.FileID.String() == "" {
		return "", fmt.Errorf("%w: 上传响应缺少 file_id", ErrExternal)
	}
	return out.File.FileID.String(), nil
}

// CloneVoice 成功时上游回显同一个 voice_id
func (m *MiniMaxClient) CloneVoice(ctx context.Context, fileID, voiceID string) (string, error) {
	err := m.request(ctx, http.MethodPost, "/voice_clone", map[string]interface{}{
		"file_id":                   fileID,
		"voice_id":                  voiceID,
		"need_noise_reduction":      true,
		"need_volume_normalization": true,
	}, nil)
	if err != nil {
		return "", err
	}
	return voiceID, nil
}

func (m *MiniMaxClient) TextToSpeech(ctx context.Context, text, voiceID string) ([]byte, error) {
	b, err := json.Marshal(map[string]interface{}{
		"model": "speech-02-hd",
		"text":  text,
		"voice_setting": map[string]interface{}{
			"voice_id": voiceID,
			"speed":    1.0,
		},
		"audio_setting": map[string]interface{}{
			"format": "mp3",
		},
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+"/t2a_v2", bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+m.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExternal, err)
	}
	defer resp.Body.Close()

	// 上游可能直接回音频流，也可能回带 base64 的 JSON
	if strings.Contains(resp.Header.Get("Content-Type"), "audio") {
		return io.ReadAll(resp.Body)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExternal, err)
	}
	if err := checkBaseResp(body); err != nil {
		return nil, err
	}
	var out struct {
		Data struct {
			Audio string `json:"audio"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &out); err != nil || out.Data.Audio == "" {
		return nil, fmt.Errorf("%w: TTS 响应形态未知", ErrExternal)
	}
	audio, err := base64.StdEncoding.DecodeString(out.Data.Audio)
	if err != nil {
		// 部分模型回 hex 编码
		return nil, fmt.Errorf("%w: TTS 音频解码失败: %v", ErrExternal, err)
	}
	return audio, nil
}

// ============================================================================
// 视频任务
// ============================================================================

func (m *MiniMaxClient) GenerateVideo(ctx context.Context, r VideoRequest) (string, error) {
	payload := map[string]interface{}{
		"model":             "MiniMax-Hailuo-02",
		"prompt":            truncate(r.Prompt, 2000),
		"first_frame_image": r.FirstFrame,
		"duration":          r.DurationSec,
		"resolution":        r.Resolution,
	}
	if r.LastFrame != "" {
		payload["last_frame_image"] = r.LastFrame
	}

	var out struct {
		TaskID string `json:"task_id"`
	}
	if err := m.request(ctx, http.MethodPost, "/video_generation", payload, &out); err != nil {
		return "", err
	}
	if out.TaskID == "" {
		return "", fmt.Errorf("%w: 视频任务响应缺少 task_id", ErrExternal)
	}
	return out.TaskID, nil
}

func (m *MiniMaxClient) QueryVideoTask(ctx context.Context, taskID string) (TaskStatus, error) {
	var out struct {
		Status string `json:"status"`
		FileID string `json:"file_id"`
	}
	err := m.request(ctx, http.MethodGet, "/query/video_generation?task_id="+taskID, nil, &out)
	if err != nil {
		return TaskStatus{}, err
	}

	// 上游状态字符串宽容匹配，归一成三态
	switch strings.ToLower(out.Status) {
	case "success", "succeeded", "finished", "completed":
		return TaskStatus{State: TaskSucceeded, FileID: out.FileID}, nil
	case "fail", "failed", "error":
		return TaskStatus{State: TaskFailed, Err: "video generation failed"}, nil
	default:
		return TaskStatus{State: TaskProcessing}, nil
	}
}

func (m *MiniMaxClient) RetrieveFile(ctx context.Context, fileID string) (string, error) {
	var out struct {
		File struct {
			DownloadURL string `json:"download_url"`
		} `json:"file"`
	}
	err := m.request(ctx, http.MethodGet, "/files/retrieve?file_id="+fileID, nil, &out)
	if err != nil {
		return "", err
	}
	if out.File.DownloadURL == "" {
		return "", fmt.Errorf("%w: 文件检索响应缺少 download_url", ErrExternal)
	}
	return out.File.DownloadURL, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
