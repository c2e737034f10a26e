package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"AIVideoCreator-server/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizePlan(t *testing.T) {
	// 标准对象形态
	plan, err := normalizePlan([]byte(`{"title":"猫","segments":[{"segment_index":0,"video_prompt":"p"}]}`))
	require.NoError(t, err)
	assert.Equal(t, "猫", plan.Title)
	require.Len(t, plan.Segments, 1)

	// 裸数组形态也接受
	plan, err = normalizePlan([]byte(`[{"video_prompt":"a"},{"video_prompt":"b"}]`))
	require.NoError(t, err)
	assert.Equal(t, "Untitled", plan.Title)
	assert.Len(t, plan.Segments, 2)

	// 缺 title 补默认值
	plan, err = normalizePlan([]byte(`{"segments":[{"video_prompt":"p"}]}`))
	require.NoError(t, err)
	assert.Equal(t, "Untitled", plan.Title)

	// 不可解析
	_, err = normalizePlan([]byte(`{"oops": true}`))
	assert.ErrorIs(t, err, ErrExternal)
	_, err = normalizePlan([]byte(`not json`))
	assert.ErrorIs(t, err, ErrExternal)
}

func TestCheckBaseResp(t *testing.T) {
	assert.NoError(t, checkBaseResp([]byte(`{"base_resp":{"status_code":0}}`)))
	assert.NoError(t, checkBaseResp([]byte(`{"task_id":"t"}`)))

	err := checkBaseResp([]byte(`{"base_resp":{"status_code":1004,"status_msg":"insufficient balance"}}`))
	require.ErrorIs(t, err, ErrExternal)
	assert.Contains(t, err.Error(), "insufficient balance")
}

func newTestClient(serverURL string) *MiniMaxClient {
	cfg := &config.Config{}
	cfg.MiniMax.APIKey = "test-key"
	cfg.MiniMax.BaseURL = serverURL
	cfg.Plan.BaseURL = serverURL
	cfg.Plan.Model = "test-model"
	return NewMiniMaxClient(cfg)
}

func TestQueryVideoTaskNormalization(t *testing.T) {
	var upstream string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		_ = json.NewEncoder(w).Encode(map[string]string{"status": upstream, "file_id": "f-1"})
	}))
	defer srv.Close()
	client := newTestClient(srv.URL)
	ctx := context.Background()

	// 上游状态字符串宽容归一成三态
	cases := map[string]string{
		"Success":    TaskSucceeded,
		"finished":   TaskSucceeded,
		"FAILED":     TaskFailed,
		"processing": TaskProcessing,
		"queueing":   TaskProcessing,
		"":           TaskProcessing,
	}
	for raw, want := range cases {
		upstream = raw
		status, err := client.QueryVideoTask(ctx, "t-1")
		require.NoError(t, err)
		assert.Equal(t, want, status.State, "upstream status %q", raw)
	}

	upstream = "Success"
	status, err := client.QueryVideoTask(ctx, "t-1")
	require.NoError(t, err)
	assert.Equal(t, "f-1", status.FileID)
}

func TestGenerateVideoRequest(t *testing.T) {
	var got map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(map[string]string{"task_id": "t-42"})
	}))
	defer srv.Close()
	client := newTestClient(srv.URL)

	taskID, err := client.GenerateVideo(context.Background(), VideoRequest{
		Prompt:      "一只猫",
		FirstFrame:  "data:image/jpeg;base64,xxx",
		DurationSec: 6,
		Resolution:  "768P",
	})
	require.NoError(t, err)
	assert.Equal(t, "t-42", taskID)
	assert.Equal(t, "一只猫", got["prompt"])
	assert.Equal(t, "data:image/jpeg;base64,xxx", got["first_frame_image"])
	// 没给尾帧就不该出现在请求里
	_, has := got["last_frame_image"]
	assert.False(t, has)
}

func TestGenerateVideoBusinessError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// HTTP 200 但业务码报错
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"base_resp": map[string]interface{}{"status_code": 2013, "status_msg": "sensitive content"},
		})
	}))
	defer srv.Close()
	client := newTestClient(srv.URL)

	_, err := client.GenerateVideo(context.Background(), VideoRequest{Prompt: "p", FirstFrame: "f"})
	require.ErrorIs(t, err, ErrExternal)
	assert.Contains(t, err.Error(), "sensitive content")
}

func TestRetrieveFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "f-1", r.URL.Query().Get("file_id"))
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"file": map[string]string{"download_url": "https://cdn/video.mp4"},
		})
	}))
	defer srv.Close()
	client := newTestClient(srv.URL)

	url, err := client.RetrieveFile(context.Background(), "f-1")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn/video.mp4", url)
}

func TestTextToSpeechBinaryAndJSON(t *testing.T) {
	// 直接回音频流
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = w.Write([]byte("mp3-data"))
	}))
	client := newTestClient(srv.URL)
	audio, err := client.TextToSpeech(context.Background(), "你好", "voice-1")
	srv.Close()
	require.NoError(t, err)
	assert.Equal(t, []byte("mp3-data"), audio)

	// base64 JSON 形态
	srv2 := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"data": map[string]string{"audio": "bXAzLWRhdGE="}, // "mp3-data"
		})
	}))
	defer srv2.Close()
	client2 := newTestClient(srv2.URL)
	audio, err = client2.TextToSpeech(context.Background(), "你好", "voice-1")
	require.NoError(t, err)
	assert.Equal(t, []byte("mp3-data"), audio)
}

func TestUploadFileParsesNumericID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "voice_clone", r.FormValue("purpose"))
		// file_id 是数字不是字符串
		_, _ = w.Write([]byte(`{"file":{"file_id":123456}}`))
	}))
	defer srv.Close()
	client := newTestClient(srv.URL)

	fileID, err := client.UploadFile(context.Background(), []byte("audio"), "sample.mp3", "voice_clone")
	require.NoError(t, err)
	assert.Equal(t, "123456", fileID)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 5))
	assert.Equal(t, "ab", truncate("abcd", 2))
}
