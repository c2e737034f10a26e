package service

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"AIVideoCreator-server/config"
	"AIVideoCreator-server/models"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *models.Store {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, models.Migrate(db))
	return models.NewStore(db)
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	base := t.TempDir()
	cfg := &config.Config{}
	cfg.Storage.Uploads = filepath.Join(base, "uploads")
	cfg.Storage.Output = filepath.Join(base, "output")
	cfg.Storage.Temp = filepath.Join(base, "temp")
	require.NoError(t, cfg.EnsureStorageDirs())
	return cfg
}

// fakeGateway 可编程的生成网关，记录调用次数
type fakeGateway struct {
	plan    *PlanResult
	planErr error

	generateErr   error
	generateCalls int
	taskIDs       []string

	status    TaskStatus
	queryErr  error
	queryCalls int

	downloadURL   string
	retrieveCalls int

	ttsAudio []byte
	ttsErr   error
	ttsCalls int

	uploadErr   error
	cloneErr    error
	uploadCalls int
}

func (g *fakeGateway) GeneratePlan(ctx context.Context, storyPrompt string, segmentCount, segmentDuration int) (*PlanResult, error) {
	if g.planErr != nil {
		return nil, g.planErr
	}
	return g.plan, nil
}

func (g *fakeGateway) UploadFile(ctx context.Context, data []byte, filename, purpose string) (string, error) {
	g.uploadCalls++
	if g.uploadErr != nil {
		return "", g.uploadErr
	}
	return "file-1", nil
}

func (g *fakeGateway) CloneVoice(ctx context.Context, fileID, voiceID string) (string, error) {
	if g.cloneErr != nil {
		return "", g.cloneErr
	}
	return voiceID, nil
}

func (g *fakeGateway) TextToSpeech(ctx context.Context, text, voiceID string) ([]byte, error) {
	g.ttsCalls++
	if g.ttsErr != nil {
		return nil, g.ttsErr
	}
	return g.ttsAudio, nil
}

func (g *fakeGateway) GenerateVideo(ctx context.Context, req VideoRequest) (string, error) {
	g.generateCalls++
	if g.generateErr != nil {
		return "", g.generateErr
	}
	id := fmt.Sprintf("task-%d", g.generateCalls)
	g.taskIDs = append(g.taskIDs, id)
	return id, nil
}

func (g *fakeGateway) QueryVideoTask(ctx context.Context, taskID string) (TaskStatus, error) {
	g.queryCalls++
	if g.queryErr != nil {
		return TaskStatus{}, g.queryErr
	}
	return g.status, nil
}

func (g *fakeGateway) RetrieveFile(ctx context.Context, fileID string) (string, error) {
	g.retrieveCalls++
	return g.downloadURL, nil
}

// fakeMedia 不跑 ffmpeg，直接往输出路径写占位内容
type fakeMedia struct {
	duration     float64
	extractErr   error
	extractCalls int
	muxCalls     int
	concatCalls  int
	concatInputs []string
}

func (m *fakeMedia) ProbeDuration(ctx context.Context, path string) (float64, error) {
	if m.duration == 0 {
		return 6.0, nil
	}
	return m.duration, nil
}

func (m *fakeMedia) ExtractFrame(ctx context.Context, videoPath, outPath string, offsetSec float64) error {
	return os.WriteFile(outPath, []byte("frame"), 0o644)
}

func (m *fakeMedia) ExtractLastFrame(ctx context.Context, videoPath, outPath string) error {
	m.extractCalls++
	if m.extractErr != nil {
		return m.extractErr
	}
	return os.WriteFile(outPath, []byte("last-frame"), 0o644)
}

func (m *fakeMedia) ConcatVideos(ctx context.Context, inputs []string, outPath string) error {
	m.concatCalls++
	m.concatInputs = append([]string{}, inputs...)
	return os.WriteFile(outPath, []byte("final-video"), 0o644)
}

func (m *fakeMedia) ConcatAudios(ctx context.Context, inputs []string, outPath string) error {
	return os.WriteFile(outPath, []byte("concat-audio"), 0o644)
}

func (m *fakeMedia) Mux(ctx context.Context, videoPath, audioPath, outPath string) error {
	return os.WriteFile(outPath, []byte("muxed"), 0o644)
}

func (m *fakeMedia) AdjustAudioDuration(ctx context.Context, audioPath string, targetSec float64, outPath string) error {
	return os.WriteFile(outPath, []byte("adjusted"), 0o644)
}

func (m *fakeMedia) MuxSegment(ctx context.Context, videoPath, audioPath, outPath string) error {
	m.muxCalls++
	return os.WriteFile(outPath, []byte("muxed-segment"), 0o644)
}

// testEnv 组装一套完整的工作流测试环境
type testEnv struct {
	store    *models.Store
	cfg      *config.Config
	storage  *Storage
	gw       *fakeGateway
	media    *fakeMedia
	segments *SegmentWorkflow
	projects *ProjectWorkflow
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store := setupTestDB(t)
	cfg := testConfig(t)
	storage := NewStorage(cfg)
	gw := &fakeGateway{}
	media := &fakeMedia{}
	return &testEnv{
		store:    store,
		cfg:      cfg,
		storage:  storage,
		gw:       gw,
		media:    media,
		segments: NewSegmentWorkflow(store, gw, media, storage),
		projects: NewProjectWorkflow(store, gw, media, storage, nil),
	}
}

// seedProject 建一个 n 段的项目，分段状态可指定
func (e *testEnv) seedProject(t *testing.T, userID string, n int, segmentStatus string) *models.Project {
	t.Helper()
	p := &models.Project{
		ID:                uuid.NewString(),
		UserID:            userID,
		Name:              "测试项目",
		TargetDurationSec: n * 6,
		SegmentLenSec:     6,
		SegmentCount:      n,
		Status:            models.ProjectStatusPlanReady,
	}
	segs := make([]models.Segment, 0, n)
	for i := 0; i < n; i++ {
		segs = append(segs, models.Segment{
			ID:          uuid.NewString(),
			ProjectID:   p.ID,
			Index:       i,
			VideoPrompt: fmt.Sprintf("镜头 %d", i),
			Status:      segmentStatus,
			Approved:    segmentStatus == models.SegmentStatusApproved || segmentStatus == models.SegmentStatusSegmentApproved,
		})
	}
	require.NoError(t, e.store.CreateProject(p, segs))
	loaded, err := e.store.GetProject(p.ID, userID)
	require.NoError(t, err)
	return loaded
}

// seedFirstFrame 往 uploads 桶写一张首帧图并挂到项目上
func (e *testEnv) seedFirstFrame(t *testing.T, projectID string) string {
	t.Helper()
	ref, err := e.storage.Write(BucketUploads, "image/"+uuid.NewString()+".jpg", []byte{0xFF, 0xD8, 0xFF, 0xE0})
	require.NoError(t, err)
	require.NoError(t, e.store.UpdateProject(projectID, map[string]interface{}{
		"first_frame_url": ref.URL(),
	}))
	return ref.URL()
}
