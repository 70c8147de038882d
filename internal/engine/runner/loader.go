package runner

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/resona-team/resona/internal/audio"
	"github.com/resona-team/resona/internal/config"
	"github.com/resona-team/resona/internal/config/source"
	"github.com/resona-team/resona/internal/device"
	"github.com/resona-team/resona/internal/engine"
)

const (
	basePort         = 47100
	synthesisTimeout = 5 * time.Minute
)

// Loader implements engine.Loader by downloading model artifacts from the
// Hugging Face hub and starting one resident runner process per loaded
// model.
type Loader struct {
	runnerPath string
	modelsDir  string
	download   config.DownloadConfig
	codec      *audio.Codec
	downloader *source.HuggingFaceDownloader
	servers    *ServerManager
	client     *http.Client
	mu         sync.Mutex
	nextPort   int
}

// NewLoader creates a Loader. runnerPath must point at the inference
// runner binary; modelsDir is the local artifact cache.
func NewLoader(runnerPath, modelsDir string, download config.DownloadConfig, codec *audio.Codec) (*Loader, error) {
	if info, err := os.Stat(runnerPath); err != nil || info.IsDir() {
		return nil, fmt.Errorf("runner binary not found at %s: %w", runnerPath, err)
	}

	if err := source.EnsureModelsDirectory(modelsDir); err != nil {
		return nil, err
	}

	return &Loader{
		runnerPath: runnerPath,
		modelsDir:  modelsDir,
		download:   download,
		codec:      codec,
		downloader: &source.HuggingFaceDownloader{},
		servers:    NewServerManager(),
		client:     &http.Client{Timeout: synthesisTimeout},
		nextPort:   basePort,
	}, nil
}

// LoadModel downloads id if needed and starts a runner bound to the device
// profile. The runner is started in inference mode; the returned handle
// has no training-mode mutation path.
func (l *Loader) LoadModel(ctx context.Context, id string, dev device.Profile) (engine.Model, error) {
	path, cached, err := l.downloader.Download(ctx, id, l.download, l.modelsDir)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch model artifacts for %s: %w", id, err)
	}

	if cached {
		slog.Debug("Using cached model artifacts", "model_id", id, "path", path)
	}

	port := l.allocPort()
	name := serverName(id)

	args := []string{
		"--model", path,
		"--port", strconv.Itoa(port),
		"--device", dev.Name,
		"--dtype", string(dev.Precision),
		"--inference",
	}
	if dev.Kind == device.KindCPU {
		// Best-effort concurrency tuning; the runner ignores what it
		// cannot apply.
		args = append(args,
			"--threads", strconv.Itoa(dev.ComputeThreads),
			"--interop-threads", strconv.Itoa(dev.InteropThreads),
		)
	}

	if err := l.servers.StartServer(ServerConfig{
		Name:    name,
		BinPath: l.runnerPath,
		Args:    args,
		Port:    port,
	}); err != nil {
		return nil, err
	}

	return &runnerModel{
		id:      id,
		name:    name,
		port:    port,
		baseURL: fmt.Sprintf("http://localhost:%d", port),
		loader:  l,
	}, nil
}

// LoadTokenizer downloads the tokenizer artifacts. The tokenizer is
// consumed by runner processes from disk and needs no resident process of
// its own.
func (l *Loader) LoadTokenizer(ctx context.Context, id string, _ device.Profile) (engine.Tokenizer, error) {
	path, _, err := l.downloader.Download(ctx, id, l.download, l.modelsDir)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch tokenizer artifacts for %s: %w", id, err)
	}

	return &runnerTokenizer{id: id, path: path}, nil
}

// ReleaseDeviceCache stops any runner process still resident, returning
// their device allocations to the system.
func (l *Loader) ReleaseDeviceCache(_ context.Context) error {
	l.servers.StopAll()
	return nil
}

func (l *Loader) allocPort() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	port := l.nextPort
	l.nextPort++
	return port
}

func serverName(id string) string {
	return strings.ReplaceAll(id, "/", "_")
}

// synthesisPayload is the runner wire request.
type synthesisPayload struct {
	Text           string  `json:"text"`
	Language       string  `json:"language,omitempty"`
	Voice          string  `json:"voice,omitempty"`
	Instruction    string  `json:"instruction,omitempty"`
	Speed          float64 `json:"speed,omitempty"`
	ReferenceAudio string  `json:"reference_audio,omitempty"` // base64 wav
	ReferenceText  string  `json:"reference_text,omitempty"`
	XVectorOnly    bool    `json:"x_vector_only,omitempty"`
}

type runnerModel struct {
	id      string
	name    string
	port    int
	baseURL string
	loader  *Loader
}

func (m *runnerModel) ID() string {
	return m.id
}

// Synthesize posts the request to the resident runner and decodes the wav
// response into a mono buffer at the model's native rate.
func (m *runnerModel) Synthesize(ctx context.Context, req *engine.SynthesisRequest) (*audio.Buffer, error) {
	payload := synthesisPayload{
		Text:          req.Text,
		Language:      req.Language,
		Voice:         req.Voice,
		Instruction:   req.Instruction,
		Speed:         req.Speed,
		ReferenceText: req.ReferenceText,
		XVectorOnly:   req.XVectorOnly,
	}

	if req.ReferenceAudio != nil {
		encoded, err := m.loader.codec.Encode(req.ReferenceAudio, audio.FormatWAV, "")
		if err != nil {
			return nil, fmt.Errorf("failed to encode reference audio: %w", err)
		}
		payload.ReferenceAudio = base64.StdEncoding.EncodeToString(encoded.Data)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal synthesis request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+"/synthesize", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create synthesis request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := m.loader.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("synthesis call to %s failed: %w", m.id, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read synthesis response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("synthesis call to %s returned %d: %s", m.id, resp.StatusCode, data)
	}

	return m.loader.codec.Decode(data, 0)
}

// Release stops the resident runner process.
func (m *runnerModel) Release() error {
	return m.loader.servers.StopServer(m.name, m.port)
}

type runnerTokenizer struct {
	id   string
	path string
}

func (t *runnerTokenizer) ID() string {
	return t.id
}

func (t *runnerTokenizer) Release() error {
	return nil
}
