package app

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chaos-io/bgblend/background"
	"github.com/chaos-io/bgblend/config"
	"github.com/chaos-io/bgblend/mask"
	"github.com/chaos-io/bgblend/pipeline"
	"github.com/chaos-io/bgblend/raster"
)

func solid(w, h int, c color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = c.R, c.G, c.B, c.A
	}
	return img
}

func writePNG(t *testing.T, path string, img image.Image) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())
}

// fakeModel 模拟分割服务: 左半边是 person，其余是 background
func fakeModel(t *testing.T, labels []string) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/labels", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"model_id": r.URL.Query().Get("model_id"), "labels": labels})
	})
	mux.HandleFunc("/api/segment", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Image string `json:"image"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		data, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(req.Image, "data:image/png;base64,"))
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		img, err := png.Decode(strings.NewReader(string(data)))
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		b := img.Bounds()
		classes := make([]int, 0, b.Dx()*b.Dy())
		for y := 0; y < b.Dy(); y++ {
			for x := 0; x < b.Dx(); x++ {
				if x < b.Dx()/2 {
					classes = append(classes, 1)
				} else {
					classes = append(classes, 0)
				}
			}
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"width": b.Dx(), "height": b.Dy(), "class_map": classes})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func baseSettings(t *testing.T) *config.Settings {
	t.Helper()
	root := t.TempDir()
	in := filepath.Join(root, "in")
	bgDir := filepath.Join(root, "backgrounds")
	require.NoError(t, os.MkdirAll(in, 0755))
	require.NoError(t, os.MkdirAll(bgDir, 0755))
	writePNG(t, filepath.Join(bgDir, "beach.png"), solid(3, 3, color.NRGBA{B: 255, A: 255}))

	return &config.Settings{
		ModelID:            "fcn",
		TargetLabels:       []string{"person"},
		BackgroundImages:   bgDir,
		Image:              "beach.png",
		UseBackgroundImage: true,
		Kernel:             "gaussian",
		DilationShape:      "cross",
		Interpolation:      "nearest",
		InputDir:           in,
		OutputDir:          filepath.Join(root, "out"),
		LogMode:            "debug",
	}
}

func TestBackgroundMode(t *testing.T) {
	t.Parallel()

	s := &config.Settings{
		BackgroundImages:   "/bg",
		Image:              "a.jpg",
		UseBackgroundImage: true,
		Blur:               true,
		BlurLevel:          4,
		Kernel:             "box",
		Interpolation:      "lanczos",
	}
	assert.Equal(t, background.ImageMode{
		Path:          "/bg/a.jpg",
		Interpolation: background.Lanczos,
		BlurRadius:    4,
		Kernel:        raster.KernelBox,
	}, BackgroundMode(s))

	s.Blur = false
	assert.Equal(t, 0, BackgroundMode(s).(background.ImageMode).BlurRadius)

	s.UseBackgroundImage, s.Blur = false, true
	assert.Equal(t, background.BlurMode{Radius: 4, Kernel: raster.KernelBox}, BackgroundMode(s))

	opts := SmootherOptions(&config.Settings{BlurLevel: 3, SmoothingDecay: 0.25, Kernel: "gaussian"})
	assert.Equal(t, 3, opts.Radius)
	assert.Equal(t, 0.25, opts.Decay)
	assert.Equal(t, raster.KernelGaussian, opts.Kernel)
}

func TestApp_RunEndToEnd(t *testing.T) {
	t.Parallel()

	s := baseSettings(t)
	srv := fakeModel(t, []string{"background", "person"})
	s.SegmenterURL = srv.URL

	writePNG(t, filepath.Join(s.InputDir, "0001.png"), solid(4, 2, color.NRGBA{R: 255, A: 255}))
	require.NoError(t, os.WriteFile(filepath.Join(s.InputDir, "0002.png"), []byte("not a png"), 0644))
	writePNG(t, filepath.Join(s.InputDir, "0003.png"), solid(4, 2, color.NRGBA{G: 255, A: 255}))

	a, err := Build(context.Background(), s, Deps{})
	require.NoError(t, err)
	assert.Nil(t, a.Streamer)
	require.NoError(t, a.Run(context.Background()))

	assert.Equal(t, pipeline.Stopped, a.Orchestrator.State())
	stats := a.Orchestrator.Stats()
	assert.Equal(t, int64(2), stats.Emitted)
	assert.Equal(t, int64(1), stats.Dropped)

	assert.NoFileExists(t, filepath.Join(s.OutputDir, "frame_000001.png"))
	got, err := imaging.Open(filepath.Join(s.OutputDir, "frame_000002.png"))
	require.NoError(t, err)
	out := imaging.Clone(got)
	// 左半是前景原色，右半是蓝色背景
	assert.Equal(t, color.NRGBA{G: 255, A: 255}, out.NRGBAAt(0, 0))
	assert.Equal(t, color.NRGBA{B: 255, A: 255}, out.NRGBAAt(3, 1))
}

func TestApp_MissingBackgroundStops(t *testing.T) {
	t.Parallel()

	s := baseSettings(t)
	s.Image = "missing.png"
	writePNG(t, filepath.Join(s.InputDir, "0001.png"), solid(2, 2, color.NRGBA{A: 255}))

	a, err := Build(context.Background(), s, Deps{Segmenter: segmenterFunc(func() mask.Result {
		t.Error("segmenter must not be called")
		return nil
	})})
	require.NoError(t, err)

	err = a.Run(context.Background())
	assert.ErrorIs(t, err, background.ErrBackgroundLoad)
	assert.Equal(t, pipeline.Stopped, a.Orchestrator.State())
	assert.NoFileExists(t, filepath.Join(s.OutputDir, "frame_000000.png"))
}

func TestBuild_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		modify func(s *config.Settings)
	}{
		{name: "no segmenter", modify: func(s *config.Settings) {}},
		{name: "no input", modify: func(s *config.Settings) { s.SegmenterURL, s.InputDir = "http://127.0.0.1:1", "" }},
		{name: "no output", modify: func(s *config.Settings) { s.SegmenterURL, s.OutputDir = "http://127.0.0.1:1", "" }},
		{name: "bad decay", modify: func(s *config.Settings) { s.SmoothingDecay = 1 }},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s := baseSettings(t)
			tt.modify(s)
			_, err := Build(context.Background(), s, Deps{})
			assert.ErrorIs(t, err, config.ErrInvalidConfiguration)
		})
	}
}

func TestBuild_WithStreamer(t *testing.T) {
	t.Parallel()

	s := baseSettings(t)
	s.Listen = "127.0.0.1:0"
	a, err := Build(context.Background(), s, Deps{Segmenter: segmenterFunc(func() mask.Result { return nil })})
	require.NoError(t, err)
	require.NotNil(t, a.Streamer)

	w := httptest.NewRecorder()
	a.Streamer.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/status", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"state":"idle"`)
}

func TestCheck(t *testing.T) {
	t.Parallel()

	srv := fakeModel(t, []string{"background", "person"})

	s := baseSettings(t)
	s.SegmenterURL = srv.URL
	assert.NoError(t, Check(context.Background(), s, nil))

	s.TargetLabels = []string{"person", "cat"}
	err := Check(context.Background(), s, nil)
	assert.ErrorIs(t, err, config.ErrInvalidConfiguration)
	assert.Contains(t, err.Error(), "cat")

	s = baseSettings(t)
	s.Image = "missing.png"
	assert.ErrorIs(t, Check(context.Background(), s, nil), background.ErrBackgroundLoad)
}

type segmenterFunc func() mask.Result

func (f segmenterFunc) Infer(context.Context, image.Image) (mask.Result, error) {
	return f(), nil
}
