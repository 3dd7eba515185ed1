package service

import (
	"bytes"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/Harikrishna-AL/MedX/canvas"
	"github.com/Harikrishna-AL/MedX/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testWorkflow = `{
  "1": {"class_type": "CheckpointLoader", "inputs": {"ckpt_name": "model.safetensors"}},
  "2": {"class_type": "LoadImage", "inputs": {"image": "placeholder.png"}},
  "3": {"class_type": "SaveImage", "inputs": {"images": ["2", 0]}}
}`

func solidPNG(t *testing.T, w, h int, c color.Color) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// fakeRemote 模拟分割、去背景、融合、保存与图库服务
type fakeRemote struct {
	t *testing.T

	mu sync.Mutex

	detectStatus int
	detectHook   func()
	blendHook    func()
	blendAck     string

	rec fakeCalls

	result  []byte
	cutout  []byte
	maskPNG []byte
	gallery []model.ImageRecord
}

// fakeCalls 记录收到的请求
type fakeCalls struct {
	uploads      []string
	detects      []model.DetectRequest
	outputPaths  []string
	outputBodies []map[string]any
	foregrounds  [][]byte
	targets      [][]byte
	saves        []string
	auth         []string
}

func (f *fakeRemote) calls() fakeCalls {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rec
}

func (f *fakeRemote) update(fn func(f *fakeRemote)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

func newFakeRemote(t *testing.T) *fakeRemote {
	return &fakeRemote{
		t:        t,
		blendAck: "true",
		result:   solidPNG(t, 40, 20, color.NRGBA{B: 255, A: 255}),
		cutout:   solidPNG(t, 40, 20, color.NRGBA{R: 255, A: 255}),
		maskPNG:  solidPNG(t, 40, 20, color.White),
		gallery: []model.ImageRecord{
			{ID: "1", Filename: "a.png", Type: CategoryRemove},
			{ID: "2", Filename: "b.png", Type: CategoryAdd},
			{ID: "3", Filename: "c.png", Type: CategoryRemove},
		},
	}
}

// formFile 字段缺失时回复 400
func (f *fakeRemote) formFile(w http.ResponseWriter, r *http.Request, field string) ([]byte, string, bool) {
	file, header, err := r.FormFile(field)
	if !assert.NoError(f.t, err, "missing form field %s", field) {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return nil, "", false
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return nil, "", false
	}
	return data, header.Filename, true
}

func (f *fakeRemote) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /upload/image", func(w http.ResponseWriter, r *http.Request) {
		_, filename, ok := f.formFile(w, r, "image")
		if !ok {
			return
		}
		f.mu.Lock()
		f.rec.uploads = append(f.rec.uploads, filename)
		f.mu.Unlock()
		writeJSON(w, model.MaskReference{Name: filename, Type: "input"})
	})

	mux.HandleFunc("POST /sam/detect", func(w http.ResponseWriter, r *http.Request) {
		var req model.DetectRequest
		if !assert.NoError(f.t, json.NewDecoder(r.Body).Decode(&req)) {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}

		f.mu.Lock()
		f.rec.detects = append(f.rec.detects, req)
		n := len(f.rec.detects)
		status, hook := f.detectStatus, f.detectHook
		f.mu.Unlock()

		if hook != nil {
			hook()
		}
		if status != 0 {
			http.Error(w, "segmentation failed", status)
			return
		}
		writeJSON(w, model.MaskReference{
			Name:         fmt.Sprintf("mask_%d.png", n),
			MaskFilename: fmt.Sprintf("mask_preview_%d.png", n),
		})
	})

	mux.HandleFunc("POST /output", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		if !assert.NoError(f.t, json.NewDecoder(r.Body).Decode(&body)) {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		f.mu.Lock()
		f.rec.outputPaths = append(f.rec.outputPaths, r.URL.Query().Get("image_path"))
		f.rec.outputBodies = append(f.rec.outputBodies, body)
		f.mu.Unlock()
		w.Header().Set("Content-Type", "image/png")
		w.Write(f.result)
	})

	mux.HandleFunc("GET /view", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write(f.maskPNG)
	})

	mux.HandleFunc("POST /removebackground", func(w http.ResponseWriter, r *http.Request) {
		if _, _, ok := f.formFile(w, r, "seg_image"); !ok {
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Write(f.cutout)
	})

	mux.HandleFunc("POST /blend/upload", func(w http.ResponseWriter, r *http.Request) {
		data, _, ok := f.formFile(w, r, "src_image")
		if !ok {
			return
		}
		f.mu.Lock()
		f.rec.foregrounds = append(f.rec.foregrounds, data)
		ack := f.blendAck
		f.mu.Unlock()
		writeJSON(w, model.UploadAck{Success: ack, Message: "source uploaded"})
	})

	mux.HandleFunc("POST /blend", func(w http.ResponseWriter, r *http.Request) {
		data, _, ok := f.formFile(w, r, "target_image")
		if !ok {
			return
		}
		f.mu.Lock()
		f.rec.targets = append(f.rec.targets, data)
		hook, result := f.blendHook, f.result
		f.mu.Unlock()

		if hook != nil {
			hook()
		}
		w.Header().Set("Content-Type", "image/png")
		w.Write(result)
	})

	mux.HandleFunc("POST /upload-image", func(w http.ResponseWriter, r *http.Request) {
		_, filename, ok := f.formFile(w, r, "file")
		if !ok {
			return
		}
		category := r.URL.Query().Get("type")
		f.mu.Lock()
		f.rec.saves = append(f.rec.saves, category)
		f.rec.auth = append(f.rec.auth, r.Header.Get("Authorization"))
		f.mu.Unlock()
		writeJSON(w, model.ImageRecord{ID: "42", Filename: filename, Username: "doctor", Type: category})
	})

	mux.HandleFunc("GET /images", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "" {
			http.Error(w, "not authenticated", http.StatusUnauthorized)
			return
		}
		writeJSON(w, f.gallery)
	})

	return mux
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

type stubPreviewer struct {
	original, mask []byte
	keepLargest    bool
}

func (s *stubPreviewer) Preview(original, mask []byte, keepLargest bool) ([]byte, error) {
	s.original, s.mask, s.keepLargest = original, mask, keepLargest
	return []byte("preview"), nil
}

// newTestEditor 所有远程服务都指向同一个假服务
func newTestEditor(t *testing.T, f *fakeRemote) (*Editor, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(f.handler())
	t.Cleanup(srv.Close)

	wf, err := ParseWorkflow([]byte(testWorkflow))
	require.NoError(t, err)

	return NewEditor(EditorDeps{
		Segmentation: NewSegmentationClient(srv.URL, 0),
		Preprocess:   NewPreprocessClient(srv.URL, 0),
		Blend:        NewBlendClient(srv.URL, 0),
		Persistence:  NewPersistenceClient(srv.URL, 0),
		Gallery:      NewGalleryClient(srv.URL, 0),
		Masks:        &stubPreviewer{},
		Workflow:     wf,
	}, EditorOptions{
		Threshold: 0.92,
		Overlay:   canvas.DefaultOverlayOptions(),
		Render:    canvas.DefaultRenderOptions(),
	}), srv
}
