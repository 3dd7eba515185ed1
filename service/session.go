package service

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Harikrishna-AL/MedX/canvas"
	"github.com/Harikrishna-AL/MedX/model"
	"github.com/google/uuid"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrWrongWorkflow   = errors.New("operation not available in this workflow")
)

// WorkflowKind 会话所属的编辑流程
type WorkflowKind string

const (
	WorkflowSegment   WorkflowKind = "segment"
	WorkflowComposite WorkflowKind = "composite"
)

func ParseWorkflowKind(s string) (WorkflowKind, error) {
	switch WorkflowKind(s) {
	case WorkflowSegment, WorkflowComposite:
		return WorkflowKind(s), nil
	}
	return "", ErrWrongWorkflow
}

// Result 最近一次成功提交得到的图像
type Result struct {
	Image     []byte
	MD5       string
	Category  string
	URL       string
	CreatedAt time.Time
}

// Session 单个编辑视图的状态。几何状态由 mu 保护，网络步骤运行时不持有 mu。
type Session struct {
	ID       string
	Workflow WorkflowKind

	mu sync.Mutex

	canvas     *canvas.State
	source     []byte
	sourcePath string
	uploaded   string

	points  canvas.PointCollection
	overlay *canvas.Overlay
	mask    *model.MaskReference
	result  *Result

	// submit 负责检测/生成或融合；preprocess 负责叠加对象去背景
	submit     *Pipeline
	preprocess *Pipeline

	// lastSeen 最近一次访问的 UnixNano
	lastSeen atomic.Int64
}

func (s *Session) busy() bool {
	return s.submit.InFlight() || s.preprocess.InFlight()
}

func newSession(kind WorkflowKind, state *canvas.State, source []byte, sourcePath string, overlay canvas.OverlayOptions) *Session {
	name := "segmentation"
	if kind == WorkflowComposite {
		name = "composite"
	}
	return &Session{
		ID:         uuid.NewString(),
		Workflow:   kind,
		canvas:     state,
		source:     source,
		sourcePath: sourcePath,
		overlay:    canvas.NewOverlay(overlay),
		submit:     NewPipeline(name),
		preprocess: NewPipeline("preprocess"),
	}
}

// snapshot 在持有锁时调用
func (s *Session) snapshot() model.SessionSnapshot {
	snap := model.SessionSnapshot{
		ID:            s.ID,
		Workflow:      string(s.Workflow),
		ImageName:     s.canvas.Name,
		NaturalSize:   s.canvas.Natural(),
		ContainerSize: s.canvas.Container,
		DisplaySize:   s.canvas.Display,
		Points:        s.points.Points(),
		Overlay:       s.overlay.Snapshot(),
		InFlight:      s.submit.InFlight(),
		Preprocessing: s.preprocess.InFlight(),
	}
	if s.mask != nil {
		m := *s.mask
		snap.Mask = &m
	}
	if s.result != nil {
		snap.ResultURL = s.result.URL
		snap.ResultMD5 = s.result.MD5
	}
	return snap
}

// SessionManager 内存中的会话表，每次 Get 刷新访问时间
type SessionManager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	now      func() time.Time
}

func NewSessionManager() *SessionManager {
	return &SessionManager{sessions: make(map[string]*Session), now: time.Now}
}

func (m *SessionManager) Add(s *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s.lastSeen.Store(m.now().UnixNano())
	m.sessions[s.ID] = s
}

func (m *SessionManager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	s.lastSeen.Store(m.now().UnixNano())
	return s, nil
}

// Idle 返回超过 ttl 未访问且没有提交进行中的会话 ID
func (m *SessionManager) Idle(ttl time.Duration) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	cutoff := m.now().Add(-ttl).UnixNano()
	var ids []string
	for id, s := range m.sessions {
		if s.lastSeen.Load() < cutoff && !s.busy() {
			ids = append(ids, id)
		}
	}
	return ids
}

// Remove 删除并返回会话
func (m *SessionManager) Remove(id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	delete(m.sessions, id)
	return s, nil
}

func (m *SessionManager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
