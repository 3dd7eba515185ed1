package service

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/Harikrishna-AL/MedX/utils"
	"go.uber.org/zap"
)

// ErrInFlight 同一流水线已有提交在进行中
var ErrInFlight = errors.New("submission already in flight")

// FailureKind 步骤失败的类别，仅用于日志与响应说明
type FailureKind string

const (
	KindTransport FailureKind = "transport"
	KindProtocol  FailureKind = "protocol"
	KindLocal     FailureKind = "local"
)

// StepError 流水线在某一步失败
type StepError struct {
	Pipeline string
	Step     string
	Kind     FailureKind
	Err      error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s: step %s failed (%s): %v", e.Pipeline, e.Step, e.Kind, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// Step 流水线中的一个顺序步骤
type Step struct {
	Name string
	Run  func(ctx context.Context) error
}

// Pipeline 单飞提交编排：同一时刻至多一次运行，首个失败步骤终止后续步骤
type Pipeline struct {
	name     string
	inFlight atomic.Bool
}

func NewPipeline(name string) *Pipeline {
	return &Pipeline{name: name}
}

func (p *Pipeline) Name() string { return p.name }

func (p *Pipeline) InFlight() bool { return p.inFlight.Load() }

// Run 依次执行 steps，所有退出路径上都会清除进行中标志
func (p *Pipeline) Run(ctx context.Context, session string, steps ...Step) error {
	if !p.inFlight.CompareAndSwap(false, true) {
		return ErrInFlight
	}
	defer p.inFlight.Store(false)

	start := time.Now()
	for _, step := range steps {
		stepStart := time.Now()
		utils.Logger.Debug("pipeline step started",
			zap.String("pipeline", p.name),
			zap.String("step", step.Name),
			zap.String("session", session))

		if err := step.Run(ctx); err != nil {
			stepErr := &StepError{Pipeline: p.name, Step: step.Name, Kind: classify(err), Err: err}

			fields := []zap.Field{
				zap.String("pipeline", p.name),
				zap.String("step", step.Name),
				zap.String("session", session),
				zap.String("kind", string(stepErr.Kind)),
				zap.Duration("duration", time.Since(stepStart)),
				zap.Error(err),
			}
			var statusErr *StatusError
			if errors.As(err, &statusErr) {
				fields = append(fields, zap.Int("status", statusErr.Code))
			}
			utils.Logger.Error("pipeline step failed", fields...)
			return stepErr
		}

		utils.Logger.Debug("pipeline step finished",
			zap.String("pipeline", p.name),
			zap.String("step", step.Name),
			zap.String("session", session),
			zap.Duration("duration", time.Since(stepStart)))
	}

	utils.Logger.Info("pipeline finished",
		zap.String("pipeline", p.name),
		zap.String("session", session),
		zap.Int("steps", len(steps)),
		zap.Duration("duration", time.Since(start)))
	return nil
}

func classify(err error) FailureKind {
	var statusErr *StatusError
	var transportErr *TransportError
	switch {
	case errors.As(err, &statusErr), errors.Is(err, ErrRejected):
		return KindProtocol
	case errors.As(err, &transportErr):
		return KindTransport
	default:
		return KindLocal
	}
}
