package service

import (
	"encoding/json"
	"fmt"
	"os"
)

// imageNode 工作流中加载输入图像的节点编号
const imageNode = "2"

// Workflow 生成步骤提交的节点图描述，按原样转发，仅改写输入图像
type Workflow struct {
	raw []byte
}

func LoadWorkflow(path string) (*Workflow, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read workflow: %w", err)
	}
	return ParseWorkflow(data)
}

func ParseWorkflow(data []byte) (*Workflow, error) {
	nodes, err := decodeNodes(data)
	if err != nil {
		return nil, err
	}
	if _, err := inputsOf(nodes); err != nil {
		return nil, err
	}
	return &Workflow{raw: append([]byte(nil), data...)}, nil
}

// WithImage 返回输入图像替换为 imagePath 的副本
func (w *Workflow) WithImage(imagePath string) (map[string]any, error) {
	nodes, err := decodeNodes(w.raw)
	if err != nil {
		return nil, err
	}
	inputs, err := inputsOf(nodes)
	if err != nil {
		return nil, err
	}
	inputs["image"] = imagePath
	return nodes, nil
}

func decodeNodes(data []byte) (map[string]any, error) {
	var nodes map[string]any
	if err := json.Unmarshal(data, &nodes); err != nil {
		return nil, fmt.Errorf("invalid workflow: %w", err)
	}
	return nodes, nil
}

func inputsOf(nodes map[string]any) (map[string]any, error) {
	node, ok := nodes[imageNode].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("invalid workflow: node %q missing", imageNode)
	}
	inputs, ok := node["inputs"].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("invalid workflow: node %q has no inputs", imageNode)
	}
	return inputs, nil
}
