package encoder

import (
	"bytes"
	"fmt"
	"os/exec"
)

// Optimizer runs the external jpegtran tool to losslessly re-compress
// JPEG streams. The tool is optional; callers check Available first.
type Optimizer struct {
	path string
}

// NewOptimizer probes PATH for jpegtran.
func NewOptimizer() *Optimizer {
	path, err := exec.LookPath("jpegtran")
	if err != nil {
		return &Optimizer{}
	}
	return &Optimizer{path: path}
}

func (o *Optimizer) Available() bool {
	return o != nil && o.path != ""
}

// Optimize re-compresses a JPEG stream with optimized Huffman tables,
// keeping all markers intact.
func (o *Optimizer) Optimize(data []byte) ([]byte, error) {
	if !o.Available() {
		return nil, fmt.Errorf("jpegtran not found in PATH")
	}

	cmd := exec.Command(o.path, "-optimize", "-copy", "all")
	cmd.Stdin = bytes.NewReader(data)
	var out bytes.Buffer
	cmd.Stdout = &out

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("jpegtran: %w", err)
	}
	return out.Bytes(), nil
}
