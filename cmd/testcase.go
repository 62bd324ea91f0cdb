package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// A Testcase pairs one constant binding with optional reference results to
// compare predictions against.
type Testcase struct {
	Constants map[string]int     `yaml:"constants"`
	Results   map[string]float64 `yaml:"results"`
}

// testcasePath returns the sibling testcase file of a kernel file,
// "daxpy.c" mapping to "daxpy.testcases".
func testcasePath(kernelPath string) string {
	ext := filepath.Ext(kernelPath)

	return strings.TrimSuffix(kernelPath, ext) + ".testcases"
}

// loadTestcases reads the sibling testcase file of a kernel.
func loadTestcases(kernelPath string) ([]Testcase, error) {
	path := testcasePath(kernelPath)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cases []Testcase
	if err := yaml.Unmarshal(data, &cases); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	if len(cases) == 0 {
		return nil, fmt.Errorf("%s contains no testcases", path)
	}

	return cases, nil
}
