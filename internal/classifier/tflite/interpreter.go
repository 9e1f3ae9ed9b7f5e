// Package tflite runs TensorFlow Lite models as soundscape classifiers and
// as embedding feature extractors.
package tflite

import (
	"bufio"
	"fmt"
	"os"
	"runtime"
	"strings"
	"sync"
	"time"

	tfl "github.com/tphakala/go-tflite"

	"github.com/urbansound/soundscape/internal/errors"
	"github.com/urbansound/soundscape/internal/logger"
)

var (
	serviceLogger logger.Logger
	initOnce      sync.Once
)

// GetLogger returns the tflite module logger
func GetLogger() logger.Logger {
	initOnce.Do(func() {
		serviceLogger = logger.Global().Module("classifier").Module("tflite")
	})
	return serviceLogger
}

// interpreter owns one TFLite interpreter. TFLite interpreters are not
// safe for concurrent Invoke, so every run holds mu.
type interpreter struct {
	mu     sync.Mutex
	interp *tfl.Interpreter
	path   string
}

// determineThreadCount caps the configured thread count at the number of
// CPUs; 0 means all of them.
func determineThreadCount(configured int) int {
	cpus := runtime.NumCPU()
	if configured <= 0 || configured > cpus {
		return cpus
	}
	return configured
}

func newInterpreter(modelPath, modelType string, threads int) (*interpreter, error) {
	start := time.Now()

	data, err := os.ReadFile(modelPath) //nolint:gosec // model path comes from config
	if err != nil {
		return nil, errors.New(err).
			Component("tflite").
			Category(errors.CategoryModelLoad).
			ModelContext(modelPath, modelType).
			Timing("model-load", time.Since(start)).
			Build()
	}

	model := tfl.NewModel(data)
	if model == nil {
		return nil, errors.New(fmt.Errorf("cannot load TensorFlow Lite model")).
			Component("tflite").
			Category(errors.CategoryModelInit).
			ModelContext(modelPath, modelType).
			Context("model_size_kb", len(data)/1024).
			Build()
	}

	options := tfl.NewInterpreterOptions()
	options.SetNumThread(determineThreadCount(threads))
	options.SetErrorReporter(func(msg string, _ any) {
		GetLogger().Error("TFLite error", logger.String("message", msg))
	}, nil)

	interp := tfl.NewInterpreter(model, options)
	if interp == nil {
		return nil, errors.New(fmt.Errorf("cannot create interpreter")).
			Component("tflite").
			Category(errors.CategoryModelInit).
			ModelContext(modelPath, modelType).
			Build()
	}
	if status := interp.AllocateTensors(); status != tfl.OK {
		interp.Delete()
		return nil, errors.New(fmt.Errorf("tensor allocation failed")).
			Component("tflite").
			Category(errors.CategoryModelInit).
			ModelContext(modelPath, modelType).
			Build()
	}

	GetLogger().Info("TFLite model initialized",
		logger.String("model", modelPath),
		logger.String("type", modelType),
		logger.Int("threads", determineThreadCount(threads)),
		logger.Duration("load_time", time.Since(start)))

	return &interpreter{interp: interp, path: modelPath}, nil
}

// tensorSize is the element count of a tensor
func tensorSize(t *tfl.Tensor) int {
	n := 1
	for i := range t.NumDims() {
		n *= t.Dim(i)
	}
	return n
}

// inputSize returns the element count of input tensor 0
func (in *interpreter) inputSize() int {
	in.mu.Lock()
	defer in.mu.Unlock()
	t := in.interp.GetInputTensor(0)
	if t == nil {
		return 0
	}
	return tensorSize(t)
}

// run copies input into tensor 0, invokes the model and returns a copy of
// output tensor idx together with its shape.
func (in *interpreter) run(input []float32, outputIdx int) ([]float32, []int, error) {
	in.mu.Lock()
	defer in.mu.Unlock()

	if in.interp == nil {
		return nil, nil, errors.New(fmt.Errorf("interpreter is closed")).
			Component("tflite").
			Category(errors.CategoryState).
			Build()
	}

	inputTensor := in.interp.GetInputTensor(0)
	if inputTensor == nil {
		return nil, nil, fmt.Errorf("cannot get input tensor")
	}
	copy(inputTensor.Float32s(), input)

	if status := in.interp.Invoke(); status != tfl.OK {
		return nil, nil, errors.New(fmt.Errorf("tensor invoke failed: %v", status)).
			Component("tflite").
			Category(errors.CategoryClassification).
			ModelContext(in.path, "").
			Build()
	}

	outputTensor := in.interp.GetOutputTensor(outputIdx)
	if outputTensor == nil {
		return nil, nil, fmt.Errorf("cannot get output tensor %d", outputIdx)
	}
	shape := make([]int, outputTensor.NumDims())
	for i := range shape {
		shape[i] = outputTensor.Dim(i)
	}
	out := make([]float32, tensorSize(outputTensor))
	copy(out, outputTensor.Float32s())
	return out, shape, nil
}

func (in *interpreter) close() {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.interp != nil {
		in.interp.Delete()
		in.interp = nil
	}
}

// LoadLabels reads one label per line, skipping blank lines
func LoadLabels(path string) ([]string, error) {
	file, err := os.Open(path) //nolint:gosec // label path comes from config
	if err != nil {
		return nil, errors.New(err).
			Component("tflite").
			Category(errors.CategoryModelLoad).
			FileContext(path, 0).
			Build()
	}
	defer func() { _ = file.Close() }()

	var labels []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			labels = append(labels, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.New(err).Component("tflite").Category(errors.CategoryFileIO).Build()
	}
	return labels, nil
}
