package engine

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"github.com/miradorstack/model-graveyard/internal/models"
)

const (
	// DefaultProbeTimeout bounds a single liveness check.
	DefaultProbeTimeout = 60 * time.Second
	// DefaultPrompt is sent to the model on every probe.
	DefaultPrompt = "Reply PONG"
)

// DefaultCommand is the liveness check invocation; {model} and {prompt} are substituted.
var DefaultCommand = []string{"opencode", "run", "--format", "json", "-m", "{model}", "{prompt}"}

// CommandResult captures one external command invocation.
type CommandResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// CommandRunner abstracts process execution for testability.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) (CommandResult, error)
}

// execWaitDelay bounds how long Run waits for output pipes after the process
// has been killed, so descendants holding them open cannot outlive the timeout.
const execWaitDelay = 500 * time.Millisecond

// ExecRunner executes commands via os/exec. On unix the command runs in its
// own process group and cancellation kills the whole group.
type ExecRunner struct{}

// Run executes one command and captures stdout, stderr and exit code. A
// non-zero exit is reported in the result, not as an error.
func (ExecRunner) Run(ctx context.Context, name string, args ...string) (CommandResult, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = execWaitDelay
	killProcessGroupOnCancel(cmd)

	err := cmd.Run()
	result := CommandResult{Stdout: stdout.String(), Stderr: stderr.String()}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return result, ctxErr
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
			return result, nil
		}
		result.ExitCode = -1
		return result, err
	}
	return result, nil
}

// Probe checks a single model and returns its classified outcome.
type Probe interface {
	Probe(ctx context.Context, model string) models.ProbeOutcome
}

// ProbeFunc adapts a function to the Probe interface.
type ProbeFunc func(ctx context.Context, model string) models.ProbeOutcome

// Probe implements Probe.
func (f ProbeFunc) Probe(ctx context.Context, model string) models.ProbeOutcome {
	return f(ctx, model)
}

// ProberConfig configures the external liveness check.
type ProberConfig struct {
	Command []string
	Prompt  string
	Timeout time.Duration
}

// Prober runs one external liveness check per call.
type Prober struct {
	cfg    ProberConfig
	runner CommandRunner
	logger *slog.Logger
	now    func() time.Time
}

// NewProber constructs a Prober; a nil runner uses ExecRunner.
func NewProber(cfg ProberConfig, runner CommandRunner, logger *slog.Logger) *Prober {
	if len(cfg.Command) == 0 {
		cfg.Command = DefaultCommand
	}
	if cfg.Prompt == "" {
		cfg.Prompt = DefaultPrompt
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultProbeTimeout
	}
	if runner == nil {
		runner = ExecRunner{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Prober{cfg: cfg, runner: runner, logger: logger, now: time.Now}
}

// Probe invokes the liveness check for model, bounded by the configured timeout.
func (p *Prober) Probe(ctx context.Context, model string) models.ProbeOutcome {
	start := p.now()
	probeCtx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	name, args := p.command(model)
	result, err := p.runner.Run(probeCtx, name, args...)
	latency := p.now().Sub(start).Milliseconds()

	if errors.Is(err, context.DeadlineExceeded) {
		p.logger.Debug("probe timed out", slog.String("model", model), slog.Int64("latency_ms", latency))
		return Outcome(CodeTimeout, "Timeout", latency)
	}

	if err != nil {
		p.logger.Warn("probe command failed", slog.String("model", model), slog.Any("error", err))
		return probeFailedOutcome(latency)
	}

	message, alive := scanEvents(result.Stdout)
	if alive {
		return Outcome(CodeAlive, "", latency)
	}
	if message == "" {
		message = strings.TrimSpace(result.Stderr)
	}

	code := ClassifyError(message)
	p.logger.Debug("probe classified",
		slog.String("model", model),
		slog.Int("code", code),
		slog.Int("exit_code", result.ExitCode),
		slog.String("message", message),
	)
	return Outcome(code, message, latency)
}

func (p *Prober) command(model string) (string, []string) {
	replacer := strings.NewReplacer("{model}", model, "{prompt}", p.cfg.Prompt)
	args := make([]string, 0, len(p.cfg.Command)-1)
	for _, arg := range p.cfg.Command[1:] {
		args = append(args, replacer.Replace(arg))
	}
	return p.cfg.Command[0], args
}

// scanEvents walks stdout until the first text or error event.
func scanEvents(stdout string) (message string, alive bool) {
	scanner := bufio.NewScanner(strings.NewReader(stdout))
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		event, err := ParseEvent(scanner.Text())
		if err != nil {
			continue
		}
		switch event.Kind {
		case EventText:
			return "", true
		case EventError:
			return event.Message, false
		}
	}
	return "", false
}
