package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tendant/odm-dispatcher/internal/process"
)

const redacted = "****"

// AzureCLI drives Azure Container Instances through the az command line.
type AzureCLI struct {
	resourceGroup string
	binary        string
	runner        Runner
	logger        *slog.Logger
	tracer        trace.Tracer
}

// NewAzureCLI returns an orchestrator bound to resourceGroup. A nil runner
// executes the real az binary.
func NewAzureCLI(resourceGroup string, runner Runner, logger *slog.Logger) *AzureCLI {
	if runner == nil {
		runner = ExecRunner{}
	}
	return &AzureCLI{
		resourceGroup: resourceGroup,
		binary:        "az",
		runner:        runner,
		logger:        logger.With("orchestrator", "azure-cli"),
		tracer:        otel.Tracer("odm-dispatcher-orchestrator"),
	}
}

// CreateArgs builds the `az container create` argument list for spec.
func (a *AzureCLI) CreateArgs(spec JobSpec) []string {
	restart := spec.RestartPolicy
	if restart == "" {
		restart = "Never"
	}
	args := []string{
		"container", "create",
		"--resource-group", a.resourceGroup,
		"--name", spec.Name,
		"--image", spec.Image,
		"--restart-policy", restart,
		"--cpu", formatFloat(spec.CPU),
		"--memory", formatFloat(spec.MemoryGB),
	}
	if spec.Registry.Server != "" {
		args = append(args, "--registry-login-server", spec.Registry.Server)
	}
	if spec.Registry.Username != "" {
		args = append(args,
			"--registry-username", spec.Registry.Username,
			"--registry-password", spec.Registry.Password,
		)
	}
	args = append(args,
		"--azure-file-volume-account-name", spec.Volume.AccountName,
		"--azure-file-volume-account-key", spec.Volume.AccountKey,
		"--azure-file-volume-share-name", spec.Volume.ShareName,
		"--azure-file-volume-mount-path", spec.Volume.MountPath,
		"--command-line", spec.CommandLine,
	)
	return args
}

// Redact masks secret flag values in args for logging.
func Redact(args []string) []string {
	out := make([]string, len(args))
	copy(out, args)
	for i := 0; i < len(out)-1; i++ {
		switch out[i] {
		case "--registry-password", "--azure-file-volume-account-key":
			out[i+1] = redacted
		}
	}
	return out
}

func (a *AzureCLI) Launch(ctx context.Context, spec JobSpec) error {
	ctx, span := a.tracer.Start(ctx, "orchestrator.azure.Launch",
		trace.WithAttributes(
			attribute.String("job.name", spec.Name),
			attribute.String("job.image", spec.Image),
		))
	defer span.End()

	args := a.CreateArgs(spec)
	a.logger.Info("launching container", "job_name", spec.Name, "command", a.binary+" "+strings.Join(Redact(args), " "))

	stdout, _, err := a.runner.Run(ctx, a.binary, args...)
	if err != nil {
		span.SetStatus(codes.Error, "container create failed")
		span.RecordError(err)
		return fmt.Errorf("launch %s: %w", spec.Name, err)
	}
	a.logger.Info("container started", "job_name", spec.Name, "output_bytes", len(stdout))
	return nil
}

func (a *AzureCLI) Status(ctx context.Context, name string) (process.Status, error) {
	stdout, _, err := a.runner.Run(ctx, a.binary,
		"container", "show",
		"--resource-group", a.resourceGroup,
		"--name", name,
		"--query", "instanceView.state",
		"--output", "tsv",
	)
	if err != nil {
		return process.StatusUnknown, fmt.Errorf("status %s: %w", name, err)
	}
	return process.Status(strings.TrimSpace(stdout)), nil
}

func (a *AzureCLI) Terminate(ctx context.Context, name string) error {
	_, _, err := a.runner.Run(ctx, a.binary,
		"container", "delete",
		"--resource-group", a.resourceGroup,
		"--name", name,
		"--yes",
	)
	if err != nil {
		return fmt.Errorf("terminate %s: %w", name, err)
	}
	a.logger.Info("container deleted", "job_name", name)
	return nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
