package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/dukex/parley/pkg/cmd"
	"github.com/dukex/parley/pkg/models"
	"github.com/dukex/parley/pkg/services"
	"github.com/go-playground/validator/v10"
	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"
)

var (
	ErrInvalidWorkflows = errors.New("invalid workflow definitions found")
	ErrStaleReferences  = errors.New("stale default flow references found")
	ErrNothingToCheck   = errors.New("pass workflow files or --database-url")
)

func NewValidateCommand() *cli.Command {
	return &cli.Command{
		Name:      "validate",
		Aliases:   []string{"v"},
		Usage:     "Validate workflow definition files and stored default flow references",
		ArgsUsage: "[workflow.yaml|workflow.json ...]",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "database-url",
				Usage:   "Also audit the default flow references stored behind this URL",
				Sources: cli.EnvVars("DATABASE_URL"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			logger := slog.With("module", "parley-api", "action", "validate")
			out := command.Root().Writer

			if out == nil {
				out = os.Stdout
			}

			files := command.Args().Slice()
			databaseURL := command.String("database-url")

			if len(files) == 0 && databaseURL == "" {
				return ErrNothingToCheck
			}

			var errs []error

			if len(files) > 0 {
				validate := validator.New(validator.WithRequiredStructEnabled())
				if err := validateFiles(out, validate, files); err != nil {
					errs = append(errs, err)
				}
			}

			if databaseURL != "" {
				if err := auditReferences(ctx, out, logger, databaseURL); err != nil {
					errs = append(errs, err)
				}
			}

			return errors.Join(errs...)
		},
	}
}

// loadWorkflowFile reads a workflow definition. YAML is a superset of JSON, so both are
// decoded by the YAML parser and mapped onto the JSON field names.
func loadWorkflowFile(path string) (*models.ConversationWorkflow, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var document any
	if err := yaml.Unmarshal(raw, &document); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	encoded, err := json.Marshal(document)
	if err != nil {
		return nil, fmt.Errorf("failed to convert %s: %w", path, err)
	}

	var workflow models.ConversationWorkflow
	if err := json.Unmarshal(encoded, &workflow); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}

	return &workflow, nil
}

func validateFiles(out io.Writer, validate *validator.Validate, paths []string) error {
	_, _ = fmt.Fprintln(out, "Workflow Validation Results:")
	_, _ = fmt.Fprintln(out, "============================")

	invalid := 0

	for _, path := range paths {
		issues, err := validateFile(validate, path)
		if err != nil {
			invalid++

			_, _ = fmt.Fprintf(out, "✗ %s: %v\n", path, err)

			continue
		}

		if len(issues) > 0 {
			invalid++

			_, _ = fmt.Fprintf(out, "✗ %s\n", path)
			for _, issue := range issues {
				_, _ = fmt.Fprintf(out, "    - %s\n", issue)
			}

			continue
		}

		_, _ = fmt.Fprintf(out, "✓ %s\n", path)
	}

	_, _ = fmt.Fprintf(out, "\n%d valid, %d invalid\n", len(paths)-invalid, invalid)

	if invalid > 0 {
		return fmt.Errorf("%w: %d of %d", ErrInvalidWorkflows, invalid, len(paths))
	}

	return nil
}

func validateFile(validate *validator.Validate, path string) ([]string, error) {
	workflow, err := loadWorkflowFile(path)
	if err != nil {
		return nil, err
	}

	if workflow.Trigger == "" {
		workflow.Trigger = models.TriggerConversationOpened
	}

	var issues []string

	var validationErrs validator.ValidationErrors
	if err := validate.Struct(workflow); errors.As(err, &validationErrs) {
		for _, fieldErr := range validationErrs {
			issues = append(issues, fmt.Sprintf("%s: failed %s", fieldErr.Field(), fieldErr.Tag()))
		}
	}

	if len(workflow.Steps) == 0 {
		if workflow.Active {
			issues = append(issues, services.ErrActiveWithoutSteps.Error())
		}

		return issues, nil
	}

	var graphIssues models.ValidationIssues
	if err := models.ValidateWorkflow(workflow); errors.As(err, &graphIssues) {
		for _, issue := range graphIssues {
			issues = append(issues, issue.String())
		}
	} else if err != nil {
		issues = append(issues, err.Error())
	}

	return issues, nil
}

func auditReferences(ctx context.Context, out io.Writer, logger *slog.Logger, databaseURL string) error {
	persistence, err := cmd.NewPersistence(ctx, logger, databaseURL)
	if err != nil {
		return err
	}

	defer func() {
		if err := persistence.Close(ctx); err != nil {
			logger.Error("Failed to close persistence", "error", err)
		}
	}()

	stale, err := services.NewAuditor(persistence, nil, logger).Scan(ctx)
	if err != nil {
		return fmt.Errorf("failed to audit default flows: %w", err)
	}

	_, _ = fmt.Fprintln(out, "\nDefault Flow References:")
	_, _ = fmt.Fprintln(out, "========================")

	if len(stale) == 0 {
		_, _ = fmt.Fprintln(out, "✓ every default flow resolves to an active workflow")

		return nil
	}

	for _, reference := range stale {
		_, _ = fmt.Fprintf(out, "✗ connection %s (business %s): %s is %s\n",
			reference.ConnectionID, reference.BusinessID, reference.DefaultFlowID, reference.Reason)
	}

	return fmt.Errorf("%w: %d", ErrStaleReferences, len(stale))
}
