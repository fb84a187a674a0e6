package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	rfotel "github.com/Strob0t/ReleaseForge/internal/adapter/otel"
	"github.com/Strob0t/ReleaseForge/internal/adapter/restclient"
	"github.com/Strob0t/ReleaseForge/internal/domain/plan"
	"github.com/Strob0t/ReleaseForge/internal/logger"
	"github.com/Strob0t/ReleaseForge/internal/resilience"
	"github.com/Strob0t/ReleaseForge/internal/service"
)

type saveFlags struct {
	planID       string
	section      string
	localPath    string
	baselinePath string
}

func newSaveCmd(g *globalFlags) *cobra.Command {
	f := &saveFlags{}
	cmd := &cobra.Command{
		Use:   "save",
		Short: "Save local plan edits against a running API",
		Long: `Reads an edited plan from --file and commits the changed sections through
the REST API, retrying conflicts against a refreshed baseline. Without
--baseline the plan currently stored on the server is used as the baseline.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, g)
			if err != nil {
				return err
			}
			log, closer := logger.NewWithWriter(cfg.Logging, cmd.ErrOrStderr())
			defer closer.Close()
			slog.SetDefault(log)

			client := restclient.New(cfg.Client.BaseURL, cfg.Client.Timeout)
			client.SetBreaker(resilience.NewBreaker(cfg.Breaker.MaxFailures, cfg.Breaker.Timeout))
			client.SetTransport(rfotel.Transport(nil))

			saver := service.NewSaveService(client, client, client, nil, saveOptions(cfg))
			return runSave(cmd, f, client, saver)
		},
	}
	cmd.Flags().StringVar(&f.planID, "plan", "", "plan ID (defaults to the id in --file)")
	cmd.Flags().StringVar(&f.section, "section", "all", "section to save, or all")
	cmd.Flags().StringVar(&f.localPath, "file", "", "JSON file with the edited plan")
	cmd.Flags().StringVar(&f.baselinePath, "baseline", "", "JSON file with the plan as it was loaded")
	cmd.Flags().String("api", "", "base URL of the ReleaseForge API")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func runSave(cmd *cobra.Command, f *saveFlags, client *restclient.Client, saver *service.SaveService) error {
	ctx := cmd.Context()

	local, err := readPlan(f.localPath)
	if err != nil {
		return err
	}
	id := f.planID
	if id == "" {
		id = local.ID
	}
	if id == "" {
		return errors.New("plan id missing: pass --plan or set id in the file")
	}
	local.ID = id

	var base *plan.Plan
	if f.baselinePath != "" {
		if base, err = readPlan(f.baselinePath); err != nil {
			return err
		}
	} else if base, err = client.GetPlan(ctx, id); err != nil {
		return fmt.Errorf("load baseline: %w", err)
	}
	if base.ID != id {
		return fmt.Errorf("baseline is plan %q, not %q", base.ID, id)
	}

	baseline := service.NewBaseline(base)
	var res *service.SaveResult
	if f.section == "all" {
		res, err = saver.SaveAll(ctx, baseline, local)
	} else {
		sec, perr := plan.ParseSection(f.section)
		if perr != nil {
			return perr
		}
		res, err = saver.SaveSection(ctx, baseline, sec, local)
	}

	if res != nil {
		if werr := printResult(cmd.OutOrStdout(), res); werr != nil {
			return werr
		}
	}
	if err != nil {
		var fail *resilience.Failure
		if errors.As(err, &fail) {
			return fmt.Errorf("save failed (%s, retryable=%t): %s", fail.Class, fail.Retryable, fail.Message)
		}
		return err
	}
	if failed := res.Failed(); len(failed) > 0 {
		slog.Warn("plan saved, some dependent updates failed", "plan_id", id, "failed", len(failed))
	}
	return nil
}

func readPlan(path string) (*plan.Plan, error) {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is chosen by the operator
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var p plan.Plan
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &p, nil
}

func printResult(w io.Writer, res *service.SaveResult) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}
