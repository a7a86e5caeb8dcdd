package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/sst/sst/internal/config"
	"github.com/sst/sst/internal/domain/access"
	"github.com/sst/sst/internal/domain/risk"
	"github.com/sst/sst/internal/platform/auth"
)

func riskCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "risk",
		Short: "Score IPERC risk lines offline",
	}

	scoreCmd := &cobra.Command{
		Use:   "score",
		Short: "Score one set of IPERC indices",
		RunE: func(cmd *cobra.Command, args []string) error {
			var in risk.Inputs
			in.A, _ = cmd.Flags().GetInt("personas")
			in.B, _ = cmd.Flags().GetInt("procedimientos")
			in.C, _ = cmd.Flags().GetInt("capacitacion")
			in.D, _ = cmd.Flags().GetInt("exposicion")
			in.Severity, _ = cmd.Flags().GetInt("severidad")
			matrixFile, _ := cmd.Flags().GetString("matrix")

			engine, err := riskEngine(&config.Config{RiskMatrixFile: matrixFile})
			if err != nil {
				return err
			}
			return scoreInputs(cmd.OutOrStdout(), engine, in)
		},
	}
	scoreCmd.Flags().Int("personas", 0, "Index A, people exposed (1-5)")
	scoreCmd.Flags().Int("procedimientos", 0, "Index B, existing procedures (1-5)")
	scoreCmd.Flags().Int("capacitacion", 0, "Index C, training (1-5)")
	scoreCmd.Flags().Int("exposicion", 0, "Index D, exposure (1-5)")
	scoreCmd.Flags().Int("severidad", 0, "Severity index (1-5)")
	scoreCmd.Flags().String("matrix", "", "Risk matrix YAML file (defaults to the built-in matrix)")
	cmd.AddCommand(scoreCmd)

	matrixCmd := &cobra.Command{
		Use:   "matrix",
		Short: "Print the active risk matrix",
		RunE: func(cmd *cobra.Command, args []string) error {
			matrixFile, _ := cmd.Flags().GetString("matrix")
			asJSON, _ := cmd.Flags().GetBool("json")

			engine, err := riskEngine(&config.Config{RiskMatrixFile: matrixFile})
			if err != nil {
				return err
			}
			return printMatrix(cmd.OutOrStdout(), engine.Matrix(), asJSON)
		},
	}
	matrixCmd.Flags().String("matrix", "", "Risk matrix YAML file (defaults to the built-in matrix)")
	matrixCmd.Flags().Bool("json", false, "Print JSON instead of YAML")
	cmd.AddCommand(matrixCmd)

	return cmd
}

func scoreInputs(w io.Writer, engine *risk.Engine, in risk.Inputs) error {
	res, err := engine.Score(in)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(risk.NewScoreResponse(res))
}

func printMatrix(w io.Writer, m risk.Matrix, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(m)
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(m); err != nil {
		return err
	}
	return enc.Close()
}

func examsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "exams",
		Short: "Maintain EMO records",
	}

	sweepCmd := &cobra.Command{
		Use:   "sweep",
		Short: "Mark due exams as por_vencer or vencido",
		RunE: func(cmd *cobra.Command, args []string) error {
			org, _ := cmd.Flags().GetString("org")
			rawDate, _ := cmd.Flags().GetString("fecha")
			if org == "" {
				return errors.New("--org is required")
			}
			at, err := sweepTime(rawDate, time.Now())
			if err != nil {
				return err
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.StoreDriver == config.StoreMemory {
				return errors.New("exams sweep needs a persistent STORE_DRIVER (postgres or badger)")
			}
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			return runSweep(ctx, cmd.OutOrStdout(), cfg, org, at)
		},
	}
	sweepCmd.Flags().String("org", "", "Organization whose exams are swept")
	sweepCmd.Flags().String("fecha", "", "Reference time in RFC 3339 or YYYY-MM-DD (defaults to now)")
	cmd.AddCommand(sweepCmd)

	return cmd
}

// sweepTime parses the --fecha flag. An empty value means now.
func sweepTime(raw string, now time.Time) (time.Time, error) {
	if raw == "" {
		return now, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --fecha %q: use RFC 3339 or YYYY-MM-DD", raw)
	}
	return t, nil
}

// sweepIdentity is the caller the offline sweep runs as.
func sweepIdentity(org string) auth.Identity {
	return auth.Identity{
		UserID:         "system:exams-sweep",
		Roles:          []string{string(access.RoleSuperAdmin)},
		OrganizationID: org,
	}
}

func runSweep(ctx context.Context, w io.Writer, cfg *config.Config, org string, at time.Time) error {
	logger := newLogger(cfg)
	a, err := openApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.close()

	scorer, err := riskEngine(cfg)
	if err != nil {
		return err
	}
	svc, _ := newService(a, scorer)
	res, err := svc.SweepExamValidity(ctx, sweepIdentity(org), at)
	if err != nil {
		return err
	}
	logger.Info().Str("organization", org).Time("at", at).
		Int("succeeded", res.Succeeded).Int("failed", res.Failed).Msg("exam validity sweep finished")

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}
