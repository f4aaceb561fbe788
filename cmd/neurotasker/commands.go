package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/rahul/neurotasker/internal/agent"
	"github.com/rahul/neurotasker/internal/gateway"
	"github.com/rahul/neurotasker/internal/observability"
	"github.com/rahul/neurotasker/internal/store"
	"github.com/rahul/neurotasker/pkg/config"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const heartbeatInterval = 30 * time.Second

// app bundles what every subcommand needs once the config is loaded.
type app struct {
	cfg    *config.Config
	logger *observability.Logger
	store  *store.Store
}

func bootstrap() (*app, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	logger, err := observability.NewLogger(observability.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		LLMLogPath: cfg.Log.LLMLogPath,
		Verbose:    verbose,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	st, err := store.Open(cfg.Memory.Path)
	if err != nil {
		logger.Sync()
		return nil, fmt.Errorf("failed to open store %s: %w", cfg.Memory.Path, err)
	}
	return &app{cfg: cfg, logger: logger, store: st}, nil
}

func (r *app) close() {
	if err := r.store.Close(); err != nil {
		r.logger.Zap().Warn("closing store", zap.Error(err))
	}
	r.logger.Sync()
}

func (r *app) coach() (*agent.StreamCoach, error) {
	name, p := r.cfg.GetDefaultProvider()
	if name == "" {
		return nil, fmt.Errorf("no enabled provider in %s", configPath)
	}
	model, err := agent.NewModel(name, p)
	if err != nil {
		return nil, err
	}

	prompts := agent.NewPromptManager(r.cfg.Prompts.Directory)
	prompts.Logger = r.logger.Zap()

	c := agent.NewStreamCoach(model, p.Model, prompts, r.logger)
	c.Timeout = p.Timeout
	r.logger.Zap().Info("coach ready", zap.String("provider", name), zap.String("model", p.Model), zap.String("base_url", p.BaseURL))
	return c, nil
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and streaming decomposition endpoint",
	RunE: func(cmd *cobra.Command, args []string) error {
		observability.PrintBanner(cmd.OutOrStdout())

		rt, err := bootstrap()
		if err != nil {
			return err
		}
		defer rt.close()

		coach, err := rt.coach()
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		gw := gateway.NewHTTPGateway(rt.cfg.Server.Addr, coach, rt.store, rt.logger)

		g, ctx := errgroup.WithContext(ctx)
		g.Go(gw.Start)
		g.Go(func() error {
			ticker := time.NewTicker(heartbeatInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-ticker.C:
					observability.Heartbeat()
					rt.logger.LogHeartbeat()
				}
			}
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return gw.Stop(shutdownCtx)
		})

		err = g.Wait()
		rt.logger.Zap().Info("shut down")
		return err
	},
}

var (
	decomposeType    string
	decomposeProfile int64
)

var decomposeCmd = &cobra.Command{
	Use:   "decompose [task...]",
	Short: "Break a task into micro-steps, printing each as soon as it is ready",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		task := strings.TrimSpace(strings.Join(args, " "))
		if task == "" {
			return fmt.Errorf("task is required")
		}

		rt, err := bootstrap()
		if err != nil {
			return err
		}
		defer rt.close()

		coach, err := rt.coach()
		if err != nil {
			return err
		}

		profile := agent.Profile{NeuroType: decomposeType}
		var owner *store.Profile
		if decomposeProfile > 0 {
			owner, err = rt.store.GetProfile(decomposeProfile)
			if err != nil {
				return fmt.Errorf("profile %d: %w", decomposeProfile, err)
			}
			profile = agent.Profile{Name: owner.Name, NeuroType: owner.NeuroType}
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		out := cmd.OutOrStdout()
		printed := 0
		steps, err := coach.Decompose(ctx, task, profile, func(s []store.MicroStep) {
			for _, st := range s[printed:] {
				printStep(out, st)
			}
			printed = len(s)
		})
		if err != nil {
			return err
		}
		// steps recovered by the safety net never went through the callback
		for _, st := range steps[min(printed, len(steps)):] {
			printStep(out, st)
		}
		if len(steps) == 0 {
			fmt.Fprintln(out, "The coach did not return any steps. Try rephrasing the task.")
			return nil
		}

		if owner == nil || agent.IsConnectionFailure(steps) {
			return nil
		}
		saved, err := rt.store.AddTask(owner.ID, task, steps)
		if err != nil {
			return err
		}
		updated, up, err := rt.store.AwardXP(owner.ID, store.XPTaskDecomposed)
		if err != nil {
			return err
		}
		rt.logger.LogXP(owner.ID, store.XPTaskDecomposed, updated.Level, up)
		fmt.Fprintf(out, "\nSaved as task %d. +%d XP (level %d, %d%%)\n",
			saved.ID, store.XPTaskDecomposed, updated.Level, store.ProgressPercent(updated.XP, updated.Level))
		return nil
	},
}

func printStep(w io.Writer, st store.MicroStep) {
	fmt.Fprintf(w, "%2d. %s  [%s, %s energy]\n", st.ID, st.Text, st.Duration, st.EnergyRequired)
}

var profilesCmd = &cobra.Command{
	Use:   "profiles",
	Short: "Manage local user profiles",
}

var profilesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List profiles",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := bootstrap()
		if err != nil {
			return err
		}
		defer rt.close()

		profiles, err := rt.store.ListProfiles()
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tNAME\tTYPE\tLEVEL\tXP")
		for _, p := range profiles {
			fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%d/%d\n", p.ID, p.Name, p.NeuroType, p.Level, p.XP, store.XPForNextLevel(p.Level))
		}
		return tw.Flush()
	},
}

var profileType string

var profilesCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a profile",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := bootstrap()
		if err != nil {
			return err
		}
		defer rt.close()

		p, err := rt.store.CreateProfile(strings.Join(args, " "), agent.NormalizeNeuroType(profileType))
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Created profile %d (%s, %s)\n", p.ID, p.Name, p.NeuroType)
		return nil
	},
}

var profilesDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a profile and all of its tasks",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid profile id %q", args[0])
		}

		rt, err := bootstrap()
		if err != nil {
			return err
		}
		defer rt.close()

		if err := rt.store.DeleteProfile(id); err != nil {
			return fmt.Errorf("profile %d: %w", id, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted profile %d\n", id)
		return nil
	},
}

func init() {
	decomposeCmd.Flags().StringVarP(&decomposeType, "type", "t", agent.NeuroGeneral, "neuro type: ADHD, Anxiety, Dyslexia or General")
	decomposeCmd.Flags().Int64VarP(&decomposeProfile, "profile", "p", 0, "profile id; saves the task and awards XP")

	profilesCreateCmd.Flags().StringVarP(&profileType, "type", "t", agent.NeuroGeneral, "neuro type: ADHD, Anxiety, Dyslexia or General")

	profilesCmd.AddCommand(profilesListCmd, profilesCreateCmd, profilesDeleteCmd)
}
