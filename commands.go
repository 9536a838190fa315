package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"visitor-kiosk/config"
	"visitor-kiosk/roster"
	"visitor-kiosk/services"
)

func migrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			if err := config.Migrate(ctx, a.db, a.cfg.DB.Driver); err != nil {
				return err
			}
			settings := services.NewSettingsService(a.db, a.logger)
			operators := services.NewOperatorService(a.db, a.logger)
			if err := a.bootstrap(ctx, settings, operators); err != nil {
				return err
			}
			a.logger.Info("✅ migrations applied", zap.String("driver", a.cfg.DB.Driver))
			return nil
		},
	}
}

type exportFlags struct {
	filter string
	from   string
	to     string
	name   string
	out    string
}

func exportCommand() *cobra.Command {
	var f exportFlags
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the visitor roster to an .xlsx file",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			rf, err := f.rosterFilter(a.loc)
			if err != nil {
				return err
			}
			st := a.visitorStore()
			exports := services.NewExportService(st, a.loc, a.logger).WithLang(a.cfg.Kiosk.Lang)
			buf, name, err := exports.Export(ctx, rf.StoreFilter(time.Now(), a.loc))
			if err != nil {
				return err
			}

			out := f.out
			if out == "" {
				out = name
			} else if info, err := os.Stat(out); err == nil && info.IsDir() {
				out = filepath.Join(out, name)
			}
			if err := os.WriteFile(out, buf.Bytes(), 0644); err != nil {
				return fmt.Errorf("write %s: %w", out, err)
			}
			a.logger.Info("✅ export written", zap.String("file", out), zap.Int("bytes", buf.Len()))
			return nil
		},
	}
	cmd.Flags().StringVar(&f.filter, "filter", "ALL", "TODAY, STAYING, CHECKED_OUT_TODAY, ALL or CUSTOM")
	cmd.Flags().StringVar(&f.from, "from", "", "first day for CUSTOM (YYYY-MM-DD)")
	cmd.Flags().StringVar(&f.to, "to", "", "last day for CUSTOM (YYYY-MM-DD)")
	cmd.Flags().StringVar(&f.name, "name", "", "only names containing this text")
	cmd.Flags().StringVarP(&f.out, "out", "o", "", "output file or directory (default Visitor_Report_<date>.xlsx)")
	return cmd
}

func (f exportFlags) rosterFilter(loc *time.Location) (roster.Filter, error) {
	preset, err := roster.ParsePreset(f.filter)
	if err != nil {
		return roster.Filter{}, fmt.Errorf("--filter: %w", err)
	}
	rf := roster.Filter{Preset: preset, Name: strings.TrimSpace(f.name)}
	parse := func(flag, s string) (*time.Time, error) {
		if s == "" {
			return nil, nil
		}
		t, err := time.ParseInLocation("2006-01-02", s, loc)
		if err != nil {
			return nil, fmt.Errorf("--%s: want YYYY-MM-DD: %w", flag, err)
		}
		return &t, nil
	}
	if rf.From, err = parse("from", f.from); err != nil {
		return rf, err
	}
	if rf.To, err = parse("to", f.to); err != nil {
		return rf, err
	}
	return rf, nil
}

func normalizePurposesCommand() *cobra.Command {
	var batch int
	cmd := &cobra.Command{
		Use:   "normalize-purposes",
		Short: "Rewrite legacy free-text purposes as purpose tags",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			n, err := services.NormalizeLegacyPurposes(ctx, a.visitorStore(), batch, a.logger)
			if err != nil {
				return err
			}
			a.logger.Info("✅ purposes normalized", zap.Int("rows", n))
			return nil
		},
	}
	cmd.Flags().IntVar(&batch, "batch", 200, "rows per page")
	return cmd
}
