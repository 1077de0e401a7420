package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"benchline/internal/activity"
	"benchline/internal/app"
	"benchline/internal/domain"
	"benchline/internal/engine"
	"benchline/internal/repo"
	"benchline/internal/submission"
	"benchline/internal/validation"
)

func orderCmd() *cobra.Command {
	ord := &cobra.Command{Use: "order", Short: "Manage orders"}
	ord.AddCommand(orderCreateCmd())
	ord.AddCommand(orderListCmd())
	ord.AddCommand(orderShowCmd())
	ord.AddCommand(orderAssignCmd())
	ord.AddCommand(orderTimelineCmd())
	return ord
}

func orderCreateCmd() *cobra.Command {
	var opts engine.OrderCreateOptions
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an order; it enters the first department",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				opts.ActorID = viper.GetString("actor-id")
				o, err := a.Engine.CreateOrder(ctx, opts)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(o)
				}
				fmt.Printf("Created order %s (%s) in %s\n", o.Reference, o.ID, o.CurrentDepartment.Name())
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&opts.Reference, "reference", "", "shop reference, e.g. JOB-1042")
	cmd.Flags().StringVar(&opts.Customer, "customer", "", "customer name")
	cmd.Flags().StringVar(&opts.Description, "description", "", "piece description")
	cmd.Flags().StringVar(&opts.Priority, "priority", "normal", "low|normal|high|urgent")
	cmd.Flags().StringVar(&opts.DueDate, "due", "", "due date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&opts.AssigneeID, "assignee", "", "worker for the first department")
	_ = cmd.MarkFlagRequired("reference")
	return cmd
}

func orderListCmd() *cobra.Command {
	var f repo.OrderFilters
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List orders, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				orders, err := a.Engine.ListOrders(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(orders)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Reference", "Customer", "Priority", "Department", "Status", "Worker", "Due"})
				for _, o := range orders {
					status, worker := "", ""
					if t, ok := o.TrackingFor(o.CurrentDepartment); ok {
						status = string(t.Status)
						if t.AssignedWorkerID != nil {
							worker = *t.AssignedWorkerID
						}
					}
					due := ""
					if o.DueDate != nil {
						due = *o.DueDate
					}
					tw.AppendRow(table.Row{o.Reference, o.Customer, o.Priority, o.CurrentDepartment, status, worker, due})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&f.Department, "department", "", "current department (or FINISHED)")
	cmd.Flags().StringVar(&f.Priority, "priority", "", "priority filter")
	cmd.Flags().StringVar(&f.AssigneeID, "assignee", "", "worker on the current department")
	cmd.Flags().IntVar(&f.Limit, "limit", 0, "maximum orders")
	return cmd
}

func orderShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <order>",
		Short: "Show an order and its department tracking",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				o, err := a.Engine.GetOrder(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(o)
				}
				fmt.Printf("%s  %s  [%s]  now in %s\n", o.Reference, o.Customer, o.Priority, o.CurrentDepartment)
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"#", "Department", "Status", "Worker", "Started", "Completed"})
				for _, t := range o.Tracking {
					info, _ := t.Department.Info()
					tw.AppendRow(table.Row{info.Sequence, info.Name, t.Status, deref(t.AssignedWorkerID), deref(t.StartedAt), deref(t.CompletedAt)})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func orderAssignCmd() *cobra.Command {
	var department, worker string
	cmd := &cobra.Command{
		Use:   "assign <order>",
		Short: "Assign a worker to a department (empty --worker clears it)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				dept, err := optionalDepartment(department)
				if err != nil {
					return err
				}
				t, err := a.Engine.AssignWorker(ctx, args[0], dept, worker, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(t)
				}
				fmt.Printf("%s assigned to %q\n", t.Department, deref(t.AssignedWorkerID))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&department, "department", "", "department (default: current)")
	cmd.Flags().StringVar(&worker, "worker", "", "worker id")
	return cmd
}

func orderTimelineCmd() *cobra.Command {
	var tz string
	cmd := &cobra.Command{
		Use:   "timeline <order>",
		Short: "Show the order's activity by day",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			loc := time.Local
			if tz != "" {
				l, err := time.LoadLocation(tz)
				if err != nil {
					return err
				}
				loc = l
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				entries, err := a.Engine.OrderActivity(ctx, args[0])
				if err != nil {
					return err
				}
				days := activity.GroupByDay(entries, loc)
				if viper.GetBool("json") {
					return printJSON(days)
				}
				for _, d := range days {
					fmt.Println(text.Bold.Sprint(d.Date))
					printActivity(d.Entries)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&tz, "tz", "", "IANA time zone for day boundaries (default: local)")
	return cmd
}

func deptCmd() *cobra.Command {
	dept := &cobra.Command{Use: "dept", Short: "Departments"}
	dept.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List departments with order counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				items, err := a.Engine.Departments(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"#", "Key", "Name", "Enabled", "Orders"})
				for _, d := range items {
					tw.AppendRow(table.Row{d.Sequence, d.Key, d.Name, d.Enabled, d.Orders})
				}
				tw.Render()
				return nil
			})
		},
	})
	for _, enabled := range []bool{true, false} {
		enabled := enabled
		use, short := "enable", "Require the full work instructions of a department"
		if !enabled {
			use, short = "disable", "Reduce a department to its core fields"
		}
		dept.AddCommand(&cobra.Command{
			Use:   use + " <department>",
			Short: short,
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				d, err := domain.ParseDepartment(args[0])
				if err != nil {
					return err
				}
				return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
					f, err := a.Engine.SetDepartmentEnabled(ctx, d, enabled)
					if err != nil {
						return err
					}
					fmt.Printf("%s = %t\n", f.Key, f.Enabled)
					return nil
				})
			},
		})
	}
	return dept
}

func schemaCmd() *cobra.Command {
	sc := &cobra.Command{Use: "schema", Short: "Work instructions and requirements"}
	sc.AddCommand(&cobra.Command{
		Use:   "show <department>",
		Short: "Show what a department must submit",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := domain.ParseDepartment(args[0])
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				s, err := a.Engine.Schema(d)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(s)
				}
				title := s.Title
				if s.Reduced {
					title += " (reduced)"
				}
				fmt.Println(text.Bold.Sprint(title))
				for i, line := range s.Instructions {
					fmt.Printf("  %d. %s\n", i+1, line)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Kind", "Name", "Label", "Type", "Required", "Rules"})
				for _, f := range s.Fields {
					tw.AppendRow(table.Row{"field", f.Name, f.Label, f.Type, f.Required, fieldRules(f.Min, f.Max, f.MinLength, f.MaxLength, f.Options, f.Unit)})
				}
				for _, p := range s.Photos {
					tw.AppendRow(table.Row{"photo", p.Name, p.Label, "photo", p.Required, fmt.Sprintf("min %d", p.EffectiveMinCount())})
				}
				for _, f := range s.Files {
					tw.AppendRow(table.Row{"file", f.Name, f.Label, strings.Join(f.AcceptedFormats, " "), f.Required, maxSize(f.MaxSizeMB)})
				}
				tw.Render()
				return nil
			})
		},
	})
	return sc
}

func workCmd() *cobra.Command {
	var department string
	w := &cobra.Command{Use: "work", Short: "Do department work on an order"}
	w.PersistentFlags().StringVar(&department, "department", "", "department (default: current)")
	dept := func() (domain.Department, error) { return optionalDepartment(department) }

	w.AddCommand(&cobra.Command{
		Use:   "start <order>",
		Short: "Start work on the department",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := dept()
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				t, err := a.Engine.StartWork(ctx, args[0], d, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				fmt.Printf("Started %s at %s\n", t.Department.Name(), deref(t.StartedAt))
				return showReport(ctx, a, args[0], t.Department)
			})
		},
	})

	w.AddCommand(&cobra.Command{
		Use:   "set <order> name=value...",
		Short: "Set form fields and save the draft; values are JSON when they parse, text otherwise",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := dept()
			if err != nil {
				return err
			}
			fields, err := parseAssignments(args[1:])
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				actor := viper.GetString("actor-id")
				t, _, err := a.Engine.EditWork(ctx, args[0], d, actor, fields)
				if err != nil {
					return err
				}
				if _, err := a.Engine.SaveWork(ctx, args[0], t.Department, actor); err != nil {
					return err
				}
				return showReport(ctx, a, args[0], t.Department)
			})
		},
	})

	var kind, category string
	attach := &cobra.Command{
		Use:   "attach <order> <path>...",
		Short: "Upload photos or files and save the draft",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := dept()
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				actor := viper.GetString("actor-id")
				for _, p := range args[1:] {
					att, err := attachFile(ctx, a, args[0], d, actor, engine.AttachmentKind(kind), category, p)
					if err != nil {
						return fmt.Errorf("%s: %w", p, err)
					}
					fmt.Printf("Attached %s as %s (%s)\n", filepath.Base(p), att.ID, att.URL)
				}
				t, err := a.Engine.SaveWork(ctx, args[0], d, actor)
				if err != nil {
					return err
				}
				return showReport(ctx, a, args[0], t.Department)
			})
		},
	}
	attach.Flags().StringVar(&kind, "kind", "photo", "photo|file")
	attach.Flags().StringVar(&category, "category", "", "requirement name, e.g. renderViews")
	_ = attach.MarkFlagRequired("category")
	w.AddCommand(attach)

	w.AddCommand(&cobra.Command{
		Use:   "detach <order> <attachment-id>",
		Short: "Remove a photo or file and save the draft",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := dept()
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				actor := viper.GetString("actor-id")
				if err := a.Engine.RemoveAttachment(ctx, args[0], d, actor, args[1]); err != nil {
					return err
				}
				t, err := a.Engine.SaveWork(ctx, args[0], d, actor)
				if err != nil {
					return err
				}
				return showReport(ctx, a, args[0], t.Department)
			})
		},
	})

	w.AddCommand(&cobra.Command{
		Use:   "save <order>",
		Short: "Save the current draft",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := dept()
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				t, err := a.Engine.SaveWork(ctx, args[0], d, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				fmt.Printf("Saved %s draft at %s\n", t.Department, deref(t.Submission.LastSavedAt))
				return nil
			})
		},
	})

	w.AddCommand(&cobra.Command{
		Use:   "submit <order>",
		Short: "Submit the department's work and advance the order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := dept()
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				rep, err := a.Engine.SubmitWork(ctx, args[0], d, viper.GetString("actor-id"))
				var vfe *submission.ValidationFailedError
				if errors.As(err, &vfe) {
					printReport(vfe.Report)
					return fmt.Errorf("submission incomplete: %d item(s) outstanding", vfe.Report.Outstanding())
				}
				if err != nil {
					return err
				}
				o, err := a.Engine.GetOrder(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"report": rep, "order": o})
				}
				if o.Finished() {
					fmt.Printf("Order %s finished\n", o.Reference)
				} else {
					fmt.Printf("Order %s moved to %s\n", o.Reference, o.CurrentDepartment.Name())
				}
				return nil
			})
		},
	})

	w.AddCommand(&cobra.Command{
		Use:   "report <order>",
		Short: "Show what is still missing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := dept()
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				return showReport(ctx, a, args[0], d)
			})
		},
	})

	w.AddCommand(&cobra.Command{
		Use:   "show <order>",
		Short: "Show the department's tracking record and submission",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := dept()
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				t, err := a.Engine.WorkState(ctx, args[0], d)
				if err != nil {
					return err
				}
				return printJSON(t)
			})
		},
	})
	return w
}

func flagsCmd() *cobra.Command {
	fl := &cobra.Command{Use: "flags", Short: "Feature flags"}
	fl.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List feature flags",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				items := a.Engine.Flags.Flags()
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Key", "Enabled", "Updated"})
				for _, f := range items {
					tw.AppendRow(table.Row{f.Key, f.Enabled, f.UpdatedAt})
				}
				tw.Render()
				return nil
			})
		},
	})
	fl.AddCommand(&cobra.Command{
		Use:   "set <key> <true|false>",
		Short: "Set a feature flag",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			enabled, err := strconv.ParseBool(args[1])
			if err != nil {
				return fmt.Errorf("flag value must be true or false")
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				f, err := a.Engine.Flags.SetFlag(ctx, args[0], enabled)
				if err != nil {
					return err
				}
				fmt.Printf("%s = %t\n", f.Key, f.Enabled)
				return nil
			})
		},
	})
	return fl
}

// --- helpers ---

func optionalDepartment(v string) (domain.Department, error) {
	if v == "" || strings.EqualFold(v, "current") {
		return "", nil
	}
	return domain.ParseDepartment(v)
}

// parseAssignments turns name=value pairs into form values. "null" clears a field.
func parseAssignments(args []string) (map[string]any, error) {
	out := make(map[string]any, len(args))
	for _, arg := range args {
		name, raw, ok := strings.Cut(arg, "=")
		if !ok || strings.TrimSpace(name) == "" {
			return nil, fmt.Errorf("expected name=value, got %q", arg)
		}
		var v any
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			v = raw
		}
		out[strings.TrimSpace(name)] = v
	}
	return out, nil
}

func attachFile(ctx context.Context, a *app.App, orderID string, dept domain.Department, actor string, kind engine.AttachmentKind, category, path string) (domain.Attachment, error) {
	f, err := os.Open(path)
	if err != nil {
		return domain.Attachment{}, err
	}
	defer f.Close()
	st, err := f.Stat()
	if err != nil {
		return domain.Attachment{}, err
	}
	return a.Engine.AddAttachment(ctx, orderID, dept, actor, kind, category, domain.Upload{
		Filename:    filepath.Base(path),
		ContentType: mime.TypeByExtension(filepath.Ext(path)),
		Size:        st.Size(),
		Body:        f,
	})
}

func showReport(ctx context.Context, a *app.App, orderID string, dept domain.Department) error {
	rep, err := a.Engine.Report(ctx, orderID, dept)
	if err != nil {
		return err
	}
	if viper.GetBool("json") {
		return printJSON(rep)
	}
	printReport(rep)
	return nil
}

func printReport(rep validation.Report) {
	fmt.Printf("%d%% complete\n", rep.PercentComplete)
	if rep.CanSubmit() {
		fmt.Println(text.FgGreen.Sprint("ready to submit"))
		return
	}
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"Missing", "Label", "Reason"})
	for _, is := range rep.Issues {
		tw.AppendRow(table.Row{is.Name, is.Label, is.Reason})
	}
	tw.Render()
}

func printActivity(entries []domain.ActivityEntry) {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"ID", "Time", "Department", "Action", "Actor", "Details"})
	for _, e := range entries {
		details := ""
		if len(e.Metadata) > 0 {
			b, _ := json.Marshal(e.Metadata)
			details = string(b)
		}
		tw.AppendRow(table.Row{e.ID, e.TS, e.Department, e.Action, e.ActorID, details})
	}
	tw.Render()
}

func fieldRules(min, max *float64, minLen, maxLen *int, options []string, unit string) string {
	var parts []string
	if min != nil || max != nil {
		lo, hi := "", ""
		if min != nil {
			lo = strconv.FormatFloat(*min, 'f', -1, 64)
		}
		if max != nil {
			hi = strconv.FormatFloat(*max, 'f', -1, 64)
		}
		parts = append(parts, fmt.Sprintf("%s..%s%s", lo, hi, unit))
	}
	if minLen != nil {
		parts = append(parts, fmt.Sprintf("min %d chars", *minLen))
	}
	if maxLen != nil {
		parts = append(parts, fmt.Sprintf("max %d chars", *maxLen))
	}
	if len(options) > 0 {
		parts = append(parts, strings.Join(options, " | "))
	}
	return strings.Join(parts, "; ")
}

func maxSize(mb float64) string {
	if mb <= 0 {
		return ""
	}
	return fmt.Sprintf("max %gMB", mb)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
