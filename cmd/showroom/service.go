package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"slices"

	"github.com/kardianos/service"
	"github.com/spf13/cobra"

	"github.com/itesm-showroom/showroom/pkg/app"
)

// program adapts the serve loop to the service manager.
type program struct {
	params app.RunParams
	run    func(context.Context, app.RunParams) error

	cancel context.CancelFunc
	done   chan error
}

func (p *program) Start(service.Service) error {
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.done = make(chan error, 1)
	go func() { p.done <- p.run(ctx, p.params) }()
	return nil
}

func (p *program) Stop(service.Service) error {
	if p.cancel == nil {
		return nil
	}
	p.cancel()
	return <-p.done
}

func serviceConfig(cfgPath string) (*service.Config, error) {
	args := []string{"service", "run"}
	if cfgPath != "" {
		abs, err := filepath.Abs(cfgPath)
		if err != nil {
			return nil, err
		}
		args = append(args, "--config", abs)
	}
	return &service.Config{
		Name:        "showroom",
		DisplayName: "Showroom",
		Description: "Conversational assistants gateway",
		Arguments:   args,
	}, nil
}

func serviceCmd() *cobra.Command {
	actions := append(service.ControlAction[:], "run", "status")
	return &cobra.Command{
		Use:       "service <action>",
		Short:     "Manage showroom as a system service",
		Long:      fmt.Sprintf("Manage showroom as a system service. Actions: %v.", actions),
		Args:      cobra.ExactArgs(1),
		ValidArgs: actions,
		RunE: func(cmd *cobra.Command, args []string) error {
			action := args[0]
			if !slices.Contains(actions, action) {
				return fmt.Errorf("unknown action %q (valid: %v)", action, actions)
			}

			cfgPath, _ := cmd.Flags().GetString("config")
			svcCfg, err := serviceConfig(cfgPath)
			if err != nil {
				return err
			}
			prg := &program{
				params: app.RunParams{ConfigPath: cfgPath, Version: version},
				run:    app.Run,
			}
			svc, err := service.New(prg, svcCfg)
			if err != nil {
				return err
			}

			switch action {
			case "run":
				return svc.Run()
			case "status":
				st, err := svc.Status()
				if errors.Is(err, service.ErrNotInstalled) {
					fmt.Fprintln(cmd.OutOrStdout(), "not installed")
					return nil
				}
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), statusName(st))
				return nil
			default:
				if err := service.Control(svc, action); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "service %s: ok\n", action)
				return nil
			}
		},
	}
}

func statusName(st service.Status) string {
	switch st {
	case service.StatusRunning:
		return "running"
	case service.StatusStopped:
		return "stopped"
	default:
		return "unknown"
	}
}
