// Package main provides the MixGo CLI.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/mixgo-ml/mixgo/internal/config"
	"github.com/mixgo-ml/mixgo/internal/mixup"
	"github.com/mixgo-ml/mixgo/internal/models"
	"github.com/mixgo-ml/mixgo/internal/optim"
	"github.com/mixgo-ml/mixgo/internal/runner"
	"github.com/mixgo-ml/mixgo/internal/sched"
)

const version = "v0.1.0-dev"

func usage() {
	fmt.Println("MixGo - mixup augmentation and optimizer research in Go")
	fmt.Printf("Version: %s\n\n", version)
	fmt.Println("Commands:")
	fmt.Println("  version                 Show version")
	fmt.Println("  optimizers              List registered optimizers, lr policies, mix modes and models")
	fmt.Println("  config <file.yaml>      Print a config with its _base_ chain resolved")
	fmt.Println("  train -config <file>    Train a model")
}

func main() {
	if len(os.Args) < 2 {
		usage()
		return
	}
	var err error
	switch os.Args[1] {
	case "version":
		fmt.Printf("MixGo %s\n", version)
	case "optimizers":
		listRegistered()
	case "config":
		err = printConfig(os.Args[2:])
	case "train":
		err = train(os.Args[2:])
	case "help", "-h", "--help":
		usage()
	default:
		usage()
		err = fmt.Errorf("unknown command %q", os.Args[1])
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func listRegistered() {
	fmt.Printf("optimizers: %s\n", strings.Join(optim.Registered(), ", "))
	fmt.Printf("lr policies: %s\n", strings.Join(sched.Policies(), ", "))
	fmt.Printf("mix modes: %s\n", strings.Join(mixup.Modes(), ", "))
	fmt.Printf("models: %s\n", strings.Join(models.Models(), ", "))
}

func printConfig(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: mixgo config <file.yaml>")
	}
	cfg, err := config.Load(args[0])
	if err != nil {
		return err
	}
	out, err := cfg.Dump()
	if err != nil {
		return err
	}
	fmt.Print(string(out))
	return nil
}

func train(args []string) error {
	fs := flag.NewFlagSet("train", flag.ExitOnError)
	cfgPath := fs.String("config", "", "experiment config (YAML)")
	workDir := fs.String("work-dir", "", "output directory (default: work_dir from the config)")
	seed := fs.Int("seed", -1, "random seed override")
	resume := fs.String("resume-from", "", "checkpoint to resume from")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *cfgPath == "" {
		fs.Usage()
		return fmt.Errorf("-config is required")
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		return err
	}
	if *seed >= 0 {
		cfg["seed"] = *seed
	}
	if *resume != "" {
		cfg["resume_from"] = *resume
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := log.New(os.Stdout, "", log.LstdFlags)
	r, err := runner.Train(ctx, cfg, *workDir, logger)
	if err != nil {
		return err
	}
	if acc, ok := r.Metrics()["accuracy_top-1"]; ok {
		logger.Printf("Finished run %s: accuracy_top-1 %.4f", r.RunID(), acc)
	}
	return nil
}
