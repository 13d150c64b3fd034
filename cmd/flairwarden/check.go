package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/flairwarden/flairwarden/internal/rules"
)

func runCheck(args []string) error {
	fs := flag.NewFlagSet("check", flag.ExitOnError)
	quiet := fs.Bool("q", false, "suppress the canonical output, only report validity")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: flairwarden check [-q] <file>")
	}

	content, err := os.ReadFile(fs.Arg(0))
	if err != nil {
		return err
	}
	cfg, converted, err := rules.Parse(string(content))
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	fmt.Printf("ok: %d rules", len(cfg.Rules))
	if converted {
		fmt.Print(" (converted from legacy YAML)")
	}
	fmt.Println()
	if *quiet {
		return nil
	}
	pretty, err := cfg.Pretty()
	if err != nil {
		return err
	}
	fmt.Println(pretty)
	return nil
}

func runConvert(args []string) error {
	fs := flag.NewFlagSet("convert", flag.ExitOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: flairwarden convert <file>")
	}

	content, err := os.ReadFile(fs.Arg(0))
	if err != nil {
		return err
	}
	cfg, err := rules.ConvertLegacyYAML(string(content))
	if err != nil {
		return fmt.Errorf("convert: %w", err)
	}
	pretty, err := cfg.Pretty()
	if err != nil {
		return err
	}
	fmt.Println(pretty)
	return nil
}
