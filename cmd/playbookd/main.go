package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "time/tzdata"

	"playbookd/internal/app"
	"playbookd/pkg/schedcodec"
)

func main() {
	var (
		cfgPath  string
		describe string
		build    string
		tz       string
		next     int
	)
	flag.StringVar(&cfgPath, "config", "./config.yaml", "path to config (json or yaml)")
	flag.StringVar(&describe, "describe", "", "print the editor state and description of a cron expression, then exit")
	flag.StringVar(&build, "build", "", "print the cron expression for a JSON schedule state, then exit")
	flag.StringVar(&tz, "tz", "", "IANA timezone for -describe and -build")
	flag.IntVar(&next, "next", 0, "with -describe, also print the next N fire times")
	flag.Parse()

	switch {
	case describe != "":
		if err := runDescribe(os.Stdout, describe, tz, next); err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			os.Exit(1)
		}
		return
	case build != "":
		if err := runBuild(os.Stdout, build, tz); err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			os.Exit(1)
		}
		return
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := app.NewApp(cfgPath)
	if err != nil {
		fmt.Println("fatal:", err)
		os.Exit(1)
	}
	if err := a.Start(ctx); err != nil {
		fmt.Println("fatal start:", err)
		os.Exit(1)
	}

	reason := app.StopSignal
	select {
	case <-ctx.Done():
	case <-a.Done():
		if a.Err() != nil {
			reason = app.StopFatalError
		}
	}
	stopCtx, stopCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer stopCancel()
	_ = a.Stop(stopCtx, reason)
	if reason == app.StopFatalError {
		os.Exit(1)
	}
}

func runDescribe(w io.Writer, expr, tz string, next int) error {
	st := schedcodec.ParseCron(expr)
	b, err := json.Marshal(st)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "state: %s\n", b)
	fmt.Fprintf(w, "description: %s\n", schedcodec.DescribeSchedule(st, tz))
	if err := schedcodec.Validate(expr); err != nil {
		fmt.Fprintf(w, "warning: %v\n", err)
	}
	if next <= 0 {
		return nil
	}
	runs, err := schedcodec.NextRuns(expr, tz, time.Now(), next)
	if err != nil {
		return err
	}
	loc := schedcodec.LoadLocation(tz)
	for _, r := range runs {
		fmt.Fprintf(w, "next: %s\n", r.In(loc).Format(time.RFC1123))
	}
	return nil
}

func runBuild(w io.Writer, raw, tz string) error {
	st := schedcodec.DefaultState()
	if err := json.Unmarshal([]byte(raw), &st); err != nil {
		return fmt.Errorf("decode schedule state: %w", err)
	}
	if !st.Valid() {
		return errors.New("schedule state has a field out of range")
	}
	fmt.Fprintf(w, "cron: %s\n", schedcodec.BuildCron(st))
	fmt.Fprintf(w, "description: %s\n", schedcodec.DescribeSchedule(st, tz))
	return nil
}
